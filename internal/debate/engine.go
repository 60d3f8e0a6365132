package debate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/reasoning"
	"qihuo/internal/types"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"
)

// View 是渲染给辩论角色的只读上下文。History 为本轮开始前的冻结快照。
type View struct {
	Instrument string
	AsOf       string
	Round      int
	MaxRounds  int
	Final      bool
	Composite  types.CompositeSignal
	History    []types.DebateArgument
}

// Engine 运行多空辩论：Init → Round(1..max_rounds) → Concluded。
type Engine struct {
	cfg    config.DebateConfig
	roles  map[types.DebateRole]reasoning.Reasoner
	policy ConvergencePolicy
	now    func() time.Time
}

type Option func(*Engine)

// WithRole 为单个角色指定推理实现。
func WithRole(role types.DebateRole, r reasoning.Reasoner) Option {
	return func(e *Engine) { e.roles[role] = r }
}

func WithPolicy(p ConvergencePolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// PolicyFromConfig 按 debate.convergence 选择收敛策略。
func PolicyFromConfig(cfg config.DebateConfig) ConvergencePolicy {
	if cfg.Convergence == config.ConvergenceConfidenceGap {
		return ConfidenceGapPolicy{Gap: cfg.ConvergenceGap}
	}
	return ModeratorPolicy{}
}

func New(r reasoning.Reasoner, cfg config.DebateConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		roles: map[types.DebateRole]reasoning.Reasoner{
			types.RoleBull:      r,
			types.RoleBear:      r,
			types.RoleModerator: r,
		},
		policy: PolicyFromConfig(cfg),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.MaxRounds < 1 {
		e.cfg.MaxRounds = 1
	}
	if e.cfg.RetryAttempts < 1 {
		e.cfg.RetryAttempts = 1
	}
	return e
}

// Run 永不返回错误：角色调用耗尽重试时降级为仅依据合成信号的裁决。
func (e *Engine) Run(ctx context.Context, composite types.CompositeSignal, req types.AnalysisRequest) types.DebateOutcome {
	var (
		history []types.DebateArgument
		notes   []types.ModeratorNote
	)
	log := logger.With("instrument", req.Instrument)
	base := View{Instrument: req.Instrument, AsOf: req.AsOfDate(), MaxRounds: e.cfg.MaxRounds, Composite: composite}

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		view := base
		view.Round = round
		view.History = types.CloneHistory(history)

		bull, bear, err := e.runRound(ctx, view)
		if err != nil {
			log.Warnf("第 %d 轮辩论失败，降级为合成信号: %v", round, err)
			return e.degraded(composite, history, notes, round-1, err)
		}
		// 双方都完成后才按固定顺序（多、空）追加
		history = append(history, bull, bear)

		modView := base
		modView.Round = round
		modView.History = types.CloneHistory(history)
		ruling, err := e.moderate(ctx, modView, composite)
		if err != nil {
			log.Warnf("第 %d 轮主持人裁定失败，降级为合成信号: %v", round, err)
			return e.degraded(composite, history, notes, round, err)
		}
		ruling = e.policy.Decide(round, bull, bear, ruling)
		notes = append(notes, types.ModeratorNote{Round: round, Conclude: ruling.Conclude, Rationale: ruling.Rationale})
		log.Infof("第 %d 轮结束 bull=%.2f bear=%.2f conclude=%v", round, bull.Confidence, bear.Confidence, ruling.Conclude)
		if ruling.Conclude {
			return e.outcome(e.verdict(ruling, round, types.TerminationConverged), history, notes)
		}
	}

	final := base
	final.Round = e.cfg.MaxRounds
	final.Final = true
	final.History = types.CloneHistory(history)
	ruling, err := e.moderate(ctx, final, composite)
	if err != nil {
		log.Warnf("达到轮数上限且最终裁定失败，使用合成信号: %v", err)
		ruling = Ruling{
			Direction:  types.DirectionFromSignal(composite.Direction()),
			Confidence: composite.Confidence,
			Rationale:  "forced judgment unavailable: " + err.Error(),
		}
	}
	notes = append(notes, types.ModeratorNote{Round: e.cfg.MaxRounds, Conclude: true, Rationale: ruling.Rationale})
	return e.outcome(e.verdict(ruling, e.cfg.MaxRounds, types.TerminationRoundLimitReached), history, notes)
}

// runRound 让多空双方基于同一份快照并发发言。
func (e *Engine) runRound(ctx context.Context, view View) (bull, bear types.DebateArgument, err error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		bull, err = e.argue(egCtx, types.RoleBull, view)
		return err
	})
	eg.Go(func() error {
		var err error
		bear, err = e.argue(egCtx, types.RoleBear, view)
		return err
	})
	err = eg.Wait()
	return bull, bear, err
}

type argumentReply struct {
	Argument   string  `json:"argument"`
	Confidence float64 `json:"confidence"`
}

func (e *Engine) argue(ctx context.Context, role types.DebateRole, view View) (types.DebateArgument, error) {
	var reply argumentReply
	err := e.call(ctx, role, view, func(resp reasoning.Response) error {
		reply = argumentReply{}
		if err := resp.Decode(&reply); err != nil {
			return err
		}
		if strings.TrimSpace(reply.Argument) == "" {
			return errors.New("empty argument")
		}
		return nil
	})
	if err != nil {
		return types.DebateArgument{}, fmt.Errorf("%s: %w", role, err)
	}
	return types.DebateArgument{
		Round:      view.Round,
		Role:       role,
		Text:       strings.TrimSpace(reply.Argument),
		Confidence: types.ClampUnit(reply.Confidence),
		CreatedAt:  e.now(),
	}, nil
}

type moderatorReply struct {
	Decision   string   `json:"decision"`
	Direction  string   `json:"direction"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

func (e *Engine) moderate(ctx context.Context, view View, composite types.CompositeSignal) (Ruling, error) {
	var reply moderatorReply
	err := e.call(ctx, types.RoleModerator, view, func(resp reasoning.Response) error {
		reply = moderatorReply{}
		if err := resp.Decode(&reply); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(reply.Decision)) {
		case "continue", "conclude":
			return nil
		default:
			if view.Final {
				return nil
			}
			return fmt.Errorf("unknown moderator decision %q", reply.Decision)
		}
	})
	if err != nil {
		return Ruling{}, fmt.Errorf("%s: %w", types.RoleModerator, err)
	}
	ruling := Ruling{
		Conclude:  strings.EqualFold(strings.TrimSpace(reply.Decision), "conclude"),
		Rationale: strings.TrimSpace(reply.Rationale),
	}
	if dir, ok := types.ParseDirection(reply.Direction); ok {
		ruling.Direction = dir
	} else {
		ruling.Direction = types.DirectionFromSignal(composite.Direction())
	}
	if reply.Confidence != nil {
		ruling.Confidence = types.ClampUnit(*reply.Confidence)
	} else {
		ruling.Confidence = composite.Confidence
	}
	return ruling, nil
}

// call 对单次角色调用施加超时，并在失败时按指数退避重试，直到 retry_attempts 用尽。
func (e *Engine) call(ctx context.Context, role types.DebateRole, view View, accept func(reasoning.Response) error) error {
	lo, hi := e.cfg.RetryBackoff()
	b := &backoff.Backoff{Min: lo, Max: hi, Factor: 2}
	r := e.roles[role]
	if r == nil {
		return fmt.Errorf("no reasoner for role %s", role)
	}
	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		callCtx, cancel := e.callContext(ctx)
		resp, err := r.Reason(callCtx, reasoning.Request{Role: string(role), Data: view})
		cancel()
		if err == nil {
			err = accept(resp)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == e.cfg.RetryAttempts {
			break
		}
		wait := b.Duration()
		logger.Debugf("%s 调用失败（第 %d 次），%s 后重试: %v", role, attempt, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.cfg.PerCallTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) verdict(r Ruling, rounds int, term types.TerminationReason) types.DebateVerdict {
	return types.DebateVerdict{
		Direction:     r.Direction,
		Confidence:    r.Confidence,
		RoundsUsed:    rounds,
		Termination:   term,
		LowConfidence: r.Confidence < e.cfg.MinimumConfidenceThreshold,
		Rationale:     r.Rationale,
	}
}

func (e *Engine) degraded(composite types.CompositeSignal, history []types.DebateArgument, notes []types.ModeratorNote, rounds int, cause error) types.DebateOutcome {
	conf := types.ClampUnit(composite.Confidence * e.cfg.DegradedConfidencePenalty)
	v := types.DebateVerdict{
		Direction:     types.DirectionFromSignal(composite.Direction()),
		Confidence:    conf,
		RoundsUsed:    rounds,
		Termination:   types.TerminationDegradedNoDebate,
		LowConfidence: conf < e.cfg.MinimumConfidenceThreshold,
		Rationale:     "debate unavailable, verdict derived from composite signal",
	}
	out := e.outcome(v, history, notes)
	out.DegradedReason = cause.Error()
	return out
}

func (e *Engine) outcome(v types.DebateVerdict, history []types.DebateArgument, notes []types.ModeratorNote) types.DebateOutcome {
	logger.Infof("辩论结束 direction=%s confidence=%.2f rounds=%d reason=%s", v.Direction, v.Confidence, v.RoundsUsed, v.Termination)
	return types.DebateOutcome{Verdict: v, History: history, Notes: notes}
}
