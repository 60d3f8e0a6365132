package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"qihuo/internal/aggregate"
	"qihuo/internal/config"
	"qihuo/internal/coordinator"
	"qihuo/internal/logger"
	"qihuo/internal/producer"
	"qihuo/internal/types"

	"github.com/google/uuid"
)

const (
	defaultBudget = 15 * time.Minute
	saveTimeout   = 10 * time.Second
)

// Debater 执行多空辩论。
type Debater interface {
	Run(ctx context.Context, composite types.CompositeSignal, req types.AnalysisRequest) types.DebateOutcome
}

// DecisionChain 把裁决转化为最终方案或终止原因。
type DecisionChain interface {
	Run(ctx context.Context, verdict types.DebateVerdict, req types.AnalysisRequest) types.ChainOutcome
}

// Recorder 持久化运行记录。
type Recorder interface {
	Save(ctx context.Context, rec types.DecisionRecord) error
}

type Option func(*Supervisor)

func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

func WithBudget(d time.Duration) Option {
	return func(s *Supervisor) { s.budget = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor 顺序驱动 协调 → 融合 → 辩论 → 决策链，并对整次运行施加墙钟上限。
// 只有它构造 DecisionRecord；各阶段从不重试。
type Supervisor struct {
	coordinator *coordinator.Coordinator
	producers   []producer.Producer
	policy      coordinator.Policy
	weights     map[string]float64
	quorum      aggregate.Quorum
	debater     Debater
	chain       DecisionChain
	recorder    Recorder
	budget      time.Duration
	now         func() time.Time
	newID       func() string
}

func New(cfg *config.Config, producers map[string]producer.Producer, debater Debater, chain DecisionChain, opts ...Option) *Supervisor {
	ids := make([]string, 0, len(producers))
	for id := range producers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]producer.Producer, 0, len(ids))
	for _, id := range ids {
		list = append(list, producers[id])
	}
	s := &Supervisor{
		coordinator: coordinator.New(),
		producers:   list,
		policy:      coordinator.PolicyFromConfig(cfg),
		weights:     cfg.Weights(),
		quorum:      aggregate.QuorumFromConfig(cfg),
		debater:     debater,
		chain:       chain,
		budget:      cfg.Global.WallClockBudget(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.budget <= 0 {
		s.budget = defaultBudget
	}
	return s
}

// run 是一次运行的可变状态，结束时冻结为记录。
type run struct {
	rec types.DecisionRecord
	log logger.Entry
	now func() time.Time
}

func (r *run) abort(stage types.Stage, reason types.AbortReason, detail string) {
	r.rec.Abort = &types.Abort{Stage: stage, Reason: reason, Detail: detail}
	r.log.Warnf("运行终止 %s", r.rec.Abort)
}

// Run 从不返回错误：所有失败都体现在记录的 Abort 中。
func (s *Supervisor) Run(ctx context.Context, req types.AnalysisRequest) types.DecisionRecord {
	r := &run{
		rec: types.DecisionRecord{
			RunID:     s.newID(),
			Request:   req,
			StartedAt: s.now(),
		},
		now: s.now,
	}
	r.log = logger.With("run_id", r.rec.RunID, "instrument", req.Instrument)

	if err := req.Validate(); err != nil {
		r.abort(types.StageSupervisor, types.AbortInvalidRequest, err.Error())
		return s.finish(ctx, r)
	}
	r.log.Infof("开始运行 as_of=%s producers=%v budget=%s", req.AsOfDate(), req.Producers, s.budget)

	runCtx, cancel := context.WithTimeoutCause(ctx, s.budget, types.ErrGlobalTimeout)
	defer cancel()
	s.execute(runCtx, r, req)
	return s.finish(ctx, r)
}

func (s *Supervisor) execute(ctx context.Context, r *run, req types.AnalysisRequest) {
	coord, ok := stage(ctx, r, types.StageCoordinator, func(ctx context.Context) (types.CoordinatorResult, error) {
		return s.coordinator.Run(ctx, req, s.producers, s.policy), nil
	})
	if !ok {
		return
	}
	r.rec.Producers = coord.Results

	composite, ok := stage(ctx, r, types.StageAggregator, func(context.Context) (types.CompositeSignal, error) {
		return aggregate.Fuse(coord.Results, s.weights, s.quorum)
	})
	if !ok {
		return
	}
	r.rec.Composite = &composite
	r.log.Infof("合成信号 score=%.3f confidence=%.3f contributors=%d", composite.Score, composite.Confidence, composite.Contributors)

	debate, ok := stage(ctx, r, types.StageDebate, func(ctx context.Context) (types.DebateOutcome, error) {
		return s.debater.Run(ctx, composite, req), nil
	})
	if !ok {
		return
	}
	r.rec.Debate = debate.History
	r.rec.ModeratorNotes = debate.Notes
	verdict := debate.Verdict
	r.rec.Verdict = &verdict
	r.log.Infof("辩论裁决 direction=%s confidence=%.2f rounds=%d termination=%s",
		verdict.Direction, verdict.Confidence, verdict.RoundsUsed, verdict.Termination)

	chain, ok := stage(ctx, r, types.StageDecision, func(ctx context.Context) (types.ChainOutcome, error) {
		return s.chain.Run(ctx, verdict, req), nil
	})
	if !ok {
		return
	}
	r.rec.Proposals = chain.Proposals
	r.rec.RiskChain = chain.RiskChain
	r.rec.Authority = chain.Authority
	if chain.Abort != nil {
		r.rec.Abort = chain.Abort
		r.log.Warnf("运行终止 %s", chain.Abort)
		return
	}
	r.rec.Accepted = chain.Accepted
}

type stageResult[T any] struct {
	value T
	err   error
}

// stage 在独立 goroutine 中执行阶段，并与全局截止时间赛跑；超时后迟到的结果被丢弃。
func stage[T any](ctx context.Context, r *run, name types.Stage, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	if ctx.Err() != nil {
		r.abort(name, ctxReason(ctx), ctxDetail(ctx, name))
		return zero, false
	}
	timing := types.StageTiming{Stage: name, StartedAt: r.now()}
	done := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- stageResult[T]{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- stageResult[T]{value: v, err: err}
	}()

	var res stageResult[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		timing.FinishedAt = r.now()
		r.rec.Stages = append(r.rec.Stages, timing)
		r.abort(name, ctxReason(ctx), ctxDetail(ctx, name))
		return zero, false
	}
	timing.FinishedAt = r.now()
	r.rec.Stages = append(r.rec.Stages, timing)

	if res.err != nil {
		if errors.Is(res.err, types.ErrInsufficientQuorum) {
			r.abort(name, types.AbortInsufficientQuorum, res.err.Error())
		} else {
			r.abort(name, types.AbortStageFailed, res.err.Error())
		}
		return zero, false
	}
	if ctx.Err() != nil {
		r.abort(name, ctxReason(ctx), ctxDetail(ctx, name))
		return zero, false
	}
	return res.value, true
}

func ctxReason(ctx context.Context) types.AbortReason {
	if errors.Is(context.Cause(ctx), types.ErrGlobalTimeout) {
		return types.AbortGlobalTimeout
	}
	return types.AbortStageFailed
}

func ctxDetail(ctx context.Context, name types.Stage) string {
	return fmt.Sprintf("%s during %s", context.Cause(ctx), name)
}

func (s *Supervisor) finish(ctx context.Context, r *run) types.DecisionRecord {
	r.rec.FinishedAt = s.now()
	if r.rec.Abort == nil && r.rec.Accepted != nil {
		r.rec.Outcome = types.OutcomeExecuted
	} else {
		r.rec.Outcome = types.OutcomeAborted
		r.rec.Accepted = nil
	}
	r.log.Infof("运行结束 outcome=%s elapsed=%s", r.rec.Outcome, r.rec.FinishedAt.Sub(r.rec.StartedAt).Truncate(time.Millisecond))

	if s.recorder != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		if err := s.recorder.Save(saveCtx, r.rec); err != nil {
			r.log.Errorf("保存运行记录失败: %v", err)
		}
	}
	return r.rec
}
