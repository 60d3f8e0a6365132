package supervisor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/debate"
	"qihuo/internal/decision"
	"qihuo/internal/producer"
	"qihuo/internal/reasoning"
	"qihuo/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func testConfig(weights map[string]float64) *config.Config {
	cfg := &config.Config{
		Producers: make(map[string]config.ProducerConfig, len(weights)),
		Quorum:    config.QuorumConfig{MinProducers: 1},
		Debate: config.DebateConfig{
			MaxRounds:                  3,
			PerCallTimeoutMs:           1000,
			RetryAttempts:              1,
			MinimumConfidenceThreshold: 0.5,
			DegradedConfidencePenalty:  0.5,
			Convergence:                config.ConvergenceModerator,
		},
		Decision: config.DecisionConfig{
			Mode:                 config.DecisionModeRules,
			MaxMarginRatio:       0.3,
			MarginRate:           0.1,
			MaxPositionPerSymbol: 0.2,
			MaxRevisionAttempts:  2,
			HardConfidenceFloor:  0.3,
			SizingFloor:          0.3,
			StopDistancePct:      0.02,
			RevisionShrink:       0.5,
			MaxTotalExposure:     1,
		},
		Global: config.GlobalConfig{MaxConcurrentProducers: 6, WallClockBudgetSeconds: 5},
	}
	for id, w := range weights {
		cfg.Producers[id] = config.ProducerConfig{Enabled: true, Weight: w, TimeoutMs: 50}
	}
	return cfg
}

func answering(id string, sig types.Signal, conf float64) producer.Producer {
	return producer.Func{Name: id, Fn: func(context.Context, producer.Query) (producer.Output, error) {
		return producer.Output{Signal: sig, Confidence: conf, Rationale: id + " view"}, nil
	}}
}

func hanging(id string) producer.Producer {
	return producer.Func{Name: id, Fn: func(ctx context.Context, _ producer.Query) (producer.Output, error) {
		<-ctx.Done()
		return producer.Output{}, ctx.Err()
	}}
}

func failing(id string) producer.Producer {
	return producer.Func{Name: id, Fn: func(context.Context, producer.Query) (producer.Output, error) {
		return producer.Output{}, errors.New("feed unavailable")
	}}
}

// debateScript 让多空发言，主持人按 conclude 决定是否收敛。
func debateScript(conclude bool, direction string, conf float64) reasoning.Reasoner {
	return reasoning.Func(func(_ context.Context, rq reasoning.Request) (reasoning.Response, error) {
		view := rq.Data.(debate.View)
		switch types.DebateRole(rq.Role) {
		case types.RoleBull:
			return reasoning.NewResponse(rq.Role, fmt.Sprintf(`{"argument":"基差走强 r%d","confidence":0.7}`, view.Round))
		case types.RoleBear:
			return reasoning.NewResponse(rq.Role, fmt.Sprintf(`{"argument":"库存累积 r%d","confidence":0.4}`, view.Round))
		default:
			ruling := "continue"
			if conclude || view.Final {
				ruling = "conclude"
			}
			return reasoning.NewResponse(rq.Role, fmt.Sprintf(`{"decision":%q,"direction":%q,"confidence":%v,"rationale":"r%d"}`, ruling, direction, conf, view.Round))
		}
	})
}

func request(ids ...string) types.AnalysisRequest {
	req := types.NewAnalysisRequest("rb", asOf, ids)
	req.ReferencePrice = 3500
	return req
}

func build(cfg *config.Config, producers []producer.Producer, r reasoning.Reasoner, opts ...Option) *Supervisor {
	byID := make(map[string]producer.Producer, len(producers))
	for _, p := range producers {
		byID[p.ID()] = p
	}
	return New(cfg, byID, debate.New(r, cfg.Debate), decision.NewChainFromConfig(cfg.Decision, r), opts...)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Save(ctx context.Context, rec types.DecisionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// 五个模块两个超时：剩余权重重新归一化，运行被执行并持久化。
func TestSupervisor_TimeoutsRenormalizeAndExecute(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 0.3, "b": 0.25, "c": 0.2, "d": 0.15, "e": 0.1})
	rec := new(MockRecorder)
	rec.On("Save", mock.Anything, mock.MatchedBy(func(r types.DecisionRecord) bool { return r.Executed() })).Return(nil).Once()

	s := build(cfg, []producer.Producer{
		answering("a", types.SignalBullish, 0.8),
		answering("b", types.SignalBullish, 0.7),
		answering("c", types.SignalBearish, 0.6),
		hanging("d"),
		hanging("e"),
	}, debateScript(true, "long", 0.8), WithRecorder(rec))

	out := s.Run(context.Background(), request("a", "b", "c", "d", "e"))
	require.Nil(t, out.Abort, "abort: %v", out.Abort)
	assert.Equal(t, types.OutcomeExecuted, out.Outcome)
	_, err := uuid.Parse(out.RunID)
	assert.NoError(t, err)

	require.Len(t, out.Producers, 5)
	assert.Equal(t, types.StatusTimeout, out.Producers[3].Status)
	assert.Equal(t, types.StatusTimeout, out.Producers[4].Status)

	require.NotNil(t, out.Composite)
	require.Len(t, out.Composite.Contributions, 3)
	assert.InDelta(t, 0.4, out.Composite.Contributions[0].Weight, 1e-9)
	assert.InDelta(t, 1.0/3, out.Composite.Contributions[1].Weight, 1e-9)
	assert.InDelta(t, 0.8/3, out.Composite.Contributions[2].Weight, 1e-9)
	assert.InDelta(t, 1.0, out.Composite.WeightSum(), 1e-12)

	require.NotNil(t, out.Verdict)
	assert.Equal(t, types.TerminationConverged, out.Verdict.Termination)
	require.NotNil(t, out.Accepted)
	assert.Equal(t, types.DirectionLong, out.Accepted.Side)
	assert.Equal(t, "RB", out.Accepted.Instrument)

	stages := make([]types.Stage, 0, len(out.Stages))
	for _, st := range out.Stages {
		stages = append(stages, st.Stage)
		assert.False(t, st.FinishedAt.Before(st.StartedAt))
	}
	assert.Equal(t, []types.Stage{types.StageCoordinator, types.StageAggregator, types.StageDebate, types.StageDecision}, stages)
	rec.AssertExpectations(t)
}

func TestSupervisor_RoundLimit(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	cfg.Debate.MaxRounds = 2
	out := build(cfg, []producer.Producer{answering("a", types.SignalBearish, 0.9)}, debateScript(false, "short", 0.75)).
		Run(context.Background(), request("a"))
	require.NotNil(t, out.Verdict)
	assert.Equal(t, types.TerminationRoundLimitReached, out.Verdict.Termination)
	assert.Equal(t, 2, out.Verdict.RoundsUsed)
	assert.Len(t, out.Debate, 4)
	assert.Equal(t, types.OutcomeExecuted, out.Outcome)
	assert.Equal(t, types.DirectionShort, out.Accepted.Side)
}

type fixedProposer struct{ size float64 }

func (f fixedProposer) Propose(_ context.Context, in decision.ProposalInput) (types.Proposal, error) {
	return types.Proposal{Side: in.Verdict.Direction, SizeFraction: f.size}, nil
}

func TestSupervisor_OversizedProposalClipped(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	r := debateScript(true, "long", 0.9)
	chain := decision.NewChain(fixedProposer{size: 0.25}, decision.NewRuleRiskGate(cfg.Decision), decision.NewPortfolioAuthority(cfg.Decision), cfg.Decision)
	s := New(cfg, map[string]producer.Producer{"a": answering("a", types.SignalBullish, 0.9)}, debate.New(r, cfg.Debate), chain)

	out := s.Run(context.Background(), request("a"))
	require.Len(t, out.RiskChain, 1)
	assert.Equal(t, types.RiskModified, out.RiskChain[0].Outcome)
	require.NotNil(t, out.Accepted)
	assert.Equal(t, 0.2, out.Accepted.SizeFraction)
}

func TestSupervisor_RiskRejectedEveryRevision(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	cfg.Debate.MinimumConfidenceThreshold = 0.2
	out := build(cfg, []producer.Producer{answering("a", types.SignalBullish, 0.6)}, debateScript(true, "long", 0.25)).
		Run(context.Background(), request("a"))
	assert.Equal(t, types.OutcomeAborted, out.Outcome)
	require.NotNil(t, out.Abort)
	assert.Equal(t, types.AbortRiskRejected, out.Abort.Reason)
	assert.Len(t, out.Proposals, 3)
	assert.Len(t, out.RiskChain, 3)
	assert.Nil(t, out.Accepted)
}

func TestSupervisor_QuorumFailure(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 0.5, "b": 0.5})
	called := false
	r := reasoning.Func(func(context.Context, reasoning.Request) (reasoning.Response, error) {
		called = true
		return reasoning.Response{}, errors.New("should not be called")
	})
	out := build(cfg, []producer.Producer{failing("a"), hanging("b")}, r).Run(context.Background(), request("a", "b"))

	assert.Equal(t, types.OutcomeAborted, out.Outcome)
	require.NotNil(t, out.Abort)
	assert.Equal(t, types.AbortInsufficientQuorum, out.Abort.Reason)
	assert.Equal(t, types.StageAggregator, out.Abort.Stage)
	assert.Len(t, out.Producers, 2)
	assert.Nil(t, out.Composite)
	assert.Nil(t, out.Verdict)
	assert.False(t, called)
}

func TestSupervisor_InvalidRequest(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	out := build(cfg, []producer.Producer{answering("a", types.SignalBullish, 0.6)}, debateScript(true, "long", 0.8)).
		Run(context.Background(), types.AnalysisRequest{AsOf: asOf, Producers: []string{"a"}})
	require.NotNil(t, out.Abort)
	assert.Equal(t, types.AbortInvalidRequest, out.Abort.Reason)
	assert.Equal(t, types.StageSupervisor, out.Abort.Stage)
	assert.Empty(t, out.Stages)
}

type blockingDebater struct{ release chan struct{} }

// Run 忽略 ctx，模拟不守约的阶段。
func (b blockingDebater) Run(context.Context, types.CompositeSignal, types.AnalysisRequest) types.DebateOutcome {
	<-b.release
	return types.DebateOutcome{}
}

func TestSupervisor_GlobalTimeout(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	release := make(chan struct{})
	defer close(release)

	rec := new(MockRecorder)
	rec.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	s := New(cfg, map[string]producer.Producer{"a": answering("a", types.SignalBullish, 0.8)},
		blockingDebater{release: release}, decision.NewChainFromConfig(cfg.Decision, nil),
		WithBudget(80*time.Millisecond), WithRecorder(rec))

	start := time.Now()
	out := s.Run(context.Background(), request("a"))
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, out.Abort)
	assert.Equal(t, types.AbortGlobalTimeout, out.Abort.Reason)
	assert.Equal(t, types.StageDebate, out.Abort.Stage)
	assert.NotNil(t, out.Composite)
	assert.Nil(t, out.Verdict)
	assert.Equal(t, types.OutcomeAborted, out.Outcome)
	rec.AssertExpectations(t)
}

func TestSupervisor_ParentCancel(t *testing.T) {
	cfg := testConfig(map[string]float64{"a": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := build(cfg, []producer.Producer{answering("a", types.SignalBullish, 0.8)}, debateScript(true, "long", 0.8)).
		Run(ctx, request("a"))
	require.NotNil(t, out.Abort)
	assert.Equal(t, types.AbortStageFailed, out.Abort.Reason)
	assert.Equal(t, types.StageCoordinator, out.Abort.Stage)
}
