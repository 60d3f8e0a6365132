package decision

import (
	"context"
	"testing"

	"qihuo/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearSizer_Monotonic(t *testing.T) {
	s := NewLinearSizer(decisionConfig())
	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.05 {
		size := s.Size(c, 0)
		assert.GreaterOrEqual(t, size, prev)
		assert.LessOrEqual(t, size, 0.2)
		prev = size
	}
	assert.Equal(t, 0.0, s.Size(0.3, 0))
	assert.Equal(t, 0.2, s.Size(1, 0))
	assert.Equal(t, 0.05, s.Size(1, 2))
}

func TestLinearSizer_ShortStops(t *testing.T) {
	s := NewLinearSizer(decisionConfig())
	p, err := s.Propose(context.Background(), ProposalInput{
		Request: sampleReq,
		Verdict: types.DebateVerdict{Direction: types.DirectionShort, Confidence: 0.65},
	})
	require.NoError(t, err)
	assert.Equal(t, 3500.0, p.Entry)
	assert.Equal(t, 3570.0, p.Stop)
	assert.InDelta(t, 0.1, p.SizeFraction, 1e-6)
}

func TestRuleRiskGate(t *testing.T) {
	g := NewRuleRiskGate(decisionConfig())
	v := longVerdict(0.8)
	cases := []struct {
		name      string
		p         types.Proposal
		outcome   types.RiskOutcome
		violation string
		size      float64
	}{
		{"approved", types.Proposal{Side: types.DirectionLong, SizeFraction: 0.1, Entry: 100, Stop: 98}, types.RiskApproved, "", 0},
		{"empty", types.Proposal{Side: types.DirectionLong}, types.RiskRejected, types.ViolationEmptySize, 0},
		{"stop side", types.Proposal{Side: types.DirectionLong, SizeFraction: 0.1, Entry: 100, Stop: 101}, types.RiskRejected, types.ViolationStopSide, 0},
		{"clip", types.Proposal{Side: types.DirectionLong, SizeFraction: 0.9}, types.RiskModified, types.ViolationMaxPosition, 0.2},
		{"flat", types.Proposal{Side: types.DirectionFlat}, types.RiskApproved, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := g.Evaluate(context.Background(), tc.p, v)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, d.Outcome)
			if tc.violation != "" {
				assert.Contains(t, d.Violations, tc.violation)
			}
			if tc.outcome == types.RiskModified {
				require.NotNil(t, d.Modified)
				assert.Equal(t, tc.size, d.Modified.SizeFraction)
			}
		})
	}
}

func TestRuleRiskGate_MarginRatio(t *testing.T) {
	cfg := decisionConfig()
	cfg.MaxPositionPerSymbol = 1
	cfg.MarginRate = 0.5
	cfg.MaxMarginRatio = 0.25
	d, err := NewRuleRiskGate(cfg).Evaluate(context.Background(), types.Proposal{Side: types.DirectionLong, SizeFraction: 0.8}, longVerdict(0.9))
	require.NoError(t, err)
	assert.Equal(t, types.RiskModified, d.Outcome)
	assert.Equal(t, []string{types.ViolationMarginRatio}, d.Violations)
	assert.Equal(t, 0.5, d.Modified.SizeFraction)
}

func TestPortfolioAuthority_Exposure(t *testing.T) {
	cfg := decisionConfig()
	cfg.CurrentExposure = 0.9
	a := NewPortfolioAuthority(cfg)
	d, err := a.Decide(context.Background(), types.Proposal{Instrument: "CU", Side: types.DirectionLong, SizeFraction: 0.2}, types.RiskDecision{})
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "exposure")

	d, err = a.Decide(context.Background(), types.Proposal{Instrument: "CU", Side: types.DirectionLong, SizeFraction: 0.1}, types.RiskDecision{})
	require.NoError(t, err)
	assert.True(t, d.Accepted)
}
