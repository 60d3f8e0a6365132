package decision

import (
	"context"
	"fmt"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/reasoning"
	"qihuo/internal/types"
)

// ReasoningProposer 由推理服务扮演交易员。
type ReasoningProposer struct {
	reasoner    reasoning.Reasoner
	maxPosition float64
}

func NewReasoningProposer(r reasoning.Reasoner, cfg config.DecisionConfig) *ReasoningProposer {
	return &ReasoningProposer{reasoner: r, maxPosition: cfg.MaxPositionPerSymbol}
}

type proposerView struct {
	Instrument     string
	AsOf           string
	Revision       int
	Verdict        types.DebateVerdict
	Feedback       []string
	ReferencePrice float64
	MaxPosition    float64
}

type proposalReply struct {
	Side         string  `json:"side"`
	SizeFraction float64 `json:"size_fraction"`
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	Rationale    string  `json:"rationale"`
}

func (p *ReasoningProposer) Propose(ctx context.Context, in ProposalInput) (types.Proposal, error) {
	resp, err := p.reasoner.Reason(ctx, reasoning.Request{
		Role: config.RoleProposer,
		Data: proposerView{
			Instrument:     in.Request.Instrument,
			AsOf:           in.Request.AsOfDate(),
			Revision:       in.Revision,
			Verdict:        in.Verdict,
			Feedback:       in.Feedback,
			ReferencePrice: in.Request.ReferencePrice,
			MaxPosition:    p.maxPosition,
		},
	})
	if err != nil {
		return types.Proposal{}, err
	}
	var reply proposalReply
	if err := resp.Decode(&reply); err != nil {
		return types.Proposal{}, err
	}
	side, ok := types.ParseDirection(reply.Side)
	if !ok {
		return types.Proposal{}, fmt.Errorf("unrecognised side %q", reply.Side)
	}
	return types.Proposal{
		Instrument:   in.Request.Instrument,
		Revision:     in.Revision,
		Side:         side,
		SizeFraction: types.ClampUnit(reply.SizeFraction),
		Entry:        reply.Entry,
		Stop:         reply.Stop,
		Rationale:    strings.TrimSpace(reply.Rationale),
	}, nil
}

// ReasoningRiskGate 由推理服务审查，再经规则闸门复核，硬约束始终成立。
type ReasoningRiskGate struct {
	reasoner reasoning.Reasoner
	rules    *RuleRiskGate
}

func NewReasoningRiskGate(r reasoning.Reasoner, rules *RuleRiskGate) *ReasoningRiskGate {
	return &ReasoningRiskGate{reasoner: r, rules: rules}
}

type riskLimits struct {
	MaxPosition         float64
	MaxMarginRatio      float64
	MarginRate          float64
	HardConfidenceFloor float64
}

type riskView struct {
	Instrument string
	Proposal   types.Proposal
	Verdict    types.DebateVerdict
	Limits     riskLimits
}

type riskReply struct {
	Outcome      string   `json:"outcome"`
	SizeFraction *float64 `json:"size_fraction"`
	Violations   []string `json:"violations"`
	Note         string   `json:"note"`
}

func (g *ReasoningRiskGate) Evaluate(ctx context.Context, p types.Proposal, v types.DebateVerdict) (types.RiskDecision, error) {
	resp, err := g.reasoner.Reason(ctx, reasoning.Request{
		Role: config.RoleRisk,
		Data: riskView{
			Instrument: p.Instrument,
			Proposal:   p,
			Verdict:    v,
			Limits: riskLimits{
				MaxPosition:         g.rules.MaxPosition,
				MaxMarginRatio:      g.rules.MaxMarginRatio,
				MarginRate:          g.rules.MarginRate,
				HardConfidenceFloor: g.rules.HardConfidenceFloor,
			},
		},
	})
	if err != nil {
		return types.RiskDecision{}, err
	}
	var reply riskReply
	if err := resp.Decode(&reply); err != nil {
		return types.RiskDecision{}, err
	}
	d := types.RiskDecision{Revision: p.Revision, Violations: reply.Violations, Note: strings.TrimSpace(reply.Note)}
	switch types.RiskOutcome(strings.ToLower(strings.TrimSpace(reply.Outcome))) {
	case types.RiskApproved:
		d.Outcome = types.RiskApproved
	case types.RiskRejected:
		d.Outcome = types.RiskRejected
		return d, nil
	case types.RiskModified:
		d.Outcome = types.RiskModified
		mod := p
		if reply.SizeFraction != nil {
			mod.SizeFraction = types.ClampUnit(*reply.SizeFraction)
		}
		d.Modified = &mod
	default:
		return types.RiskDecision{}, fmt.Errorf("unrecognised risk outcome %q", reply.Outcome)
	}
	return g.recheck(p, v, d), nil
}

// recheck 对推理结论生效后的方案再跑一次规则闸门。
func (g *ReasoningRiskGate) recheck(p types.Proposal, v types.DebateVerdict, d types.RiskDecision) types.RiskDecision {
	effective := d.Effective(p)
	rule := g.rules.check(effective, v)
	switch rule.Outcome {
	case types.RiskRejected:
		rule.Violations = mergeViolations(d.Violations, rule.Violations)
		return rule
	case types.RiskModified:
		rule.Violations = mergeViolations(d.Violations, rule.Violations)
		if d.Note != "" {
			rule.Note = d.Note + "; " + rule.Note
		}
		return rule
	default:
		return d
	}
}

func mergeViolations(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ReasoningAuthority 先执行组合规则，再由推理服务做最终判断。
type ReasoningAuthority struct {
	reasoner reasoning.Reasoner
	rules    *PortfolioAuthority
}

func NewReasoningAuthority(r reasoning.Reasoner, rules *PortfolioAuthority) *ReasoningAuthority {
	return &ReasoningAuthority{reasoner: r, rules: rules}
}

type authorityView struct {
	Instrument string
	Proposal   types.Proposal
	Risk       types.RiskDecision
}

type authorityReply struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

func (a *ReasoningAuthority) Decide(ctx context.Context, p types.Proposal, risk types.RiskDecision) (types.AuthorityDecision, error) {
	if d := a.rules.check(p); !d.Accepted {
		return d, nil
	}
	resp, err := a.reasoner.Reason(ctx, reasoning.Request{
		Role: config.RoleAuthority,
		Data: authorityView{Instrument: p.Instrument, Proposal: p, Risk: risk},
	})
	if err != nil {
		return types.AuthorityDecision{}, err
	}
	var reply authorityReply
	if err := resp.Decode(&reply); err != nil {
		return types.AuthorityDecision{}, err
	}
	return types.AuthorityDecision{Accepted: reply.Accepted, Reason: strings.TrimSpace(reply.Reason)}, nil
}
