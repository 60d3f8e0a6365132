package decision

import (
	"context"
	"fmt"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/pkg/decimalx"
	"qihuo/internal/types"
)

// RuleRiskGate 施加不可违反的硬约束。否决类违规优先于修改类。
type RuleRiskGate struct {
	MaxPosition         float64
	MaxMarginRatio      float64
	MarginRate          float64
	HardConfidenceFloor float64
}

func NewRuleRiskGate(cfg config.DecisionConfig) *RuleRiskGate {
	return &RuleRiskGate{
		MaxPosition:         cfg.MaxPositionPerSymbol,
		MaxMarginRatio:      cfg.MaxMarginRatio,
		MarginRate:          cfg.MarginRate,
		HardConfidenceFloor: cfg.HardConfidenceFloor,
	}
}

func (g *RuleRiskGate) Evaluate(ctx context.Context, p types.Proposal, v types.DebateVerdict) (types.RiskDecision, error) {
	if err := ctx.Err(); err != nil {
		return types.RiskDecision{}, err
	}
	return g.check(p, v), nil
}

func (g *RuleRiskGate) check(p types.Proposal, v types.DebateVerdict) types.RiskDecision {
	d := types.RiskDecision{Revision: p.Revision}
	if p.Side == types.DirectionFlat {
		d.Outcome = types.RiskApproved
		d.Note = "flat proposal carries no risk"
		return d
	}

	var reject []string
	if decimalx.LT(v.Confidence, g.HardConfidenceFloor) {
		reject = append(reject, types.ViolationConfidenceFloor)
	}
	if !decimalx.GT(p.SizeFraction, 0) {
		reject = append(reject, types.ViolationEmptySize)
	}
	if p.Entry > 0 && p.Stop > 0 {
		wrongSide := (p.Side == types.DirectionLong && p.Stop >= p.Entry) ||
			(p.Side == types.DirectionShort && p.Stop <= p.Entry)
		if wrongSide {
			reject = append(reject, types.ViolationStopSide)
		}
	}
	if len(reject) > 0 {
		d.Outcome = types.RiskRejected
		d.Violations = reject
		d.Note = fmt.Sprintf("rejected: %s", strings.Join(reject, ", "))
		return d
	}

	size := decimalx.From(p.SizeFraction)
	var clipped []string
	if maxPos := decimalx.From(g.MaxPosition); g.MaxPosition > 0 && size.GreaterThan(maxPos) {
		size = maxPos
		clipped = append(clipped, types.ViolationMaxPosition)
	}
	if g.MarginRate > 0 && g.MaxMarginRatio > 0 {
		rate := decimalx.From(g.MarginRate)
		limit := decimalx.From(g.MaxMarginRatio)
		if size.Mul(rate).GreaterThan(limit) {
			size = limit.Div(rate)
			clipped = append(clipped, types.ViolationMarginRatio)
		}
	}
	if len(clipped) == 0 {
		d.Outcome = types.RiskApproved
		return d
	}
	mod := p
	mod.SizeFraction = decimalx.Float(size.Truncate(6))
	d.Outcome = types.RiskModified
	d.Violations = clipped
	d.Modified = &mod
	d.Note = fmt.Sprintf("size clipped %.4f -> %.4f", p.SizeFraction, mod.SizeFraction)
	return d
}
