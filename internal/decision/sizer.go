package decision

import (
	"context"
	"fmt"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/pkg/decimalx"
	"qihuo/internal/types"

	"github.com/shopspring/decimal"
)

// LinearSizer 按置信度线性放大仓位：size = max × clamp((conf-floor)/(1-floor), 0, 1)。
// 每次修订按 Shrink 缩小。
type LinearSizer struct {
	MaxPosition     float64
	Floor           float64
	StopDistancePct float64
	Shrink          float64
}

func NewLinearSizer(cfg config.DecisionConfig) *LinearSizer {
	return &LinearSizer{
		MaxPosition:     cfg.MaxPositionPerSymbol,
		Floor:           cfg.SizingFloor,
		StopDistancePct: cfg.StopDistancePct,
		Shrink:          cfg.RevisionShrink,
	}
}

// Size 只依赖置信度与修订次数，对置信度单调不减。
func (s *LinearSizer) Size(confidence float64, revision int) float64 {
	floor := decimalx.From(s.Floor)
	span := decimalx.One.Sub(floor)
	if !span.IsPositive() {
		return 0
	}
	frac := decimalx.Clamp(decimalx.From(confidence).Sub(floor).Div(span), decimalx.Zero, decimalx.One)
	size := decimalx.From(s.MaxPosition).Mul(frac)
	if revision > 0 && s.Shrink > 0 && s.Shrink < 1 {
		size = size.Mul(decimalx.From(s.Shrink).Pow(decimal.NewFromInt(int64(revision))))
	}
	return decimalx.Float(size.Round(6))
}

func (s *LinearSizer) Propose(ctx context.Context, in ProposalInput) (types.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return types.Proposal{}, err
	}
	p := types.Proposal{
		Instrument: in.Request.Instrument,
		Revision:   in.Revision,
		Side:       in.Verdict.Direction,
	}
	if p.Side == types.DirectionFlat || p.Side == "" {
		p.Side = types.DirectionFlat
		p.Rationale = "verdict is flat, no position"
		return p, nil
	}
	p.SizeFraction = s.Size(in.Verdict.Confidence, in.Revision)
	p.Entry, p.Stop = StopLevels(p.Side, in.Request.ReferencePrice, s.StopDistancePct)
	p.Rationale = fmt.Sprintf("%s at confidence %.2f sized %.4f", p.Side, in.Verdict.Confidence, p.SizeFraction)
	if len(in.Feedback) > 0 {
		p.Rationale += " after feedback: " + strings.Join(in.Feedback, "; ")
	}
	return p, nil
}

// StopLevels 由参考价推算入场与止损；参考价缺失时均为 0。
func StopLevels(side types.Direction, ref, distancePct float64) (entry, stop float64) {
	if ref <= 0 || distancePct <= 0 {
		return 0, 0
	}
	price := decimalx.From(ref)
	dist := decimalx.From(distancePct)
	switch side {
	case types.DirectionLong:
		return ref, decimalx.Float(price.Mul(decimalx.One.Sub(dist)).Round(4))
	case types.DirectionShort:
		return ref, decimalx.Float(price.Mul(decimalx.One.Add(dist)).Round(4))
	default:
		return ref, 0
	}
}
