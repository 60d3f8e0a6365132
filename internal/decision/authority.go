package decision

import (
	"context"
	"fmt"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/pkg/decimalx"
	"qihuo/internal/types"
)

// PortfolioAuthority 从组合层面做最终决定：黑名单品种与总敞口上限。
type PortfolioAuthority struct {
	Blocked          map[string]struct{}
	MaxTotalExposure float64
	CurrentExposure  float64
}

func NewPortfolioAuthority(cfg config.DecisionConfig) *PortfolioAuthority {
	blocked := make(map[string]struct{}, len(cfg.BlockedSymbols))
	for _, sym := range cfg.BlockedSymbols {
		blocked[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	return &PortfolioAuthority{
		Blocked:          blocked,
		MaxTotalExposure: cfg.MaxTotalExposure,
		CurrentExposure:  cfg.CurrentExposure,
	}
}

func (a *PortfolioAuthority) Decide(ctx context.Context, p types.Proposal, _ types.RiskDecision) (types.AuthorityDecision, error) {
	if err := ctx.Err(); err != nil {
		return types.AuthorityDecision{}, err
	}
	return a.check(p), nil
}

func (a *PortfolioAuthority) check(p types.Proposal) types.AuthorityDecision {
	if _, ok := a.Blocked[strings.ToUpper(p.Instrument)]; ok {
		return types.AuthorityDecision{Accepted: false, Reason: fmt.Sprintf("instrument %s is blocked", p.Instrument)}
	}
	if p.Side != types.DirectionFlat && a.MaxTotalExposure > 0 {
		total := decimalx.From(a.CurrentExposure).Add(decimalx.From(p.SizeFraction))
		if total.GreaterThan(decimalx.From(a.MaxTotalExposure)) {
			return types.AuthorityDecision{
				Accepted: false,
				Reason:   fmt.Sprintf("total exposure %s exceeds %.2f", total.StringFixed(4), a.MaxTotalExposure),
			}
		}
	}
	return types.AuthorityDecision{Accepted: true, Reason: "within portfolio limits"}
}
