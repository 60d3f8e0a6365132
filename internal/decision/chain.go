package decision

import (
	"context"
	"fmt"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/reasoning"
	"qihuo/internal/types"
)

// Chain 串联交易员、风控与最终决策：提案 → 风控（否决时带原因重新提案）→ 最终决定。
type Chain struct {
	proposer  ProposalStage
	gate      RiskGate
	authority FinalAuthority

	maxRevisions     int
	proceedOnLowConf bool
}

func NewChain(proposer ProposalStage, gate RiskGate, authority FinalAuthority, cfg config.DecisionConfig) *Chain {
	return &Chain{
		proposer:         proposer,
		gate:             gate,
		authority:        authority,
		maxRevisions:     max(cfg.MaxRevisionAttempts, 0),
		proceedOnLowConf: cfg.ProceedOnLowConfidence,
	}
}

// NewChainFromConfig 依据 decision.mode 选择规则型或推理型阶段。
func NewChainFromConfig(cfg config.DecisionConfig, r reasoning.Reasoner) *Chain {
	rules := NewRuleRiskGate(cfg)
	portfolio := NewPortfolioAuthority(cfg)
	if cfg.Mode == config.DecisionModeReasoning && r != nil {
		return NewChain(NewReasoningProposer(r, cfg), NewReasoningRiskGate(r, rules), NewReasoningAuthority(r, portfolio), cfg)
	}
	return NewChain(NewLinearSizer(cfg), rules, portfolio, cfg)
}

func abort(reason types.AbortReason, detail string) *types.Abort {
	return &types.Abort{Stage: types.StageDecision, Reason: reason, Detail: detail}
}

// Run 最多产生 max_revision_attempts+1 个方案；每个风控结论按顺序追加到修订链。
func (c *Chain) Run(ctx context.Context, verdict types.DebateVerdict, req types.AnalysisRequest) types.ChainOutcome {
	var out types.ChainOutcome
	log := logger.With("instrument", req.Instrument)

	if verdict.LowConfidence && !c.proceedOnLowConf {
		out.Abort = abort(types.AbortLowConfidence, fmt.Sprintf("verdict confidence %.2f below threshold", verdict.Confidence))
		log.Infof("裁决置信度过低，终止决策链")
		return out
	}

	var (
		feedback []string
		previous *types.Proposal
	)
	for revision := 0; revision <= c.maxRevisions; revision++ {
		proposal, err := c.proposer.Propose(ctx, ProposalInput{
			Request:  req,
			Verdict:  verdict,
			Revision: revision,
			Feedback: feedback,
			Previous: previous,
		})
		if err != nil {
			out.Abort = abort(types.AbortStageFailed, "proposal: "+err.Error())
			return out
		}
		proposal.Instrument = req.Instrument
		proposal.Revision = revision
		out.Proposals = append(out.Proposals, proposal)

		risk, err := c.gate.Evaluate(ctx, proposal, verdict)
		if err != nil {
			out.Abort = abort(types.AbortStageFailed, "risk gate: "+err.Error())
			return out
		}
		risk.Revision = revision
		out.RiskChain = append(out.RiskChain, risk)
		log.Infof("方案 #%d side=%s size=%.4f 风控=%s %s", revision, proposal.Side, proposal.SizeFraction, risk.Outcome, risk.Reason())

		if risk.Outcome == types.RiskRejected {
			feedback = append(feedback, fmt.Sprintf("revision %d: %s", revision, risk.Reason()))
			p := proposal
			previous = &p
			continue
		}

		effective := risk.Effective(proposal)
		decision, err := c.authority.Decide(ctx, effective, risk)
		if err != nil {
			out.Abort = abort(types.AbortStageFailed, "final authority: "+err.Error())
			return out
		}
		out.Authority = &decision
		if !decision.Accepted {
			out.Abort = abort(types.AbortAuthorityVeto, decision.Reason)
			log.Infof("最终决策否决: %s", decision.Reason)
			return out
		}
		out.Accepted = &effective
		log.Infof("最终决策接受 side=%s size=%.4f", effective.Side, effective.SizeFraction)
		return out
	}

	out.Abort = abort(types.AbortRiskRejected, fmt.Sprintf("%v after %d proposals", types.ErrRiskRejected, len(out.Proposals)))
	return out
}
