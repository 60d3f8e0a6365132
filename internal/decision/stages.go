package decision

import (
	"context"

	"qihuo/internal/types"
)

// ProposalInput 是交易员阶段的输入；Feedback 为上一版被否决的原因。
type ProposalInput struct {
	Request  types.AnalysisRequest
	Verdict  types.DebateVerdict
	Revision int
	Feedback []string
	Previous *types.Proposal
}

// ProposalStage 根据裁决给出仓位方案。
type ProposalStage interface {
	Propose(ctx context.Context, in ProposalInput) (types.Proposal, error)
}

// RiskGate 对方案施加硬约束，返回批准、修改或否决。
type RiskGate interface {
	Evaluate(ctx context.Context, p types.Proposal, v types.DebateVerdict) (types.RiskDecision, error)
}

// FinalAuthority 做最终接受或否决。
type FinalAuthority interface {
	Decide(ctx context.Context, p types.Proposal, risk types.RiskDecision) (types.AuthorityDecision, error)
}
