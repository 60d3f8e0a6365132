package types

import (
	"fmt"
	"time"
)

type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeAborted  Outcome = "aborted"
)

type Stage string

const (
	StageSupervisor  Stage = "supervisor"
	StageCoordinator Stage = "coordinator"
	StageAggregator  Stage = "aggregator"
	StageDebate      Stage = "debate"
	StageDecision    Stage = "decision_chain"
)

type AbortReason string

const (
	AbortInvalidRequest     AbortReason = "InvalidRequest"
	AbortInsufficientQuorum AbortReason = "InsufficientQuorum"
	AbortLowConfidence      AbortReason = "LowConfidence"
	AbortRiskRejected       AbortReason = "RiskRejected"
	AbortAuthorityVeto      AbortReason = "AuthorityVeto"
	AbortStageFailed        AbortReason = "StageFailed"
	AbortGlobalTimeout      AbortReason = "GlobalTimeout"
)

// Abort 指明终止运行的阶段与原因。
type Abort struct {
	Stage  Stage       `json:"stage"`
	Reason AbortReason `json:"reason"`
	Detail string      `json:"detail,omitempty"`
}

func (a Abort) String() string {
	if a.Detail == "" {
		return fmt.Sprintf("%s@%s", a.Reason, a.Stage)
	}
	return fmt.Sprintf("%s@%s: %s", a.Reason, a.Stage, a.Detail)
}

type StageTiming struct {
	Stage      Stage     `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// DecisionRecord is the single persisted artifact of a run. Built once by the
// supervisor from the immutable stage outputs and never mutated afterwards.
type DecisionRecord struct {
	RunID          string             `json:"run_id"`
	Request        AnalysisRequest    `json:"request"`
	Outcome        Outcome            `json:"outcome"`
	Accepted       *Proposal          `json:"accepted,omitempty"`
	Abort          *Abort             `json:"abort,omitempty"`
	Producers      []ProducerResult   `json:"producers"`
	Composite      *CompositeSignal   `json:"composite,omitempty"`
	Debate         []DebateArgument   `json:"debate,omitempty"`
	ModeratorNotes []ModeratorNote    `json:"moderator_notes,omitempty"`
	Verdict        *DebateVerdict     `json:"verdict,omitempty"`
	Proposals      []Proposal         `json:"proposals,omitempty"`
	RiskChain      []RiskDecision     `json:"risk_chain,omitempty"`
	Authority      *AuthorityDecision `json:"authority,omitempty"`
	Stages         []StageTiming      `json:"stages"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

func (r DecisionRecord) Executed() bool { return r.Outcome == OutcomeExecuted }

// AbortReasonText 返回可读的终止原因；执行成功时为空。
func (r DecisionRecord) AbortReasonText() string {
	if r.Abort == nil {
		return ""
	}
	return r.Abort.String()
}
