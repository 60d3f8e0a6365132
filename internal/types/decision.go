package types

import "strings"

// Proposal 是交易员阶段给出的仓位方案。
type Proposal struct {
	Instrument   string    `json:"instrument"`
	Revision     int       `json:"revision"`
	Side         Direction `json:"side"`
	SizeFraction float64   `json:"size_fraction"`
	Entry        float64   `json:"entry,omitempty"`
	Stop         float64   `json:"stop,omitempty"`
	Rationale    string    `json:"rationale,omitempty"`
}

type RiskOutcome string

const (
	RiskApproved RiskOutcome = "approved"
	RiskModified RiskOutcome = "modified"
	RiskRejected RiskOutcome = "rejected"
)

// Violation names of the rule-based risk gate.
const (
	ViolationConfidenceFloor = "confidence_floor"
	ViolationEmptySize       = "empty_size"
	ViolationMaxPosition     = "max_position_per_symbol"
	ViolationMarginRatio     = "max_margin_ratio"
	ViolationStopSide        = "stop_side"
)

type RiskDecision struct {
	Revision   int         `json:"revision"`
	Outcome    RiskOutcome `json:"outcome"`
	Violations []string    `json:"violations,omitempty"`
	Modified   *Proposal   `json:"modified,omitempty"`
	Note       string      `json:"note,omitempty"`
}

// Effective returns the proposal that survives the gate: the clipped one when Modified.
func (d RiskDecision) Effective(p Proposal) Proposal {
	if d.Outcome == RiskModified && d.Modified != nil {
		return *d.Modified
	}
	return p
}

// Reason 拼接违规项，用于反馈给下一轮提案。
func (d RiskDecision) Reason() string {
	parts := append([]string(nil), d.Violations...)
	if note := strings.TrimSpace(d.Note); note != "" {
		parts = append(parts, note)
	}
	return strings.Join(parts, "; ")
}

type AuthorityDecision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ChainOutcome is everything the decision chain produced for one verdict.
type ChainOutcome struct {
	Proposals []Proposal         `json:"proposals"`
	RiskChain []RiskDecision     `json:"risk_chain"`
	Authority *AuthorityDecision `json:"authority,omitempty"`
	Accepted  *Proposal          `json:"accepted,omitempty"`
	Abort     *Abort             `json:"abort,omitempty"`
}
