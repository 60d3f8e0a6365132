package types

import (
	"strings"
	"time"
)

type DebateRole string

const (
	RoleBull      DebateRole = "bull"
	RoleBear      DebateRole = "bear"
	RoleModerator DebateRole = "moderator"
)

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// DirectionFromSignal: Bullish→Long, Bearish→Short, otherwise Flat.
func DirectionFromSignal(s Signal) Direction {
	switch s {
	case SignalBullish:
		return DirectionLong
	case SignalBearish:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// ParseDirection accepts long/short/flat and the usual synonyms.
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy", "bullish", "做多", "多":
		return DirectionLong, true
	case "short", "sell", "bearish", "做空", "空":
		return DirectionShort, true
	case "flat", "hold", "neutral", "wait", "观望", "持有观望":
		return DirectionFlat, true
	default:
		return "", false
	}
}

// Sign 返回 +1（多）/ -1（空）/ 0。
func (d Direction) Sign() int {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

type TerminationReason string

const (
	TerminationConverged         TerminationReason = "converged"
	TerminationRoundLimitReached TerminationReason = "round_limit_reached"
	TerminationDegradedNoDebate  TerminationReason = "degraded_no_debate"
)

// DebateArgument 是一轮辩论中一方的发言；追加到历史后不可修改。
type DebateArgument struct {
	Round      int        `json:"round"`
	Role       DebateRole `json:"role"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ModeratorNote records the moderator's ruling after a round.
type ModeratorNote struct {
	Round     int    `json:"round"`
	Conclude  bool   `json:"conclude"`
	Rationale string `json:"rationale,omitempty"`
}

type DebateVerdict struct {
	Direction     Direction         `json:"direction"`
	Confidence    float64           `json:"confidence"`
	RoundsUsed    int               `json:"rounds_used"`
	Termination   TerminationReason `json:"termination_reason"`
	LowConfidence bool              `json:"low_confidence"`
	Rationale     string            `json:"rationale,omitempty"`
}

// DebateOutcome bundles the verdict with the append-only history that produced it.
type DebateOutcome struct {
	Verdict        DebateVerdict    `json:"verdict"`
	History        []DebateArgument `json:"history"`
	Notes          []ModeratorNote  `json:"moderator_notes,omitempty"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
}

// CloneHistory 返回历史的独立副本，供同一轮的多空双方读取。
func CloneHistory(h []DebateArgument) []DebateArgument {
	if len(h) == 0 {
		return nil
	}
	out := make([]DebateArgument, len(h))
	copy(out, h)
	return out
}
