package debate

import (
	"fmt"
	"math"

	"qihuo/internal/types"
)

// Ruling 是主持人在一轮结束后的裁定。
type Ruling struct {
	Conclude   bool
	Direction  types.Direction
	Confidence float64
	Rationale  string
}

// ConvergencePolicy decides whether a round ends the debate, given the moderator's ruling.
type ConvergencePolicy interface {
	Decide(round int, bull, bear types.DebateArgument, moderator Ruling) Ruling
}

// ModeratorPolicy 完全采纳主持人的裁定。
type ModeratorPolicy struct{}

func (ModeratorPolicy) Decide(_ int, _, _ types.DebateArgument, moderator Ruling) Ruling {
	return moderator
}

// ConfidenceGapPolicy 在主持人要求继续但双方置信度差距超过 Gap 时提前结束，方向归于更有信心的一方。
type ConfidenceGapPolicy struct {
	Gap float64
}

func (p ConfidenceGapPolicy) Decide(_ int, bull, bear types.DebateArgument, moderator Ruling) Ruling {
	if moderator.Conclude || p.Gap <= 0 {
		return moderator
	}
	gap := bull.Confidence - bear.Confidence
	if math.Abs(gap) <= p.Gap {
		return moderator
	}
	winner := bull
	dir := types.DirectionLong
	if gap < 0 {
		winner = bear
		dir = types.DirectionShort
	}
	return Ruling{
		Conclude:   true,
		Direction:  dir,
		Confidence: winner.Confidence,
		Rationale:  fmt.Sprintf("confidence gap %.2f exceeds %.2f in favour of %s", math.Abs(gap), p.Gap, winner.Role),
	}
}
