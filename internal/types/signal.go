package types

import "math"

const directionEpsilon = 1e-9

// Contribution 记录单个成功模块在合成信号中的归一化权重。
type Contribution struct {
	ProducerID     string  `json:"producer_id"`
	OriginalWeight float64 `json:"original_weight"`
	Weight         float64 `json:"weight"`
	Signal         Signal  `json:"signal"`
	Confidence     float64 `json:"confidence"`
}

type Exclusion struct {
	ProducerID string `json:"producer_id"`
	Reason     string `json:"reason"`
}

// CompositeSignal is the quorum-weighted fusion of all successful producer outputs.
type CompositeSignal struct {
	Score         float64        `json:"score"`
	Confidence    float64        `json:"confidence"`
	Contributors  int            `json:"contributors"`
	Contributions []Contribution `json:"contributions"`
	Excluded      []Exclusion    `json:"excluded,omitempty"`
}

// Direction maps the score to a signal; a zero score is Neutral.
func (c CompositeSignal) Direction() Signal {
	switch {
	case c.Score > directionEpsilon:
		return SignalBullish
	case c.Score < -directionEpsilon:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// WeightSum 返回归一化权重之和（成功时应为 1）。
func (c CompositeSignal) WeightSum() float64 {
	sum := 0.0
	for _, ct := range c.Contributions {
		sum += ct.Weight
	}
	return sum
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// ClampUnit bounds v to [0,1].
func ClampUnit(v float64) float64 { return clamp(v, 0, 1) }

// ClampSigned bounds v to [-1,1].
func ClampSigned(v float64) float64 { return clamp(v, -1, 1) }
