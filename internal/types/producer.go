package types

import (
	"strings"
	"time"
)

type ProducerStatus string

const (
	StatusSuccess ProducerStatus = "success"
	StatusTimeout ProducerStatus = "timeout"
	StatusFailed  ProducerStatus = "failed"
)

type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// Sign 返回 +1 / -1 / 0。
func (s Signal) Sign() int {
	switch s {
	case SignalBullish:
		return 1
	case SignalBearish:
		return -1
	default:
		return 0
	}
}

func (s Signal) Valid() bool {
	return s == SignalBullish || s == SignalBearish || s == SignalNeutral
}

// ParseSignal 统一信号名称，兼容 long/short、看多/看空等同义词。
func ParseSignal(raw string) (Signal, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "bullish", "bull", "long", "buy", "up", "看多", "偏多", "多头", "做多":
		return SignalBullish, true
	case "bearish", "bear", "short", "sell", "down", "看空", "偏空", "空头", "做空":
		return SignalBearish, true
	case "neutral", "flat", "hold", "wait", "sideways", "中性", "震荡", "观望":
		return SignalNeutral, true
	default:
		return "", false
	}
}

// ProducerResult 是单个分析模块的结果；由协调器创建后不再修改。
type ProducerResult struct {
	ProducerID string         `json:"producer_id"`
	Status     ProducerStatus `json:"status"`
	Signal     Signal         `json:"signal,omitempty"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale,omitempty"`
	Error      string         `json:"error,omitempty"`
	Elapsed    time.Duration  `json:"elapsed"`
}

func (r ProducerResult) Succeeded() bool { return r.Status == StatusSuccess }

// CoordinatorResult collects every producer outcome of one fan-out, in request order.
type CoordinatorResult struct {
	Results    []ProducerResult `json:"results"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

func (c CoordinatorResult) CountByStatus(status ProducerStatus) int {
	n := 0
	for _, r := range c.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}
