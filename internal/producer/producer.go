package producer

import (
	"context"
	"fmt"
	"math"
	"time"

	"qihuo/internal/types"
)

// Query 是协调器交给单个模块的输入。
type Query struct {
	Instrument string
	AsOf       time.Time
	ProducerID string
}

func (q Query) AsOfDate() string { return q.AsOf.Format("2006-01-02") }

// Output 是模块的原始结论，由协调器校验后转为 ProducerResult。
type Output struct {
	Signal     types.Signal
	Confidence float64
	Rationale  string
}

// Validate rejects signals outside the enum and confidences outside [0,1].
func (o Output) Validate() error {
	if !o.Signal.Valid() {
		return fmt.Errorf("invalid signal %q", o.Signal)
	}
	if math.IsNaN(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %.4f out of [0,1]", o.Confidence)
	}
	return nil
}

// Producer 是一个独立的分析模块。
type Producer interface {
	ID() string
	Produce(ctx context.Context, q Query) (Output, error)
}

// Func adapts a function into a Producer.
type Func struct {
	Name string
	Fn   func(ctx context.Context, q Query) (Output, error)
}

func (f Func) ID() string { return f.Name }

func (f Func) Produce(ctx context.Context, q Query) (Output, error) { return f.Fn(ctx, q) }

// Focus 返回内置模块的分析侧重点描述，用于提示模板。
func Focus(id string) string {
	switch id {
	case "technical":
		return "技术面（价格形态与指标）"
	case "basis":
		return "基差与现货升贴水"
	case "inventory":
		return "库存与供需平衡"
	case "positioning":
		return "持仓结构与资金动向"
	case "term_structure":
		return "期限结构与跨期价差"
	case "news":
		return "新闻与政策"
	default:
		return id
	}
}
