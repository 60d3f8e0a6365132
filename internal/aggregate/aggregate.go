package aggregate

import (
	"fmt"
	"math"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/pkg/decimalx"
	"qihuo/internal/types"

	"github.com/shopspring/decimal"
)

// Quorum 定义合成信号所需的最低参与度。
type Quorum struct {
	MinProducers int
	// MinFraction 是成功模块占请求模块数的最低比例，折算为数量后与 MinProducers 取大。
	MinFraction float64
	// MinWeight 是成功模块原始权重占全部模块权重的最低比例。
	MinWeight float64
}

func QuorumFromConfig(cfg *config.Config) Quorum {
	return Quorum{
		MinProducers: cfg.Quorum.MinProducers,
		MinFraction:  cfg.Quorum.MinFraction,
		MinWeight:    cfg.Quorum.MinWeight,
	}
}

// Required 返回在 total 个模块下需要的最少成功数。
func (q Quorum) Required(total int) int {
	need := q.MinProducers
	if q.MinFraction > 0 {
		byFraction := int(math.Ceil(q.MinFraction*float64(total) - 1e-9))
		if byFraction > need {
			need = byFraction
		}
	}
	return need
}

// Fuse 将成功模块的结论按权重融合为合成信号。
// 仅 success 且权重为正的模块参与；权重按参与者重新归一化，和为 1。
func Fuse(results []types.ProducerResult, weights map[string]float64, quorum Quorum) (types.CompositeSignal, error) {
	var composite types.CompositeSignal
	var contrib []types.ProducerResult
	contribSum, configured := decimalx.Zero, decimalx.Zero
	for _, r := range results {
		w := decimalx.From(weights[r.ProducerID])
		if w.IsPositive() {
			configured = configured.Add(w)
		}
		if !r.Succeeded() {
			reason := string(r.Status)
			if r.Error != "" {
				reason += ": " + r.Error
			}
			composite.Excluded = append(composite.Excluded, types.Exclusion{ProducerID: r.ProducerID, Reason: reason})
			continue
		}
		if !w.IsPositive() {
			composite.Excluded = append(composite.Excluded, types.Exclusion{ProducerID: r.ProducerID, Reason: "zero weight"})
			continue
		}
		contrib = append(contrib, r)
		contribSum = contribSum.Add(w)
	}

	need := quorum.Required(len(results))
	if len(contrib) == 0 || len(contrib) < need {
		return composite, fmt.Errorf("%w: %d of %d producers contributed, need %d (%s)",
			types.ErrInsufficientQuorum, len(contrib), len(results), max(need, 1), summarize(composite.Excluded))
	}
	if quorum.MinWeight > 0 && configured.IsPositive() {
		share := contribSum.Div(configured)
		if share.LessThan(decimalx.From(quorum.MinWeight)) {
			return composite, fmt.Errorf("%w: contributing weight share %s below %.2f",
				types.ErrInsufficientQuorum, share.StringFixed(3), quorum.MinWeight)
		}
	}

	score := decimalx.Zero
	conf := decimalx.Zero
	assigned := decimalx.Zero
	for i, r := range contrib {
		orig := decimalx.From(weights[r.ProducerID])
		norm := orig.Div(contribSum)
		if i == len(contrib)-1 {
			// 最后一个取余量，保证归一化权重之和精确为 1
			norm = decimalx.One.Sub(assigned)
		}
		assigned = assigned.Add(norm)
		score = score.Add(norm.Mul(decimal.NewFromInt(int64(r.Signal.Sign()))))
		conf = conf.Add(norm.Mul(decimalx.From(r.Confidence)))
		composite.Contributions = append(composite.Contributions, types.Contribution{
			ProducerID:     r.ProducerID,
			OriginalWeight: decimalx.Float(orig),
			Weight:         decimalx.Float(norm),
			Signal:         r.Signal,
			Confidence:     r.Confidence,
		})
	}
	composite.Contributors = len(contrib)
	composite.Score = decimalx.Float(decimalx.Clamp(score, decimalx.One.Neg(), decimalx.One))
	composite.Confidence = decimalx.Float(decimalx.Clamp(conf, decimalx.Zero, decimalx.One))
	return composite, nil
}

func summarize(excluded []types.Exclusion) string {
	if len(excluded) == 0 {
		return "no exclusions"
	}
	parts := make([]string, 0, len(excluded))
	for _, e := range excluded {
		parts = append(parts, e.ProducerID+"="+e.Reason)
	}
	return strings.Join(parts, ", ")
}
