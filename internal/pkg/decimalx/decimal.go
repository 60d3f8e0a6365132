// Package decimalx 提供权重与仓位计算使用的十进制辅助函数。
package decimalx

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	One  = decimal.NewFromInt(1)
	Zero = decimal.Zero
)

// From 将 float64 转为 decimal；NaN/Inf 视为 0。
func From(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return Zero
	}
	return decimal.NewFromFloat(val)
}

func Float(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func Compare(a, b float64) int { return From(a).Cmp(From(b)) }

func GT(a, b float64) bool  { return Compare(a, b) > 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }

// Round 按位数四舍五入，用于输出展示与持久化。
func Round(v float64, places int32) float64 {
	return Float(From(v).Round(places))
}
