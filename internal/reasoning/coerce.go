package reasoning

import (
	"strconv"
	"strings"
)

// coerceNumbers 递归将字符串形式的数字转为 float64，兼容模型返回 "0.7" 而非 0.7 的情况。
func coerceNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = coerceNumbers(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = coerceNumbers(child)
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if strings.HasSuffix(s, "%") {
			if num, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
				return num / 100
			}
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}
