package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Pretty 按两格缩进排版 JSON，保留原有键序与数字写法；非 JSON 原样返回。
func Pretty(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
