package jsonutil

import (
	"strings"

	"github.com/tidwall/gjson"
)

const codeFence = "```"

// ExtractObject 从模型的自由文本输出中提取第一个合法的 JSON 对象。
// 优先使用 ``` 代码块中的内容，其次扫描正文中平衡的大括号。
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fenceBlock(raw); ok {
		if obj, ok := scan(block, '{', '}'); ok {
			return obj, true
		}
	}
	return scan(raw, '{', '}')
}

// ExtractArray is ExtractObject for top-level arrays.
func ExtractArray(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fenceBlock(raw); ok {
		if arr, ok := scan(block, '[', ']'); ok {
			return arr, true
		}
	}
	return scan(raw, '[', ']')
}

func fenceBlock(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// 去掉语言标注行，例如 ```json
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	return block, block != ""
}

// scan 依次尝试每个开括号位置，返回第一个括号平衡且 gjson 认为合法的片段。
func scan(raw string, open, close byte) (string, bool) {
	from := 0
	for {
		idx := strings.IndexByte(raw[from:], open)
		if idx == -1 {
			return "", false
		}
		start := from + idx
		if end, ok := balanced(raw, start, open, close); ok {
			candidate := raw[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		from = start + 1
	}
}

func balanced(raw string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}
