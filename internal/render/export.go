package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"qihuo/internal/types"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Encode 把记录序列化为 JSON 或 YAML。YAML 经由 JSON 中转以沿用 json 字段名。
func Encode(rec types.DecisionRecord, format string) ([]byte, error) {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return append(raw, '\n'), nil
	case FormatYAML, "yml":
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteFile 写入 dir/<instrument>_<as_of>_<run_id>.<ext>，返回文件路径。
func WriteFile(dir string, rec types.DecisionRecord, format string) (string, error) {
	data, err := Encode(rec, format)
	if err != nil {
		return "", err
	}
	ext := FormatJSON
	if f := strings.ToLower(strings.TrimSpace(format)); f == FormatYAML || f == "yml" {
		ext = FormatYAML
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s.%s", rec.Request.Instrument, rec.Request.AsOfDate(), rec.RunID, ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
