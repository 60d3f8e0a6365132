package types

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// AnalysisRequest 描述一次决策运行的输入：品种、日期与启用的分析模块。
type AnalysisRequest struct {
	Instrument     string    `json:"instrument" yaml:"instrument"`
	AsOf           time.Time `json:"as_of" yaml:"as_of"`
	Producers      []string  `json:"producers" yaml:"producers"`
	ReferencePrice float64   `json:"reference_price,omitempty" yaml:"reference_price,omitempty"` // 可选，用于推算入场与止损
}

// NewAnalysisRequest normalizes the instrument code and de-duplicates producer ids.
func NewAnalysisRequest(instrument string, asOf time.Time, producers []string) AnalysisRequest {
	seen := make(map[string]bool, len(producers))
	ids := make([]string, 0, len(producers))
	for _, id := range producers {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return AnalysisRequest{
		Instrument: strings.ToUpper(strings.TrimSpace(instrument)),
		AsOf:       asOf,
		Producers:  ids,
	}
}

func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Instrument) == "" {
		return fmt.Errorf("%w: instrument is empty", ErrInvalidRequest)
	}
	if r.AsOf.IsZero() {
		return fmt.Errorf("%w: as_of is empty", ErrInvalidRequest)
	}
	if len(r.Producers) == 0 {
		return fmt.Errorf("%w: no producers enabled", ErrInvalidRequest)
	}
	return nil
}

// AsOfDate 返回 YYYY-MM-DD 形式的分析日期。
func (r AnalysisRequest) AsOfDate() string {
	if r.AsOf.IsZero() {
		return ""
	}
	return r.AsOf.Format(dateLayout)
}

// ParseAsOf accepts YYYY-MM-DD or RFC3339; empty means today (UTC).
func ParseAsOf(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of %q: want YYYY-MM-DD", raw)
	}
	return t, nil
}
