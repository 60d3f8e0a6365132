package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/reasoning"
	"qihuo/internal/store"
	"qihuo/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = `
bull:
  - raw: '{"argument":"现货升水扩大","confidence":0.75}'
bear:
  - raw: '{"argument":"下游需求偏弱","confidence":0.45}'
moderator:
  - raw: '{"decision":"conclude","direction":"long","confidence":0.8,"rationale":"多头证据更充分"}'
`

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o644))
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
app:
  http_addr: "127.0.0.1:0"
reasoning:
  script_path: %q
store:
  path: %q
producers:
  technical:
    kind: static
    static:
      signal: bullish
      confidence: 0.8
  basis:
    kind: static
    static:
      signal: bullish
      confidence: 0.6
  news:
    kind: static
    static:
      fail: "feed down"
debate:
  retry_attempts: 1
`, scriptPath, filepath.Join(dir, "data", "decisions.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestApp_RunOncePersistsRecord(t *testing.T) {
	cfg := loadConfig(t)
	a, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	req := types.NewAnalysisRequest("rb", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), cfg.EnabledProducers())
	req.ReferencePrice = 3500
	rec, err := a.RunOnce(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, rec.Abort, "abort: %v", rec.Abort)
	assert.Equal(t, types.OutcomeExecuted, rec.Outcome)
	require.Len(t, rec.Producers, 3)
	assert.Equal(t, 2, rec.Composite.Contributors)

	saved, err := a.Records().Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, rec.Outcome, saved.Outcome)

	list, err := a.Records().List(context.Background(), store.ListFilter{Instrument: "RB"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApp_WithReasonerOverride(t *testing.T) {
	cfg := loadConfig(t)
	calls := 0
	r := reasoning.Func(func(_ context.Context, rq reasoning.Request) (reasoning.Response, error) {
		calls++
		return reasoning.Response{}, fmt.Errorf("offline")
	})
	a, err := NewApp(cfg, WithReasoner(r))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rec, err := a.RunOnce(context.Background(), types.NewAnalysisRequest("cu", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), cfg.EnabledProducers()))
	require.NoError(t, err)
	require.NotNil(t, rec.Verdict)
	assert.Equal(t, types.TerminationDegradedNoDebate, rec.Verdict.Termination)
	assert.Positive(t, calls)
}

func TestStartupSummary(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Schedule = config.ScheduleConfig{Enabled: true, Cron: "0 30 15 * * 1-5", Instruments: []string{"RB", "CU"}}
	var buf bytes.Buffer
	newStartupSummary(cfg, nil).Write(&buf)
	out := buf.String()
	assert.Contains(t, out, "technical")
	assert.Contains(t, out, "离线脚本")
	assert.Contains(t, out, "mode=rules")
	assert.Contains(t, out, "instruments=RB, CU")
}

func TestStartupSummary_PrintGoesThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	newStartupSummary(loadConfig(t), nil).Print()
	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "STARTUP SUMMARY")
	assert.Contains(t, out, "technical")
}

func TestNewApp_NilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}
