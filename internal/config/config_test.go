package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
producers:
  technical:
    kind: static
    static:
      signal: bullish
      confidence: 0.7
  custom:
    kind: static
    weight: 0.4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Debate.MaxRounds)
	assert.Equal(t, 3, cfg.Debate.RetryAttempts)
	assert.Equal(t, ConvergenceModerator, cfg.Debate.Convergence)
	assert.Equal(t, DecisionModeRules, cfg.Decision.Mode)
	assert.Equal(t, 0.5, cfg.Quorum.MinFraction)
	assert.Equal(t, defaultWallClockSeconds, cfg.Global.WallClockBudgetSeconds)

	tech := cfg.Producers["technical"]
	assert.True(t, tech.Enabled)
	assert.Equal(t, 0.25, tech.Weight)
	assert.Equal(t, defaultProducerTimeoutMs, tech.TimeoutMs)
	assert.Equal(t, 0.4, cfg.Producers["custom"].Weight)
	assert.Equal(t, []string{"custom", "technical"}, cfg.EnabledProducers())
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
quorum:
  min_fraction: 0
producers:
  news:
    kind: static
    enabled: false
  basis:
    kind: static
    weight: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Quorum.MinFraction)
	assert.False(t, cfg.Producers["news"].Enabled)
	assert.Equal(t, 0.0, cfg.Producers["basis"].Weight)
	assert.Equal(t, map[string]float64{"basis": 0}, cfg.Weights())
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "debate.yaml", `
debate:
  max_rounds: 5
  convergence: confidence_gap
  convergence_gap: 0.3
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - debate.yaml
debate:
  max_rounds: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Debate.MaxRounds)
	assert.Equal(t, ConvergenceConfidenceGap, cfg.Debate.Convergence)
	assert.InDelta(t, 0.3, cfg.Debate.ConvergenceGap, 1e-9)
}

func TestLoad_IncludeSharedFileMergedOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "debate:\n  max_rounds: 4\nquorum:\n  min_producers: 3\n")
	writeFile(t, dir, "debate.yaml", "include: base.yaml\ndebate:\n  max_rounds: 6\n")
	path := writeFile(t, dir, "config.yaml", "include: [base.yaml, debate.yaml]\n")

	files, err := resolveConfigIncludes(path)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "base.yaml", filepath.Base(files[0]))
	assert.Equal(t, "debate.yaml", filepath.Base(files[1]))
	assert.Equal(t, "config.yaml", filepath.Base(files[2]))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Debate.MaxRounds)
	assert.Equal(t, 3, cfg.Quorum.MinProducers)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"max rounds":     "debate:\n  max_rounds: -1\n",
		"decision mode":  "decision:\n  mode: yolo\n",
		"unknown kind":   "producers:\n  technical:\n    kind: carrier_pigeon\n",
		"http url":       "producers:\n  technical:\n    kind: http\n",
		"role reference": "reasoning:\n  roles:\n    bull: missing-model\n",
		"schedule cron":  "schedule:\n  enabled: true\n  cron: \"not a cron\"\n  instruments: [RB]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolveModelConfigs_Preset(t *testing.T) {
	r := ReasoningConfig{
		Presets: map[string]ModelPreset{
			"deepseek": {APIURL: "https://api.example.com/v1", APIKey: "k", Headers: map[string]string{"X-A": "1"}},
		},
		Models: []ModelConfig{
			{ID: "ds", Preset: "deepseek", Enabled: true, Model: "deepseek-chat", Headers: map[string]string{"X-B": "2"}},
			{ID: "off", Enabled: false, Model: "ignored"},
		},
	}
	models, err := r.ResolveModelConfigs()
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "https://api.example.com/v1", models[0].APIURL)
	assert.Equal(t, "openai", models[0].Provider)
	assert.Equal(t, map[string]string{"X-A": "1", "X-B": "2"}, models[0].Headers)

	r.Models[0].Preset = "nope"
	_, err = r.ResolveModelConfigs()
	assert.Error(t, err)
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleBull, NormalizeRole(" Bullish "))
	assert.Equal(t, RoleModerator, NormalizeRole("judge"))
	assert.Equal(t, RoleAuthority, NormalizeRole("cio"))
	assert.Equal(t, "", NormalizeRole("janitor"))
}

func TestResolveModelConfigs_ExpandsKeyFromEnv(t *testing.T) {
	t.Setenv("QIHUO_TEST_KEY", "sk-123")
	r := ReasoningConfig{
		Models: []ModelConfig{{ID: "m", Enabled: true, Model: "x", APIURL: "http://localhost", APIKey: "${QIHUO_TEST_KEY}"}},
	}
	models, err := r.ResolveModelConfigs()
	require.NoError(t, err)
	assert.Equal(t, "sk-123", models[0].APIKey)
}
