package prompt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"qihuo/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type debateView struct {
	Instrument string
	AsOf       string
	Round      int
	MaxRounds  int
	Final      bool
	Composite  types.CompositeSignal
	History    []types.DebateArgument
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestDefaultRegistry_RendersRoles(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	for _, id := range []string{"producer", "bull", "bear", "moderator", "proposer", "risk", "authority"} {
		_, ok := r.Template(id)
		assert.True(t, ok, id)
	}

	view := debateView{
		Instrument: "RB2505",
		AsOf:       "2026-01-05",
		Round:      2,
		MaxRounds:  3,
		Composite: types.CompositeSignal{
			Score:      0.4,
			Confidence: 0.62,
			Contributions: []types.Contribution{
				{ProducerID: "basis", Weight: 1, Signal: types.SignalBullish, Confidence: 0.62},
			},
		},
		History: []types.DebateArgument{{Round: 1, Role: types.RoleBull, Text: "库存去化", Confidence: 0.7}},
	}
	system, user, err := r.Render("bull", view)
	require.NoError(t, err)
	assert.Contains(t, system, "RB2505")
	assert.Contains(t, user, "第 2/3 轮")
	assert.Contains(t, user, "方向=bullish")
	assert.Contains(t, user, "库存去化")
	assert.Contains(t, user, "basis: bullish")
}

func TestTemplate_ValidateSchema(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	tpl, ok := r.Template("moderator")
	require.True(t, ok)
	assert.True(t, tpl.HasSchema())
	assert.NoError(t, tpl.Validate(decode(t, `{"decision":"conclude","direction":"long","confidence":0.8}`)))
	assert.Error(t, tpl.Validate(decode(t, `{"decision":"maybe"}`)))
	assert.Error(t, tpl.Validate(decode(t, `{"direction":"long"}`)))
}

func TestRegistry_FileOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  bull:
    role: bull
    user: "多方 {{.Instrument}}"
  producer_news:
    role: producer
    user: "新闻 {{.Instrument}}"
`), 0o644))
	r, err := NewRegistry(path)
	require.NoError(t, err)

	_, user, err := r.Render("bull", map[string]any{"Instrument": "CU"})
	require.NoError(t, err)
	assert.Equal(t, "多方 CU", user)
	_, ok := r.Template("producer_news")
	assert.True(t, ok)
	_, ok = r.Template("moderator")
	assert.True(t, ok)
	assert.Equal(t, int64(1), r.Snapshot().Version)
}

func TestRegistry_UnknownTemplate(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	_, _, err = r.Render("nope", nil)
	assert.Error(t, err)
}

func TestNewRegistry_MissingFileFallsBack(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, r.IDs(), "authority")
}
