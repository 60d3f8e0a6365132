package producer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/reasoning"
	"qihuo/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func TestHTTPProducer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RB", r.URL.Query().Get("instrument"))
		assert.Equal(t, "2026-01-05", r.URL.Query().Get("as_of"))
		switch r.URL.Query().Get("producer") {
		case "basis":
			_, _ = w.Write([]byte(`{"status":"ok","signal":"看多","confidence":0.66,"rationale":"现货升水"}`))
		case "news":
			_, _ = w.Write([]byte(`{"status":"error","error":"feed down"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	out, err := NewHTTPProducer("basis", srv.URL+"/analyze", nil).Produce(context.Background(), Query{Instrument: "RB", AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, types.SignalBullish, out.Signal)
	assert.InDelta(t, 0.66, out.Confidence, 1e-9)
	assert.Equal(t, "现货升水", out.Rationale)

	_, err = NewHTTPProducer("news", srv.URL, nil).Produce(context.Background(), Query{Instrument: "RB", AsOf: asOf})
	assert.ErrorContains(t, err, "feed down")

	_, err = NewHTTPProducer("other", srv.URL, nil).Produce(context.Background(), Query{Instrument: "RB", AsOf: asOf})
	assert.ErrorContains(t, err, "status=502")
}

func TestStaticProducer(t *testing.T) {
	out, err := NewStaticProducer("technical", config.StaticProducerConfig{Signal: "short", Confidence: 0.4}).
		Produce(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, types.SignalBearish, out.Signal)
	assert.NoError(t, out.Validate())

	_, err = NewStaticProducer("news", config.StaticProducerConfig{Fail: "no data"}).Produce(context.Background(), Query{})
	assert.EqualError(t, err, "no data")
}

func TestReasoningProducer(t *testing.T) {
	var got reasoning.Request
	r := reasoning.Func(func(ctx context.Context, req reasoning.Request) (reasoning.Response, error) {
		got = req
		return reasoning.NewResponse(req.Role, `{"signal":"neutral","confidence":0.5,"rationale":" 区间震荡 "}`)
	})
	out, err := NewReasoningProducer("inventory", "producer_inventory", "ds", r).
		Produce(context.Background(), Query{Instrument: "CU", AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, types.SignalNeutral, out.Signal)
	assert.Equal(t, "区间震荡", out.Rationale)
	assert.Equal(t, "producer", got.Role)
	assert.Equal(t, "ds", got.Model)
	view := got.Data.(promptView)
	assert.Equal(t, "2026-01-05", view.AsOf)
	assert.Equal(t, Focus("inventory"), view.Focus)
}

func TestOutputValidate(t *testing.T) {
	assert.Error(t, Output{Signal: "sideways", Confidence: 0.5}.Validate())
	assert.Error(t, Output{Signal: types.SignalBullish, Confidence: 1.2}.Validate())
	assert.NoError(t, Output{Signal: types.SignalBullish, Confidence: 1}.Validate())
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{Producers: map[string]config.ProducerConfig{
		"technical": {Enabled: true, Kind: config.ProducerKindStatic},
		"basis":     {Enabled: true, Kind: config.ProducerKindHTTP, URL: "http://x"},
		"news":      {Enabled: false, Kind: config.ProducerKindReasoning},
	}}
	ps, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
	assert.IsType(t, &HTTPProducer{}, ps["basis"])

	cfg.Producers["news"] = config.ProducerConfig{Enabled: true, Kind: config.ProducerKindReasoning}
	_, err = Build(cfg, nil)
	assert.Error(t, err)
}
