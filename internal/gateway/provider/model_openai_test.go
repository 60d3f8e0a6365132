package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChatClient_CallRetriesOn503(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient("ds")
	c.BaseURL = srv.URL + "/v1/chat/completions"
	c.APIKey = "secret"
	c.Model = "deepseek-chat"
	out, err := c.Call(context.Background(), ChatPayload{System: "sys", User: "hi", ExpectJSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestOpenAIChatClient_NonRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient("ds")
	c.BaseURL = srv.URL
	_, err := c.Call(context.Background(), ChatPayload{User: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestOpenAIChatClient_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewOpenAIChatClient("ds")
	c.BaseURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, ChatPayload{User: "hi"})
	assert.Error(t, err)
}

type failingProvider struct{ calls int }

func (f *failingProvider) ID() string { return "flaky" }
func (f *failingProvider) Call(context.Context, ChatPayload) (string, error) {
	f.calls++
	return "", errors.New("down")
}

func TestGuarded_OpensBreaker(t *testing.T) {
	inner := &failingProvider{}
	g := NewGuarded(inner, circuit.New("flaky", 2, time.Hour))
	for i := 0; i < 3; i++ {
		_, _ = g.Call(context.Background(), ChatPayload{})
	}
	_, err := g.Call(context.Background(), ChatPayload{})
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestBuildProviders(t *testing.T) {
	providers := BuildProviders([]config.ResolvedModelConfig{
		{ID: "ds", Provider: "openai", APIURL: "http://localhost", Model: "m"},
	}, time.Second, 3, time.Minute)
	require.Contains(t, providers, "ds")
	assert.Equal(t, "ds", providers["ds"].ID())
}
