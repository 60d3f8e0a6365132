package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qihuo/internal/logger"

	"github.com/jpillora/backoff"
)

// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
type OpenAIChatClient struct {
	id           string
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	ExtraHeaders map[string]string
	// 429/5xx 的重试次数，0 表示默认 2 次，负数表示不重试
	MaxRetries int
	HTTPClient *http.Client
}

func NewOpenAIChatClient(id string) *OpenAIChatClient {
	return &OpenAIChatClient{id: id}
}

func (c *OpenAIChatClient) ID() string { return c.id }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	url := c.endpoint()
	body := chatRequest{Model: c.Model, Temperature: c.Temperature, MaxTokens: payload.MaxTokens}
	if payload.Temperature > 0 {
		body.Temperature = payload.Temperature
	}
	if payload.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: payload.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: payload.User})
	if payload.ExpectJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	maxRetries := c.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = 2
	case maxRetries < 0:
		maxRetries = 0
	}
	bo := &backoff.Backoff{Min: 800 * time.Millisecond, Max: 8 * time.Second, Factor: 2}
	httpc := c.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	logger.Debugf("[推理] 请求: POST %s model=%s headers=%v", url, c.Model, c.maskedHeaders())

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}
		resp, err := httpc.Do(req)
		if err != nil {
			return "", err
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}
		if resp.StatusCode/100 == 2 {
			var r chatResponse
			if err := json.Unmarshal(raw, &r); err != nil {
				return "", fmt.Errorf("decode chat response: %w", err)
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return r.Choices[0].Message.Content, nil
		}
		var eresp chatError
		_ = json.Unmarshal(raw, &eresp)
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := bo.Duration()
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	// 用户可能把完整的 /chat/completions 写进配置
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *OpenAIChatClient) maskedHeaders() map[string]string {
	out := map[string]string{}
	if c.APIKey != "" {
		out["Authorization"] = "Bearer " + mask(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = mask(v)
		}
		out[k] = v
	}
	return out
}

func mask(v string) string {
	if len(v) > 4 {
		return "****" + v[len(v)-4:]
	}
	return "****"
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
