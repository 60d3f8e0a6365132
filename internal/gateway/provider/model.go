package provider

import "context"

// ChatPayload 是一次角色调用的提示内容。
type ChatPayload struct {
	System      string
	User        string
	ExpectJSON  bool
	MaxTokens   int
	Temperature float64
}

// ModelProvider 是推理服务的最小抽象。
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}
