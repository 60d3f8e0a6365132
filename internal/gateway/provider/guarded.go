package provider

import (
	"context"
	"fmt"

	"qihuo/internal/pkg/circuit"
)

// Guarded 在熔断器打开时直接拒绝调用，避免对故障服务持续施压。
type Guarded struct {
	inner   ModelProvider
	breaker *circuit.Breaker
}

func NewGuarded(inner ModelProvider, breaker *circuit.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) ID() string { return g.inner.ID() }

func (g *Guarded) Call(ctx context.Context, payload ChatPayload) (string, error) {
	var out string
	err := g.breaker.Do(func() error {
		var err error
		out, err = g.inner.Call(ctx, payload)
		return err
	})
	if err == circuit.ErrOpen {
		return "", fmt.Errorf("provider %s: %w", g.inner.ID(), err)
	}
	return out, err
}
