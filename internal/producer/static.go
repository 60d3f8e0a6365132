package producer

import (
	"context"
	"errors"
	"fmt"

	"qihuo/internal/config"
	"qihuo/internal/types"
)

// StaticProducer 返回配置中固定的结论，用于演练与回放。
type StaticProducer struct {
	id  string
	cfg config.StaticProducerConfig
}

func NewStaticProducer(id string, cfg config.StaticProducerConfig) *StaticProducer {
	return &StaticProducer{id: id, cfg: cfg}
}

func (p *StaticProducer) ID() string { return p.id }

func (p *StaticProducer) Produce(ctx context.Context, _ Query) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if p.cfg.Fail != "" {
		return Output{}, errors.New(p.cfg.Fail)
	}
	sig, ok := types.ParseSignal(p.cfg.Signal)
	if !ok {
		return Output{}, fmt.Errorf("unrecognised signal %q", p.cfg.Signal)
	}
	return Output{Signal: sig, Confidence: p.cfg.Confidence, Rationale: p.cfg.Rationale}, nil
}
