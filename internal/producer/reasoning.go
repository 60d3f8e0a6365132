package producer

import (
	"context"
	"fmt"
	"strings"

	"qihuo/internal/reasoning"
	"qihuo/internal/types"
)

// ReasoningProducer 通过推理服务完成模块分析。
type ReasoningProducer struct {
	id       string
	template string
	model    string
	reasoner reasoning.Reasoner
}

func NewReasoningProducer(id, template, model string, r reasoning.Reasoner) *ReasoningProducer {
	return &ReasoningProducer{id: id, template: template, model: model, reasoner: r}
}

func (p *ReasoningProducer) ID() string { return p.id }

type promptView struct {
	Instrument string
	AsOf       string
	Producer   string
	Focus      string
}

type reply struct {
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (p *ReasoningProducer) Produce(ctx context.Context, q Query) (Output, error) {
	resp, err := p.reasoner.Reason(ctx, reasoning.Request{
		Role:     "producer",
		Template: p.template,
		Model:    p.model,
		Data:     promptView{Instrument: q.Instrument, AsOf: q.AsOfDate(), Producer: p.id, Focus: Focus(p.id)},
	})
	if err != nil {
		return Output{}, err
	}
	var r reply
	if err := resp.Decode(&r); err != nil {
		return Output{}, err
	}
	sig, ok := types.ParseSignal(r.Signal)
	if !ok {
		return Output{}, fmt.Errorf("unrecognised signal %q", r.Signal)
	}
	return Output{Signal: sig, Confidence: r.Confidence, Rationale: strings.TrimSpace(r.Rationale)}, nil
}
