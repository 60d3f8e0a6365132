package producer

import (
	"fmt"
	"net/http"

	"qihuo/internal/config"
	"qihuo/internal/reasoning"
)

// Build 按配置构造所有启用的模块，按 ID 索引。
func Build(cfg *config.Config, r reasoning.Reasoner) (map[string]Producer, error) {
	out := make(map[string]Producer, len(cfg.Producers))
	client := &http.Client{}
	for _, id := range cfg.EnabledProducers() {
		pc := cfg.Producers[id]
		switch pc.Kind {
		case config.ProducerKindReasoning:
			if r == nil {
				return nil, fmt.Errorf("producer %s requires a reasoner", id)
			}
			out[id] = NewReasoningProducer(id, pc.Template, pc.Model, r)
		case config.ProducerKindHTTP:
			out[id] = NewHTTPProducer(id, pc.URL, client)
		case config.ProducerKindStatic:
			out[id] = NewStaticProducer(id, pc.Static)
		default:
			return nil, fmt.Errorf("producer %s: unsupported kind %q", id, pc.Kind)
		}
	}
	return out, nil
}
