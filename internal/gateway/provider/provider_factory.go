package provider

import (
	"net/http"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/pkg/circuit"
)

// BuildProviders 依据解析后的模型配置构造带熔断保护的客户端，按模型 ID 索引。
func BuildProviders(models []config.ResolvedModelConfig, timeout time.Duration, threshold int, cooldown time.Duration) map[string]ModelProvider {
	out := make(map[string]ModelProvider, len(models))
	httpc := &http.Client{Timeout: timeout}
	if timeout <= 0 {
		httpc.Timeout = 60 * time.Second
	}
	for _, m := range models {
		client := NewOpenAIChatClient(m.ID)
		client.BaseURL = m.APIURL
		client.APIKey = m.APIKey
		client.Model = m.Model
		client.Temperature = m.Temperature
		client.ExtraHeaders = m.Headers
		client.HTTPClient = httpc
		out[m.ID] = NewGuarded(client, circuit.New("provider:"+m.ID, threshold, cooldown))
	}
	if len(out) > 0 {
		logger.Infof("✓ 已加载 %d 个推理模型", len(out))
	}
	return out
}
