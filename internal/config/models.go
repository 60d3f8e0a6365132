package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveModelConfigs 合并预设并返回启用的模型配置。
func (r *ReasoningConfig) ResolveModelConfigs() ([]ResolvedModelConfig, error) {
	out := make([]ResolvedModelConfig, 0, len(r.Models))
	seen := make(map[string]struct{}, len(r.Models))
	for _, m := range r.Models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = strings.TrimSpace(m.Model)
		}
		if id == "" {
			return nil, fmt.Errorf("reasoning.models contains entry without id or model")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("reasoning.models duplicate id: %s", id)
		}
		seen[id] = struct{}{}
		resolved := ResolvedModelConfig{
			ID:          id,
			Provider:    m.Provider,
			APIURL:      strings.TrimSpace(m.APIURL),
			APIKey:      strings.TrimSpace(m.APIKey),
			Model:       strings.TrimSpace(m.Model),
			Temperature: m.Temperature,
			Headers:     map[string]string{},
		}
		if name := strings.TrimSpace(m.Preset); name != "" {
			preset, ok := r.Presets[name]
			if !ok {
				return nil, fmt.Errorf("reasoning.models.%s references unknown preset %s", id, name)
			}
			if resolved.APIURL == "" {
				resolved.APIURL = strings.TrimSpace(preset.APIURL)
			}
			if resolved.APIKey == "" {
				resolved.APIKey = strings.TrimSpace(preset.APIKey)
			}
			for k, v := range preset.Headers {
				resolved.Headers[k] = v
			}
		}
		for k, v := range m.Headers {
			resolved.Headers[k] = v
		}
		// api_key 支持 ${ENV} 引用，避免明文写入配置
		resolved.APIKey = os.ExpandEnv(resolved.APIKey)
		if resolved.Provider == "" {
			resolved.Provider = "openai"
		}
		out = append(out, resolved)
	}
	return out, nil
}

// MustResolveModelConfigs 用于已通过校验的配置。
func (r *ReasoningConfig) MustResolveModelConfigs() []ResolvedModelConfig {
	models, err := r.ResolveModelConfigs()
	if err != nil {
		panic(err)
	}
	return models
}
