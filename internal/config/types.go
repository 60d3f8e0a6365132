package config

import (
	"sort"
	"strings"
	"time"
)

// Config 是一次编排运行的只读配置；构造后按指针传入各阶段，不再修改。
type Config struct {
	App       AppConfig                 `toml:"app"`
	Reasoning ReasoningConfig           `toml:"reasoning"`
	Producers map[string]ProducerConfig `toml:"producers"`
	Quorum    QuorumConfig              `toml:"quorum"`
	Debate    DebateConfig              `toml:"debate"`
	Decision  DecisionConfig            `toml:"decision"`
	Global    GlobalConfig              `toml:"global"`
	Store     StoreConfig               `toml:"store"`
	Schedule  ScheduleConfig            `toml:"schedule"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	LogPath       string `toml:"log_path"`
	ReasoningLog  string `toml:"reasoning_log_path"`
	ReasoningDump bool   `toml:"reasoning_dump_payload"`
	HTTPAddr      string `toml:"http_addr"`
	ExportDir     string `toml:"export_dir"`
}

// ReasoningConfig 描述推理服务（OpenAI 兼容接口）及各角色使用的模型。
type ReasoningConfig struct {
	TimeoutSeconds         int                    `toml:"timeout_seconds"`
	PromptsPath            string                 `toml:"prompts_path"`
	ScriptPath             string                 `toml:"script_path"` // 非空时使用离线脚本代替模型
	Presets                map[string]ModelPreset `toml:"presets"`
	Models                 []ModelConfig          `toml:"models"`
	Roles                  map[string]string      `toml:"roles"`
	BreakerThreshold       int                    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int                    `toml:"breaker_cooldown_seconds"`
}

// ModelPreset 是可复用的连接配置。
type ModelPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

type ModelConfig struct {
	ID          string            `toml:"id"`
	Provider    string            `toml:"provider"`
	Preset      string            `toml:"preset"`
	Enabled     bool              `toml:"enabled"`
	APIURL      string            `toml:"api_url"`
	APIKey      string            `toml:"api_key"`
	Model       string            `toml:"model"`
	Temperature float64           `toml:"temperature"`
	Headers     map[string]string `toml:"headers"`
}

// ResolvedModelConfig 是合并预设后的最终模型配置。
type ResolvedModelConfig struct {
	ID          string
	Provider    string
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	Headers     map[string]string
}

// Producer kinds.
const (
	ProducerKindReasoning = "reasoning"
	ProducerKindHTTP      = "http"
	ProducerKindStatic    = "static"
)

type ProducerConfig struct {
	Enabled   bool                 `toml:"enabled"`
	Kind      string               `toml:"kind"`
	Weight    float64              `toml:"weight"`
	TimeoutMs int                  `toml:"timeout_ms"`
	Model     string               `toml:"model"`
	Template  string               `toml:"template"`
	URL       string               `toml:"url"`
	Static    StaticProducerConfig `toml:"static"`
}

func (p ProducerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// StaticProducerConfig 为 static 类型模块提供固定输出。
type StaticProducerConfig struct {
	Signal     string  `toml:"signal"`
	Confidence float64 `toml:"confidence"`
	Rationale  string  `toml:"rationale"`
	Fail       string  `toml:"fail"`
}

type QuorumConfig struct {
	MinProducers int     `toml:"min_producers"`
	MinFraction  float64 `toml:"min_fraction"`
	MinWeight    float64 `toml:"min_weight"`
}

// Convergence policies.
const (
	ConvergenceModerator     = "moderator"
	ConvergenceConfidenceGap = "confidence_gap"
)

type DebateConfig struct {
	MaxRounds                  int     `toml:"max_rounds"`
	PerCallTimeoutMs           int     `toml:"per_call_timeout_ms"`
	RetryAttempts              int     `toml:"retry_attempts"`
	RetryBackoffMs             int     `toml:"retry_backoff_ms"`
	RetryBackoffMaxMs          int     `toml:"retry_backoff_max_ms"`
	MinimumConfidenceThreshold float64 `toml:"minimum_confidence_threshold"`
	DegradedConfidencePenalty  float64 `toml:"degraded_confidence_penalty"`
	Convergence                string  `toml:"convergence"`
	ConvergenceGap             float64 `toml:"convergence_gap"`
}

func (d DebateConfig) PerCallTimeout() time.Duration {
	return time.Duration(d.PerCallTimeoutMs) * time.Millisecond
}

func (d DebateConfig) RetryBackoff() (min, max time.Duration) {
	return time.Duration(d.RetryBackoffMs) * time.Millisecond, time.Duration(d.RetryBackoffMaxMs) * time.Millisecond
}

// Decision chain modes.
const (
	DecisionModeRules     = "rules"
	DecisionModeReasoning = "reasoning"
)

type DecisionConfig struct {
	Mode                   string   `toml:"mode"`
	MaxMarginRatio         float64  `toml:"max_margin_ratio"`
	MarginRate             float64  `toml:"margin_rate"`
	MaxPositionPerSymbol   float64  `toml:"max_position_per_symbol"`
	MaxRevisionAttempts    int      `toml:"max_revision_attempts"`
	HardConfidenceFloor    float64  `toml:"hard_confidence_floor"`
	SizingFloor            float64  `toml:"sizing_floor"`
	StopDistancePct        float64  `toml:"stop_distance_pct"`
	RevisionShrink         float64  `toml:"revision_shrink"`
	ProceedOnLowConfidence bool     `toml:"proceed_on_low_confidence"`
	MaxTotalExposure       float64  `toml:"max_total_exposure"`
	CurrentExposure        float64  `toml:"current_exposure"`
	BlockedSymbols         []string `toml:"blocked_symbols"`
}

type GlobalConfig struct {
	MaxConcurrentProducers int `toml:"max_concurrent_producers"`
	WallClockBudgetSeconds int `toml:"wall_clock_budget_seconds"`
}

func (g GlobalConfig) WallClockBudget() time.Duration {
	return time.Duration(g.WallClockBudgetSeconds) * time.Second
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// ScheduleConfig 控制定时运行（例如每日收盘后）。
type ScheduleConfig struct {
	Enabled     bool     `toml:"enabled"`
	Cron        string   `toml:"cron"`
	Instruments []string `toml:"instruments"`
}

// EnabledProducers returns the enabled producer ids in a stable order.
func (c *Config) EnabledProducers() []string {
	ids := make([]string, 0, len(c.Producers))
	for id, p := range c.Producers {
		if p.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Weights 返回启用模块的原始权重。
func (c *Config) Weights() map[string]float64 {
	out := make(map[string]float64, len(c.Producers))
	for id, p := range c.Producers {
		if p.Enabled {
			out[id] = p.Weight
		}
	}
	return out
}

// RoleModel returns the model id configured for a reasoning role.
func (c *Config) RoleModel(role string) string {
	if c.Reasoning.Roles == nil {
		return ""
	}
	return strings.TrimSpace(c.Reasoning.Roles[strings.ToLower(strings.TrimSpace(role))])
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
