package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9992"
	defaultReasoningTimeout   = 120
	defaultPromptsPath        = "configs/prompts.yaml"
	defaultBreakerThreshold   = 5
	defaultBreakerCooldown    = 60
	defaultProducerTimeoutMs  = 90_000
	defaultQuorumMinProducers = 1
	defaultQuorumMinFraction  = 0.5
	defaultDebateMaxRounds    = 3
	defaultDebateCallTimeout  = 120_000
	defaultDebateRetries      = 3
	defaultDebateBackoffMs    = 800
	defaultDebateBackoffMaxMs = 8_000
	defaultDebateMinConf      = 0.5
	defaultDebatePenalty      = 0.5
	defaultDebateGap          = 0.4
	defaultDecisionMode       = DecisionModeRules
	defaultMaxMarginRatio     = 0.3
	defaultMarginRate         = 0.1
	defaultMaxPosition        = 0.2
	defaultMaxRevisions       = 2
	defaultHardFloor          = 0.3
	defaultSizingFloor        = 0.3
	defaultStopDistancePct    = 0.02
	defaultRevisionShrink     = 0.5
	defaultMaxTotalExposure   = 1.0
	defaultMaxConcurrent      = 6
	defaultWallClockSeconds   = 900
	defaultStorePath          = "data/decisions.db"
	defaultScheduleCron       = "0 30 15 * * 1-5"
)

// canonicalProducerWeights 六大分析模块的缺省权重。
var canonicalProducerWeights = map[string]float64{
	"technical":      0.25,
	"basis":          0.20,
	"inventory":      0.20,
	"positioning":    0.15,
	"term_structure": 0.10,
	"news":           0.10,
}

// CanonicalProducers lists the analysis modules known out of the box.
func CanonicalProducers() []string {
	return []string{"technical", "basis", "inventory", "positioning", "term_structure", "news"}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Reasoning.applyDefaults(keys)
	c.applyProducerDefaults(keys)
	c.Quorum.applyDefaults(keys)
	c.Debate.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Global.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (r *ReasoningConfig) applyDefaults(keys keySet) {
	if r.Presets == nil {
		r.Presets = make(map[string]ModelPreset)
	}
	roles := make(map[string]string, len(r.Roles))
	for role, model := range r.Roles {
		if norm := NormalizeRole(role); norm != "" {
			roles[norm] = strings.TrimSpace(model)
		}
	}
	r.Roles = roles
	applyFieldDefaults(keys,
		stringFieldDefault("reasoning.prompts_path", &r.PromptsPath, defaultPromptsPath),
		intFieldDefault("reasoning.timeout_seconds", &r.TimeoutSeconds, defaultReasoningTimeout),
		intFieldDefault("reasoning.breaker_threshold", &r.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("reasoning.breaker_cooldown_seconds", &r.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
	for i := range r.Models {
		r.Models[i].ID = strings.TrimSpace(r.Models[i].ID)
		r.Models[i].Provider = strings.ToLower(strings.TrimSpace(r.Models[i].Provider))
	}
}

func (c *Config) applyProducerDefaults(keys keySet) {
	if len(c.Producers) == 0 {
		return
	}
	normalized := make(map[string]ProducerConfig, len(c.Producers))
	for rawID, p := range c.Producers {
		id := strings.ToLower(strings.TrimSpace(rawID))
		if id == "" {
			continue
		}
		prefix := "producers." + id + "."
		applyFieldDefaults(keys,
			boolFieldDefault(prefix+"enabled", &p.Enabled, true),
			stringFieldDefault(prefix+"kind", &p.Kind, ProducerKindReasoning),
			stringFieldDefault(prefix+"template", &p.Template, "producer_"+id),
			intFieldDefault(prefix+"timeout_ms", &p.TimeoutMs, defaultProducerTimeoutMs),
			fieldDefault{
				key:   prefix + "weight",
				need:  func() bool { return p.Weight == 0 },
				apply: func() { p.Weight = defaultProducerWeight(id) },
			},
		)
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		normalized[id] = p
	}
	c.Producers = normalized
}

func defaultProducerWeight(id string) float64 {
	if w, ok := canonicalProducerWeights[id]; ok {
		return w
	}
	return 0.1
}

func (q *QuorumConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("quorum.min_producers", &q.MinProducers, defaultQuorumMinProducers),
		floatFieldDefault("quorum.min_fraction", &q.MinFraction, defaultQuorumMinFraction),
	)
}

func (d *DebateConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("debate.max_rounds", &d.MaxRounds, defaultDebateMaxRounds),
		intFieldDefault("debate.per_call_timeout_ms", &d.PerCallTimeoutMs, defaultDebateCallTimeout),
		intFieldDefault("debate.retry_attempts", &d.RetryAttempts, defaultDebateRetries),
		intFieldDefault("debate.retry_backoff_ms", &d.RetryBackoffMs, defaultDebateBackoffMs),
		intFieldDefault("debate.retry_backoff_max_ms", &d.RetryBackoffMaxMs, defaultDebateBackoffMaxMs),
		floatFieldDefault("debate.minimum_confidence_threshold", &d.MinimumConfidenceThreshold, defaultDebateMinConf),
		floatFieldDefault("debate.degraded_confidence_penalty", &d.DegradedConfidencePenalty, defaultDebatePenalty),
		stringFieldDefault("debate.convergence", &d.Convergence, ConvergenceModerator),
		floatFieldDefault("debate.convergence_gap", &d.ConvergenceGap, defaultDebateGap),
	)
	d.Convergence = strings.ToLower(strings.TrimSpace(d.Convergence))
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("decision.mode", &d.Mode, defaultDecisionMode),
		floatFieldDefault("decision.max_margin_ratio", &d.MaxMarginRatio, defaultMaxMarginRatio),
		floatFieldDefault("decision.margin_rate", &d.MarginRate, defaultMarginRate),
		floatFieldDefault("decision.max_position_per_symbol", &d.MaxPositionPerSymbol, defaultMaxPosition),
		intFieldDefault("decision.max_revision_attempts", &d.MaxRevisionAttempts, defaultMaxRevisions),
		floatFieldDefault("decision.hard_confidence_floor", &d.HardConfidenceFloor, defaultHardFloor),
		floatFieldDefault("decision.sizing_floor", &d.SizingFloor, defaultSizingFloor),
		floatFieldDefault("decision.stop_distance_pct", &d.StopDistancePct, defaultStopDistancePct),
		floatFieldDefault("decision.revision_shrink", &d.RevisionShrink, defaultRevisionShrink),
		floatFieldDefault("decision.max_total_exposure", &d.MaxTotalExposure, defaultMaxTotalExposure),
	)
	d.Mode = strings.ToLower(strings.TrimSpace(d.Mode))
	for i, sym := range d.BlockedSymbols {
		d.BlockedSymbols[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
}

func (g *GlobalConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("global.max_concurrent_producers", &g.MaxConcurrentProducers, defaultMaxConcurrent),
		intFieldDefault("global.wall_clock_budget_seconds", &g.WallClockBudgetSeconds, defaultWallClockSeconds),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("store.path", &s.Path, defaultStorePath))
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("schedule.cron", &s.Cron, defaultScheduleCron))
	for i, sym := range s.Instruments {
		s.Instruments[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

// intFieldDefault 仅在未显式配置且值 <= 0 时生效。
func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
