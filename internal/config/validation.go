package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// CronParser 解析 schedule.cron，秒字段可选。
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Reasoning.validate(); err != nil {
		return err
	}
	if err := c.validateProducers(); err != nil {
		return err
	}
	if err := c.Quorum.validate(); err != nil {
		return err
	}
	if err := c.Debate.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Global.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	return nil
}

func (r *ReasoningConfig) validate() error {
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("reasoning.timeout_seconds must be >= 0")
	}
	models, err := r.ResolveModelConfigs()
	if err != nil {
		return err
	}
	modelSet := make(map[string]struct{}, len(models))
	for _, m := range models {
		if m.Model == "" {
			return fmt.Errorf("reasoning.models contains entry without model (id=%s)", m.ID)
		}
		if m.APIURL == "" {
			return fmt.Errorf("reasoning.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		modelSet[m.ID] = struct{}{}
	}
	for role, id := range r.Roles {
		if id == "" {
			continue
		}
		if _, ok := modelSet[id]; !ok {
			return fmt.Errorf("reasoning.roles.%s references unconfigured model id: %s", role, id)
		}
	}
	return nil
}

func (c *Config) validateProducers() error {
	enabled := 0
	for id, p := range c.Producers {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.Weight < 0 {
			return fmt.Errorf("producers.%s.weight must be >= 0", id)
		}
		if p.TimeoutMs <= 0 {
			return fmt.Errorf("producers.%s.timeout_ms must be > 0", id)
		}
		switch p.Kind {
		case ProducerKindReasoning:
			if strings.TrimSpace(p.Template) == "" {
				return fmt.Errorf("producers.%s.template cannot be empty", id)
			}
		case ProducerKindHTTP:
			if strings.TrimSpace(p.URL) == "" {
				return fmt.Errorf("producers.%s.url cannot be empty for http producers", id)
			}
		case ProducerKindStatic:
			if p.Static.Confidence < 0 || p.Static.Confidence > 1 {
				return fmt.Errorf("producers.%s.static.confidence must be in [0,1]", id)
			}
		default:
			return fmt.Errorf("producers.%s.kind %q unsupported", id, p.Kind)
		}
	}
	if len(c.Producers) > 0 && enabled == 0 {
		return fmt.Errorf("producers requires at least one enabled producer")
	}
	return nil
}

func (q *QuorumConfig) validate() error {
	if q.MinProducers < 0 {
		return fmt.Errorf("quorum.min_producers must be >= 0")
	}
	if q.MinFraction < 0 || q.MinFraction > 1 {
		return fmt.Errorf("quorum.min_fraction must be in [0,1]")
	}
	if q.MinWeight < 0 || q.MinWeight > 1 {
		return fmt.Errorf("quorum.min_weight must be in [0,1]")
	}
	return nil
}

func (d *DebateConfig) validate() error {
	if d.MaxRounds < 1 {
		return fmt.Errorf("debate.max_rounds must be >= 1")
	}
	if d.RetryAttempts < 1 {
		return fmt.Errorf("debate.retry_attempts must be >= 1")
	}
	if d.PerCallTimeoutMs <= 0 {
		return fmt.Errorf("debate.per_call_timeout_ms must be > 0")
	}
	if d.RetryBackoffMaxMs < d.RetryBackoffMs {
		return fmt.Errorf("debate.retry_backoff_max_ms must be >= retry_backoff_ms")
	}
	if d.MinimumConfidenceThreshold < 0 || d.MinimumConfidenceThreshold > 1 {
		return fmt.Errorf("debate.minimum_confidence_threshold must be in [0,1]")
	}
	if d.DegradedConfidencePenalty < 0 || d.DegradedConfidencePenalty > 1 {
		return fmt.Errorf("debate.degraded_confidence_penalty must be in [0,1]")
	}
	switch d.Convergence {
	case ConvergenceModerator:
	case ConvergenceConfidenceGap:
		if d.ConvergenceGap <= 0 || d.ConvergenceGap > 1 {
			return fmt.Errorf("debate.convergence_gap must be in (0,1]")
		}
	default:
		return fmt.Errorf("debate.convergence %q unsupported", d.Convergence)
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.Mode != DecisionModeRules && d.Mode != DecisionModeReasoning {
		return fmt.Errorf("decision.mode only supports 'rules' or 'reasoning', got %s", d.Mode)
	}
	if d.MaxPositionPerSymbol <= 0 || d.MaxPositionPerSymbol > 1 {
		return fmt.Errorf("decision.max_position_per_symbol must be in (0, 1]")
	}
	if d.MaxMarginRatio <= 0 || d.MaxMarginRatio > 1 {
		return fmt.Errorf("decision.max_margin_ratio must be in (0, 1]")
	}
	if d.MarginRate <= 0 || d.MarginRate > 1 {
		return fmt.Errorf("decision.margin_rate must be in (0, 1]")
	}
	if d.MaxRevisionAttempts < 0 {
		return fmt.Errorf("decision.max_revision_attempts must be >= 0")
	}
	if d.HardConfidenceFloor < 0 || d.HardConfidenceFloor >= 1 {
		return fmt.Errorf("decision.hard_confidence_floor must be in [0,1)")
	}
	if d.SizingFloor < 0 || d.SizingFloor >= 1 {
		return fmt.Errorf("decision.sizing_floor must be in [0,1)")
	}
	if d.StopDistancePct <= 0 || d.StopDistancePct >= 1 {
		return fmt.Errorf("decision.stop_distance_pct must be in (0,1)")
	}
	if d.RevisionShrink <= 0 || d.RevisionShrink > 1 {
		return fmt.Errorf("decision.revision_shrink must be in (0,1]")
	}
	if d.MaxTotalExposure <= 0 {
		return fmt.Errorf("decision.max_total_exposure must be > 0")
	}
	if d.CurrentExposure < 0 {
		return fmt.Errorf("decision.current_exposure must be >= 0")
	}
	return nil
}

func (g *GlobalConfig) validate() error {
	if g.MaxConcurrentProducers < 1 {
		return fmt.Errorf("global.max_concurrent_producers must be >= 1")
	}
	if g.WallClockBudgetSeconds < 1 {
		return fmt.Errorf("global.wall_clock_budget_seconds must be >= 1")
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if _, err := CronParser.Parse(s.Cron); err != nil {
		return fmt.Errorf("schedule.cron invalid: %w", err)
	}
	if len(s.Instruments) == 0 {
		return fmt.Errorf("schedule.instruments requires at least one instrument when enabled")
	}
	return nil
}
