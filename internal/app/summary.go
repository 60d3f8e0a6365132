package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/prompt"
)

type StartupSummary struct {
	Producers []ProducerSummary
	Roles     map[string]string
	Prompts   []string
	Debate    string
	Decision  string
	Schedule  string
	HTTPAddr  string
	Offline   string
}

type ProducerSummary struct {
	ID        string
	Kind      string
	Weight    float64
	TimeoutMs int
}

func newStartupSummary(cfg *config.Config, registry *prompt.Registry) *StartupSummary {
	s := &StartupSummary{
		Roles:    cfg.Reasoning.Roles,
		HTTPAddr: cfg.App.HTTPAddr,
		Offline:  cfg.Reasoning.ScriptPath,
		Debate: fmt.Sprintf("max_rounds=%d per_call=%dms retries=%d convergence=%s min_conf=%.2f",
			cfg.Debate.MaxRounds, cfg.Debate.PerCallTimeoutMs, cfg.Debate.RetryAttempts,
			cfg.Debate.Convergence, cfg.Debate.MinimumConfidenceThreshold),
		Decision: fmt.Sprintf("mode=%s max_position=%.2f max_margin_ratio=%.2f revisions=%d",
			cfg.Decision.Mode, cfg.Decision.MaxPositionPerSymbol, cfg.Decision.MaxMarginRatio, cfg.Decision.MaxRevisionAttempts),
	}
	for _, id := range cfg.EnabledProducers() {
		p := cfg.Producers[id]
		s.Producers = append(s.Producers, ProducerSummary{ID: id, Kind: p.Kind, Weight: p.Weight, TimeoutMs: p.TimeoutMs})
	}
	if registry != nil {
		s.Prompts = registry.IDs()
	}
	if cfg.Schedule.Enabled {
		s.Schedule = fmt.Sprintf("cron=%q instruments=%s", cfg.Schedule.Cron, formatList(cfg.Schedule.Instruments))
	}
	return s
}

// Print 经日志逐行输出摘要，与运行日志落在同一处。
func (s *StartupSummary) Print() {
	var b strings.Builder
	s.Write(&b)
	logger.InfoBlock(b.String())
}

func (s *StartupSummary) Write(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[分析模块 (PRODUCERS)]")
	if len(s.Producers) == 0 {
		fmt.Fprintln(w, "  (无配置)")
	}
	for _, p := range s.Producers {
		fmt.Fprintf(w, "  > %-15s kind=%-9s weight=%.3f timeout=%dms\n", p.ID, p.Kind, p.Weight, p.TimeoutMs)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[推理角色 (REASONING ROLES)]")
	if s.Offline != "" {
		fmt.Fprintf(w, "  离线脚本: %s\n", s.Offline)
	} else {
		roles := make([]string, 0, len(s.Roles))
		for role := range s.Roles {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(w, "  %-10s -> %s\n", role, s.Roles[role])
		}
		fmt.Fprintf(w, "  提示模板: %s\n", formatList(s.Prompts))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[辩论与决策 (DEBATE & DECISION)]")
	fmt.Fprintf(w, "  辩论: %s\n", s.Debate)
	fmt.Fprintf(w, "  决策: %s\n", s.Decision)
	if s.Schedule != "" {
		fmt.Fprintf(w, "  定时: %s\n", s.Schedule)
	}
	if s.HTTPAddr != "" {
		fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
