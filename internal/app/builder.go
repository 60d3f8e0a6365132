package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/debate"
	"qihuo/internal/decision"
	"qihuo/internal/gateway/provider"
	"qihuo/internal/logger"
	"qihuo/internal/producer"
	"qihuo/internal/prompt"
	"qihuo/internal/reasoning"
	"qihuo/internal/scheduler"
	"qihuo/internal/store"
	"qihuo/internal/store/sqlite"
	"qihuo/internal/supervisor"
	apihttp "qihuo/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	reasonerFn func(*config.Config) (reasoning.Reasoner, *prompt.Registry, error)
	storeFn    func(config.StoreConfig) (store.RecordRepository, error)

	reasonerOverride reasoning.Reasoner
	storeOverride    store.RecordRepository
}

type AppBuilderOption func(*AppBuilder)

// WithReasoner 替换推理服务（测试、离线回放）。
func WithReasoner(r reasoning.Reasoner) AppBuilderOption {
	return func(b *AppBuilder) { b.reasonerOverride = r }
}

// WithStore 替换记录存储。
func WithStore(s store.RecordRepository) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = s }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		reasonerFn: buildReasoner,
		storeFn:    buildStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg

	var (
		reasoner reasoning.Reasoner
		registry *prompt.Registry
		err      error
	)
	if b.reasonerOverride != nil {
		reasoner = b.reasonerOverride
	} else if reasoner, registry, err = b.reasonerFn(cfg); err != nil {
		return nil, err
	}

	producers, err := producer.Build(cfg, reasoner)
	if err != nil {
		return nil, fmt.Errorf("构建分析模块失败: %w", err)
	}

	records := b.storeOverride
	if records == nil {
		if records, err = b.storeFn(cfg.Store); err != nil {
			return nil, fmt.Errorf("打开记录存储失败: %w", err)
		}
	}

	engine := debate.New(reasoner, cfg.Debate)
	chain := decision.NewChainFromConfig(cfg.Decision, reasoner)
	sup := supervisor.New(cfg, producers, engine, chain, supervisor.WithRecorder(records))

	httpSrv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:             cfg.App.HTTPAddr,
		Records:          records,
		Runner:           sup,
		DefaultProducers: cfg.EnabledProducers(),
	})
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		supervisor: sup,
		records:    records,
		http:       httpSrv,
		scheduler:  scheduler.NewDailyScheduler(cfg, sup),
		Summary:    newStartupSummary(cfg, registry),
	}, nil
}

// buildReasoner 优先使用离线脚本；否则加载提示模板与模型。
func buildReasoner(cfg *config.Config) (reasoning.Reasoner, *prompt.Registry, error) {
	if path := strings.TrimSpace(cfg.Reasoning.ScriptPath); path != "" {
		r, err := reasoning.LoadScript(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("✓ 使用离线推理脚本 %s", path)
		return r, nil, nil
	}
	registry, err := prompt.NewRegistry(cfg.Reasoning.PromptsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载提示模板失败: %w", err)
	}
	registry.OnChange(func(s prompt.Snapshot) {
		logger.Infof("提示模板已重新加载（%d 个）", len(s.Templates))
	})
	models, err := cfg.Reasoning.ResolveModelConfigs()
	if err != nil {
		return nil, nil, err
	}
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("reasoning.models 为空且未配置 script_path")
	}
	providers := provider.BuildProviders(models,
		time.Duration(cfg.Reasoning.TimeoutSeconds)*time.Second,
		cfg.Reasoning.BreakerThreshold,
		time.Duration(cfg.Reasoning.BreakerCooldownSeconds)*time.Second,
	)
	return reasoning.NewLLMReasoner(registry, providers, cfg.Reasoning.Roles, models[0].ID), registry, nil
}

func buildStore(cfg config.StoreConfig) (store.RecordRepository, error) {
	return sqlite.NewSqliteStore(cfg.Path)
}
