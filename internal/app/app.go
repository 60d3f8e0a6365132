package app

import (
	"context"
	"fmt"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/scheduler"
	"qihuo/internal/store"
	"qihuo/internal/supervisor"
	apihttp "qihuo/internal/transport/http/api"
	"qihuo/internal/types"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→执行单次运行、HTTP 服务或定时任务。
type App struct {
	cfg        *config.Config
	supervisor *supervisor.Supervisor
	records    store.RecordRepository
	http       *apihttp.Server
	scheduler  *scheduler.DailyScheduler
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts...)
}

// RunOnce 执行一次决策运行；记录由 supervisor 负责持久化。
func (a *App) RunOnce(ctx context.Context, req types.AnalysisRequest) (types.DecisionRecord, error) {
	if a == nil || a.supervisor == nil {
		return types.DecisionRecord{}, fmt.Errorf("app not initialized")
	}
	return a.supervisor.Run(ctx, req), nil
}

// Serve 启动 HTTP 服务；schedule.enabled 时同时运行定时任务。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.cfg.Schedule.Enabled {
		group.Go(func() error { return a.scheduler.Start(ctx) })
	}
	return group.Wait()
}

// Schedule 仅运行定时任务，直到 ctx 结束。
func (a *App) Schedule(ctx context.Context, runImmediately bool) error {
	if a == nil || a.scheduler == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.scheduler.RunImmediately = runImmediately
	return a.scheduler.Start(ctx)
}

// Records exposes the record store (show command, tests).
func (a *App) Records() store.RecordRepository {
	if a == nil {
		return nil
	}
	return a.records
}

func (a *App) Close() error {
	if a == nil || a.records == nil {
		return nil
	}
	return a.records.Close()
}
