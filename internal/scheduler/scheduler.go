package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/types"

	"github.com/robfig/cron/v3"
)

// Runner 执行一次完整的决策运行。
type Runner interface {
	Run(ctx context.Context, req types.AnalysisRequest) types.DecisionRecord
}

// DailyScheduler 按 cron 表达式（通常为每个交易日收盘后）对品种列表依次运行决策。
type DailyScheduler struct {
	Spec           string
	Instruments    []string
	Producers      []string
	RunImmediately bool

	runner Runner
	cron   *cron.Cron
	nowFn  func() time.Time
}

func NewDailyScheduler(cfg *config.Config, runner Runner) *DailyScheduler {
	return &DailyScheduler{
		Spec:        cfg.Schedule.Cron,
		Instruments: cfg.Schedule.Instruments,
		Producers:   cfg.EnabledProducers(),
		runner:      runner,
		nowFn:       time.Now,
	}
}

// Start 注册任务并阻塞到 ctx 结束；返回前等待正在进行的运行完成。
func (s *DailyScheduler) Start(ctx context.Context) error {
	if s.runner == nil {
		return fmt.Errorf("scheduler: runner is nil")
	}
	if len(s.Instruments) == 0 {
		return fmt.Errorf("scheduler: no instruments configured")
	}
	s.cron = cron.New(
		cron.WithParser(config.CronParser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := s.cron.AddFunc(s.Spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("register daily task %q: %w", s.Spec, err)
	}
	logger.Infof("DailyScheduler: started cron=%q instruments=%s run_immediately=%v",
		s.Spec, strings.Join(s.Instruments, ","), s.RunImmediately)
	if s.RunImmediately {
		s.RunOnce(ctx)
	}
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	logger.Infof("DailyScheduler: stopped")
	return nil
}

// Next 返回下一次触发时间，用于启动日志与测试。
func (s *DailyScheduler) Next(after time.Time) (time.Time, error) {
	sched, err := config.CronParser.Parse(s.Spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// RunOnce 以今天为分析日期依次运行所有品种；单个品种失败不影响其他品种。
func (s *DailyScheduler) RunOnce(ctx context.Context) []types.DecisionRecord {
	asOf, _ := types.ParseAsOf("", s.nowFn())
	out := make([]types.DecisionRecord, 0, len(s.Instruments))
	for _, inst := range s.Instruments {
		if ctx.Err() != nil {
			logger.Warnf("DailyScheduler: 取消，剩余品种跳过: %v", ctx.Err())
			break
		}
		rec := s.runner.Run(ctx, types.NewAnalysisRequest(inst, asOf, s.Producers))
		entry := logger.With("instrument", rec.Request.Instrument, "run_id", rec.RunID)
		if rec.Executed() {
			entry.Infof("DailyScheduler: 执行 side=%s size=%.4f", rec.Accepted.Side, rec.Accepted.SizeFraction)
		} else {
			entry.Infof("DailyScheduler: 终止 %s", rec.AbortReasonText())
		}
		out = append(out, rec)
	}
	return out
}

// cronLogger 把 cron 内部日志转到 logger。
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	logger.With(kv...).Debugf("cron: %s", msg)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	logger.With(kv...).Errorf("cron: %s: %v", msg, err)
}
