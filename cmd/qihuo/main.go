package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"qihuo/internal/app"
	"qihuo/internal/config"
	"qihuo/internal/logger"
	"qihuo/internal/render"
	"qihuo/internal/store"
	"qihuo/internal/store/sqlite"
	"qihuo/internal/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "qihuo",
	Short:         "期货多模块分析 → 多空辩论 → 风控决策",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(runCmd(), serveCmd(), scheduleCmd(), showCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// loadConfig 读取配置并初始化日志输出；返回的 closer 负责关闭日志文件。
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	var files []*os.File
	closer := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	if logFile != nil {
		files = append(files, logFile)
	} else {
		// 报告写到 stdout，日志走 stderr
		logger.SetOutput(os.Stderr)
	}
	logger.SetReasoningWriter(nil)
	if cfg.App.ReasoningLog != "" {
		f, err := setupReasoningLogOutput(cfg.App.ReasoningLog)
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("初始化推理日志失败: %w", err)
		}
		if f != nil {
			files = append(files, f)
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableReasoningPayloadDump(cfg.App.ReasoningDump)
	logger.Infof("✓ 配置加载成功（环境=%s，模块=%s）", cfg.App.Env, strings.Join(cfg.EnabledProducers(), ","))
	return cfg, closer, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	var (
		asOf      string
		producers []string
		rounds    int
		refPrice  float64
		exportDir string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "run <instrument>",
		Short: "对单个品种执行一次完整决策",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer()
			if rounds > 0 {
				cfg.Debate.MaxRounds = rounds
			}
			day, err := types.ParseAsOf(asOf, time.Now())
			if err != nil {
				return err
			}
			if len(producers) == 0 {
				producers = cfg.EnabledProducers()
			}
			req := types.NewAnalysisRequest(args[0], day, producers)
			req.ReferencePrice = refPrice

			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			rec, err := a.RunOnce(ctx, req)
			if err != nil {
				return err
			}
			if exportDir == "" {
				exportDir = cfg.App.ExportDir
			}
			if exportDir != "" {
				path, err := render.WriteFile(exportDir, rec, format)
				if err != nil {
					return fmt.Errorf("导出记录失败: %w", err)
				}
				logger.Infof("记录已导出到 %s", path)
			}
			return printRecord(rec)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "analysis date YYYY-MM-DD (default today)")
	cmd.Flags().StringSliceVar(&producers, "producers", nil, "producer ids (default all enabled)")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "override debate.max_rounds")
	cmd.Flags().Float64Var(&refPrice, "reference-price", 0, "reference price for entry/stop levels")
	cmd.Flags().StringVar(&exportDir, "export", "", "write the record into this directory")
	cmd.Flags().StringVar(&format, "format", render.FormatJSON, "export format: json|yaml")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务（schedule.enabled 时同时运行定时任务）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer()
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			defer a.Close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.Serve(ctx)
		},
	}
}

func scheduleCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "按 schedule.cron 定时对 schedule.instruments 运行决策",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer()
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			defer a.Close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.Schedule(ctx, now)
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "run once immediately before waiting for the schedule")
	return cmd
}

func showCmd() *cobra.Command {
	var (
		instrument string
		outcome    string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "查看已保存的运行记录",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer()
			records, err := sqlite.NewSqliteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer records.Close()

			if len(args) == 1 {
				rec, err := records.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printRecord(rec)
			}
			recs, err := records.List(cmd.Context(), store.ListFilter{
				Instrument: instrument,
				Outcome:    types.Outcome(strings.ToLower(outcome)),
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(recs)
			}
			fmt.Println(render.RecordsTable(recs))
			return nil
		},
	}
	cmd.Flags().StringVar(&instrument, "instrument", "", "instrument filter")
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome filter: executed|aborted")
	cmd.Flags().IntVar(&limit, "limit", 20, "max records")
	return cmd
}

func printRecord(rec types.DecisionRecord) error {
	if viper.GetBool("json") {
		return printJSON(rec)
	}
	fmt.Print(render.Report(rec))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupReasoningLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetReasoningWriter(f)
	return f, nil
}
