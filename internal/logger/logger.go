package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	return slog.New(handler)
}

// SetOutput 切换日志输出（例如 stdout + 文件）。
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) { activeLogger().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { activeLogger().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { activeLogger().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { activeLogger().Error(fmt.Sprintf(format, v...)) }

// Entry carries run-scoped attributes (run id, stage) on every line it emits.
type Entry struct {
	attrs []any
}

// With returns an Entry tagged with the given key/value pairs.
func With(kv ...any) Entry {
	return Entry{attrs: append([]any(nil), kv...)}
}

// With extends the entry with more attributes; the receiver is left untouched.
func (e Entry) With(kv ...any) Entry {
	attrs := make([]any, 0, len(e.attrs)+len(kv))
	attrs = append(attrs, e.attrs...)
	attrs = append(attrs, kv...)
	return Entry{attrs: attrs}
}

func (e Entry) Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...), e.attrs...)
}

func (e Entry) Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...), e.attrs...)
}

func (e Entry) Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...), e.attrs...)
}

func (e Entry) Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...), e.attrs...)
}

// InfoBlock 逐行输出多行文本（报告、摘要）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		Infof("%s", line)
	}
}
