package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	globalLogger *slog.Logger
	mu           sync.RWMutex
	once         sync.Once
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the operator log. Pipeline failures are reported here and nowhere else.
func Init(level string) {
	once.Do(func() {
		setLogger(os.Stdout, level)
	})
}

// SetOutput replaces the operator log destination; tests use it to capture warnings.
func SetOutput(w io.Writer, level string) {
	setLogger(w, level)
}

func setLogger(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	l := slog.New(handler)

	mu.Lock()
	globalLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Get returns the global logger instance
func Get() *slog.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		Init("info")
		mu.RLock()
		l = globalLogger
		mu.RUnlock()
	}
	return l
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
