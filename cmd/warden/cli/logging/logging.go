// Package logging provides slog-based structured logging with per-component
// scoping. Log output goes to a session log file when Init succeeds, and
// falls back to stderr otherwise.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type contextKey string

const componentKey contextKey = "component"

var (
	mu      sync.Mutex
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logFile *os.File
	level   = new(slog.LevelVar)
)

// Init routes log output to a log file under dir. The file is named by
// session ID so concurrent sessions don't interleave. Safe to call more
// than once; later calls replace the sink.
func Init(dir, sessionID string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, sessionID+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	return nil
}

// SetLevel adjusts the minimum level for the file sink.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Close flushes and closes the log file, reverting to the stderr fallback.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// WithComponent returns a context tagged with a component name that is
// attached to every log record written with that context.
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentKey, name)
}

func fromContext(ctx context.Context) *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if name, ok := ctx.Value(componentKey).(string); ok && name != "" {
		return l.With(slog.String("component", name))
	}
	return l
}

// Debug logs at DEBUG level with the context's component attached.
func Debug(ctx context.Context, msg string, attrs ...any) {
	fromContext(ctx).DebugContext(ctx, msg, attrs...)
}

// Info logs at INFO level with the context's component attached.
func Info(ctx context.Context, msg string, attrs ...any) {
	fromContext(ctx).InfoContext(ctx, msg, attrs...)
}

// Warn logs at WARN level with the context's component attached.
func Warn(ctx context.Context, msg string, attrs ...any) {
	fromContext(ctx).WarnContext(ctx, msg, attrs...)
}

// Error logs at ERROR level with the context's component attached.
func Error(ctx context.Context, msg string, attrs ...any) {
	fromContext(ctx).ErrorContext(ctx, msg, attrs...)
}

// LogDuration logs msg at the given level with a duration_ms attribute
// measured from start.
func LogDuration(ctx context.Context, l slog.Level, msg string, start time.Time, attrs ...any) {
	attrs = append(attrs, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	fromContext(ctx).Log(ctx, l, msg, attrs...)
}
