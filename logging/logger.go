// Package logging provides the structured logger used across vecforge.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with index-lifecycle specific helpers.
// Field names are kept consistent so build, transfer and query logs can be
// correlated by device, dimension and count.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// ParseLevel converts a config string (debug, info, warn, error) to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return NoopLogger()
	}
	return l
}

// WithDevice adds the device the operation runs on.
func (l *Logger) WithDevice(id int, kind string) *Logger {
	return &Logger{Logger: l.Logger.With("device_id", id, "device_kind", kind)}
}

// WithJob adds a build job identifier.
func (l *Logger) WithJob(id string) *Logger {
	return &Logger{Logger: l.Logger.With("job_id", id)}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{Logger: l.Logger.With("dimension", dim)}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With("count", count)}
}

// LogBuild logs the outcome of a graph construction.
func (l *Logger) LogBuild(ctx context.Context, algo string, n, degree int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "graph build failed",
			"algo", algo,
			"count", n,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "graph build completed",
		"algo", algo,
		"count", n,
		"graph_degree", degree,
		"elapsed", elapsed,
	)
}

// LogTransfer logs an accelerator to portable conversion.
func (l *Logger) LogTransfer(ctx context.Context, n int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "device transfer failed",
			"count", n,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "device transfer completed",
		"count", n,
		"elapsed", elapsed,
	)
}

// LogSave logs an index save.
func (l *Logger) LogSave(ctx context.Context, path string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index save failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "index saved",
		"path", path,
		"bytes", bytes,
	)
}

// LogLoad logs an index load.
func (l *Logger) LogLoad(ctx context.Context, path string, n int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index load failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "index loaded",
		"path", path,
		"count", n,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"k", k,
		"results", resultsFound,
	)
}
