package d4

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific helpers.
// This provides structured logging with consistent field names.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithStep adds a step field to the logger.
func (l *Logger) WithStep(step Step) *Logger {
	return &Logger{
		Logger: l.Logger.With("step", step.String()),
	}
}

// WithRun adds a run id field to the logger.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", id),
	}
}

// LogStep logs the outcome of a pipeline step.
func (l *Logger) LogStep(ctx context.Context, step Step, records int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "step failed",
			"step", step.String(),
			"duration", d,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "step completed",
		"step", step.String(),
		"records", records,
		"duration", d,
	)
}

// LogIndex logs the EQ index build.
func (l *Logger) LogIndex(ctx context.Context, eqs, columns, terms int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed", "error", err)
		return
	}
	l.InfoContext(ctx, "index built",
		"eqs", eqs,
		"columns", columns,
		"terms", terms,
	)
}

// LogExpansion logs the expansion outcome.
func (l *Logger) LogExpansion(ctx context.Context, columns, expanded, added int) {
	l.InfoContext(ctx, "columns expanded",
		"columns", columns,
		"expanded_columns", expanded,
		"added_nodes", added,
	)
}

// LogRun logs the outcome of a complete run.
func (l *Logger) LogRun(ctx context.Context, manifestID uint64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run failed",
			"duration", d,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "run completed",
		"manifest", manifestID,
		"duration", d,
	)
}
