// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// LeadIDKey is the context key for the lead being processed
	LeadIDKey contextKey = "lead_id"
	// TaskIDKey is the context key for the queue task ID
	TaskIDKey contextKey = "task_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, lead_id, and task_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		newLogger = newLogger.WithLeadID(leadID)
	}

	if taskID, ok := ctx.Value(TaskIDKey).(string); ok && taskID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("task_id", taskID))}
	}

	return newLogger
}

// WithLeadID returns a logger with lead ID
func (l *Logger) WithLeadID(leadID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("lead_id", leadID)),
	}
}

// TaskEvent logs a queue task lifecycle event
func (l *Logger) TaskEvent(task, leadID string, attrs ...any) {
	args := append([]any{slog.String("task", task), slog.String("lead_id", leadID)}, attrs...)
	l.Info("task_event", args...)
}

// StaleTrigger logs a debounced task that exited because a newer trigger
// superseded it. Expected outcome, so debug severity.
func (l *Logger) StaleTrigger(kind, leadID string, observed, current int64) {
	l.Debug("stale_trigger",
		slog.String("kind", kind),
		slog.String("lead_id", leadID),
		slog.Int64("observed_version", observed),
		slog.Int64("current_version", current),
	)
}

// DispatchError logs a delivery failure on an outbound effect
func (l *Logger) DispatchError(target, leadID string, attempt int, err error) {
	l.Error("dispatch_error",
		slog.String("target", target),
		slog.String("lead_id", leadID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// ConfigError logs an operator-facing configuration problem
func (l *Logger) ConfigError(component string, err error) {
	l.Error("configuration_error",
		slog.String("component", component),
		slog.String("error", err.Error()),
	)
}

// SweepResult logs the outcome of a pending-intent sweep pass
func (l *Logger) SweepResult(scanned, expired, skipped int) {
	l.Info("sweep_result",
		slog.Int("scanned", scanned),
		slog.Int("expired", expired),
		slog.Int("skipped", skipped),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
