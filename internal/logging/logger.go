// Package logging provides structured logging with trace-ID propagation,
// adapted from the teacher's infrastructure/logging package (same
// logrus-wrapper shape, generalized away from blockchain-specific helpers).
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through a cycle/batch.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	BatchIDKey ContextKey = "batch_id"
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with service-scoped structured fields.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the given service name, level, and format
// ("json" or "text").
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches the trace/batch IDs carried on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if batchID := ctx.Value(BatchIDKey); batchID != nil {
		entry = entry.WithField("batch_id", batchID)
	}
	return entry
}

// WithFields attaches arbitrary structured fields alongside the service tag.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError attaches an error alongside the service tag.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// NewTraceID generates a fresh trace/cycle ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stashes a trace ID on ctx for later retrieval by WithContext.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithBatchID stashes a batch ID on ctx for later retrieval by WithContext.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// LogCycleTick logs the start of a scheduler tick.
func (l *Logger) LogCycleTick(ctx context.Context, kind string) {
	l.WithContext(ctx).WithFields(logrus.Fields{"cycle_kind": kind}).Info("cycle tick fired")
}

// LogBatchTransition logs a batch state-machine transition.
func (l *Logger) LogBatchTransition(ctx context.Context, batchID string, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"batch_id": batchID,
		"from":     from,
		"to":       to,
	}).Info("batch state transition")
}

// LogUpstreamCall logs an outbound call to a code-host or LLM adapter.
func (l *Logger) LogUpstreamCall(ctx context.Context, adapter, operation string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"adapter":     adapter,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("upstream call failed")
	} else {
		entry.Debug("upstream call succeeded")
	}
}

// Default is a process-wide fallback logger for packages that can't take a
// constructor-injected one (e.g. package-level helpers).
var defaultLogger *Logger

// InitDefault initializes the default logger; safe to call once at startup.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the process-wide logger, lazily constructing a basic one
// if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("repo-scout", "info", "json")
	}
	return defaultLogger
}
