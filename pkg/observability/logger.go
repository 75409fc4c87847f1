package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/karatlane/karat/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLogLevel maps a config string onto a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

// Logger emits structured JSON log lines. Derived loggers share the
// underlying handler, so WithField chains are cheap.
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a JSON logger at the given level. A nil output
// defaults to stdout.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slogLevels[level],
	})
	return &Logger{logger: slog.New(handler), level: level}
}

// NewDefaultLogger creates an info-level logger writing to stdout.
func NewDefaultLogger() *Logger {
	return NewLogger(InfoLevel, os.Stdout)
}

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithField returns a logger that stamps the field on every line.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(key, value)
}

// WithFields returns a logger carrying all given fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(args...)
}

// WithError attaches err under the "error" field. A nil error returns
// the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive("error", err.Error())
}

func (l *Logger) Debug(message string) { l.logger.Debug(message) }
func (l *Logger) Info(message string)  { l.logger.Info(message) }
func (l *Logger) Warn(message string)  { l.logger.Warn(message) }
func (l *Logger) Error(message string) { l.logger.Error(message) }

func (l *Logger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// Context plumbing. The values live under the shared contextkeys keys so
// the audit trail and the logger see the same request metadata.

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return contextkeys.WithRequestID(ctx, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return contextkeys.RequestID(ctx)
}

// WithPrincipalID adds the acting user's ID to the context.
func WithPrincipalID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalIDKey, userID)
}

// GetPrincipalID retrieves the acting user's ID from context.
func GetPrincipalID(ctx context.Context) string {
	id, _ := ctx.Value(contextkeys.PrincipalIDKey).(string)
	return id
}

// WithStoreID adds the acting user's store to the context.
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, contextkeys.StoreIDKey, storeID)
}

// GetStoreID retrieves the acting user's store from context.
func GetStoreID(ctx context.Context) string {
	id, _ := ctx.Value(contextkeys.StoreIDKey).(string)
	return id
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// GetLogger retrieves the logger from context, falling back to the
// default logger so callers never get nil.
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return NewDefaultLogger()
}

// FromContext builds a logger enriched with whatever request metadata
// the context carries: request_id, user_id, store_id.
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if id := GetRequestID(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}
	if id := GetPrincipalID(ctx); id != "" {
		logger = logger.WithField("user_id", id)
	}
	if id := GetStoreID(ctx); id != "" {
		logger = logger.WithField("store_id", id)
	}
	return logger
}
