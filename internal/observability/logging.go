// Package observability provides structured logging, Prometheus metrics,
// and OpenTelemetry tracing for Sage.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with request correlation and
// sensitive-value redaction. It wraps log/slog; JSON output is the
// production default, text is for development.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format specifies output format: "json" or "text".
	Format string

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer

	// RedactPatterns are additional regex patterns for sensitive data
	// redaction, on top of the defaults.
	RedactPatterns []string
}

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for per-turn request IDs.
	RequestIDKey ContextKey = "request_id"

	// SessionIDKey is the context key for session IDs.
	SessionIDKey ContextKey = "session_id"

	// PrincipalIDKey is the context key for the authenticated principal.
	PrincipalIDKey ContextKey = "principal_id"
)

// DefaultRedactPatterns contains regex patterns for common secrets.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
}

// NewLogger creates a structured logger. Empty fields fall back to
// info-level JSON on stdout.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{
		logger:  slog.New(handler),
		redacts: redacts,
	}
}

// Slog exposes the underlying slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// With returns a logger carrying the given key-value pairs on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

// WithContext returns a logger that includes well-known correlation
// fields extracted from the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := make([]any, 0, 6)
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	if v, ok := ctx.Value(PrincipalIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("principal_id", v))
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(attrs...), redacts: l.redacts}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warn-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	for i := 1; i < len(args); i += 2 {
		if s, ok := args[i].(string); ok {
			args[i] = l.redact(s)
		}
	}
	l.logger.Log(ctx, level, l.redact(msg), args...)
}

// redact replaces matches of the redaction patterns with a placeholder.
func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// NopLogger returns a logger that discards everything. Test helper.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
