// Package logger provides structured logging for the ting measurement
// client. It uses Go's standard log/slog package for structured logging
// with context support.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// Logger wraps slog.Logger to provide application-specific logging functionality
type Logger struct {
	*slog.Logger
}

// contextKey is the type for context keys used by this package
type contextKey string

const loggerKey contextKey = "logger"

// New creates a new Logger with the specified level and output writer
func New(level slog.Level, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewTextHandler(w, opts)
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewDefault creates a logger with default settings (Info level, stdout)
func NewDefault() *Logger {
	return New(slog.LevelInfo, os.Stdout)
}

// levelCritical sits above slog's built-in levels, matching the
// severity CRITICAL occupies above ERROR in the CLI's log-level
// vocabulary (CRITICAL, ERROR, WARNING, INFO, DEBUG).
const levelCritical = slog.Level(12)

// ParseLevel parses a string log level into slog.Level. Accepts both
// the CLI's uppercase vocabulary (CRITICAL, ERROR, WARNING, INFO,
// DEBUG) and the lowercase short forms used internally, case-insensitively.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return levelCritical, nil
	default:
		return slog.LevelInfo, nil
	}
}

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, or returns a default logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return NewDefault()
}

// With returns a new Logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// WithGroup returns a new Logger with a group name
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		Logger: l.Logger.WithGroup(name),
	}
}

// Component returns a new Logger with a "component" attribute
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Circuit returns a new Logger tagged with a Tor-assigned circuit id.
func (l *Logger) Circuit(id string) *Logger {
	return l.With("circuit_id", id)
}

// Stream returns a new Logger tagged with a Tor stream id.
func (l *Logger) Stream(id string) *Logger {
	return l.With("stream_id", id)
}

// Leg returns a new Logger tagged with a circuit leg (x, y, or xy).
func (l *Logger) Leg(leg tingtype.Leg) *Logger {
	return l.With("leg", leg.String())
}

// Pair returns a new Logger tagged with the relay pair under measurement.
func (l *Logger) Pair(pair tingtype.RelayPair) *Logger {
	return l.With("pair", pair.String())
}
