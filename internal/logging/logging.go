// Package logging configures structured logging with log/slog.
//
// The language server speaks JSON-RPC on stdout, so logs always go to a
// caller supplied writer (stderr by default) and never to stdout.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// UnitKey is the context key for the compilation unit group name.
	UnitKey ContextKey = "unit"
	// InstanceKey is the context key for a unit instance id.
	InstanceKey ContextKey = "instance"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

func init() {
	Init(LevelInfo, FormatText, os.Stderr)
}

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q (expected: debug|info|warn|error)", s)
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format represents a log output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %q (expected: text|json)", s)
	}
}

// Init replaces the global logger. A nil writer means stderr.
func Init(level Level, format Format, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: level.slog(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// With returns the global logger scoped to a component, e.g. "export".
func With(component string) *slog.Logger {
	return Logger().With("component", component)
}

// WithUnit attaches the unit group and instance id to ctx.
func WithUnit(ctx context.Context, group, instance string) context.Context {
	ctx = context.WithValue(ctx, UnitKey, group)
	return context.WithValue(ctx, InstanceKey, instance)
}

// FromContext returns a logger carrying the unit attributes found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := Logger()
	if ctx == nil {
		return logger
	}
	if group, ok := ctx.Value(UnitKey).(string); ok && group != "" {
		logger = logger.With("unit", group)
	}
	if id, ok := ctx.Value(InstanceKey).(string); ok && id != "" {
		logger = logger.With("instance", id)
	}
	return logger
}

// Error logs err under msg with optional key-value pairs.
func Error(logger *slog.Logger, msg string, err error, args ...any) {
	if logger == nil {
		logger = Logger()
	}
	logger.Error(msg, append([]any{"error", err}, args...)...)
}
