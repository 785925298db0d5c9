// Package logger builds the service's *slog.Logger and provides the attribute
// helpers and context propagation used across the progression engine.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is "json" or "text".
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource includes file:line of the call site.
	AddSource bool
}

// DefaultOptions returns options for local development.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: "text",
		Output: os.Stdout,
	}
}

// ParseLevel parses a string into a slog.Level.
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

// New creates a logger from options. JSON output is meant for production
// log shipping, text output for a terminal.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ─────────────────────────────────────────────────────────────────────────────
// Context propagation
// ─────────────────────────────────────────────────────────────────────────────

type ctxKey struct{}

// WithContext adds a logger to the context.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain-specific attributes
// ─────────────────────────────────────────────────────────────────────────────

func UserID(id string) slog.Attr          { return slog.String("user_id", id) }
func Points(n int64) slog.Attr            { return slog.Int64("points", n) }
func Balance(n int64) slog.Attr           { return slog.Int64("balance", n) }
func XP(n int64) slog.Attr                { return slog.Int64("xp", n) }
func Level(n int) slog.Attr               { return slog.Int("level", n) }
func Streak(n int) slog.Attr              { return slog.Int("streak", n) }
func BadgeID(id string) slog.Attr         { return slog.String("badge_id", id) }
func Tier(t string) slog.Attr             { return slog.String("tier", t) }
func Component(name string) slog.Attr     { return slog.String("component", name) }
func Operation(name string) slog.Attr     { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr   { return slog.Duration("latency", d) }
func RequestID(id string) slog.Attr       { return slog.String("request_id", id) }
func Attempt(n int) slog.Attr             { return slog.Int("attempt", n) }
func EventType(t string) slog.Attr        { return slog.String("event_type", t) }

// Err creates an error attribute. A nil error is logged as an empty value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
