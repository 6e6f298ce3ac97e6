package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Options controls how the process-wide logger is built.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
}

// New creates a new structured logger with default configuration
func New() zerolog.Logger {
	return NewWithOptions(os.Stderr, Options{Level: "info", Format: "console"})
}

// NewWithOptions creates a logger writing to w with the given level and format.
// Unknown levels fall back to info.
func NewWithOptions(w io.Writer, opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if !strings.EqualFold(opts.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewWithWriter creates a new structured logger with a custom writer
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithRun tags the context logger with the pipeline run id and stores it back.
func WithRun(ctx context.Context, runID string) context.Context {
	log := FromContext(ctx).With().Str("run_id", runID).Logger()
	return WithContext(ctx, log)
}
