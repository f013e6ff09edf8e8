package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// SlogLogger adapts *slog.Logger to Logger. The context is handed to the
// handler so request-scoped handlers can read it.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLoggerWithOptions builds a text or JSON slog backend writing to
// opts.Output (stderr when nil).
func NewSlogLoggerWithOptions(opts Options) (*SlogLogger, error) {
	lvl, err := parseSlogLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(out, hopts)
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	}
	return NewSlogLogger(slog.New(h)), nil
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func parseSlogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
