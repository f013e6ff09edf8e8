package logging

import (
	"fmt"
	"io"
	"strings"
)

const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// Options selects a logger backend and its output.
type Options struct {
	Backend string
	Level   string
	// JSON switches slog to the JSON handler; zap always writes JSON unless
	// Development is set.
	JSON        bool
	Development bool
	Output      io.Writer
}

// New builds a Logger for the requested backend.
func New(opts Options) (Logger, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSlog:
		l, err := NewSlogLoggerWithOptions(opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	case BackendZap:
		l, err := NewZapLogger(opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", opts.Backend)
	}
}
