package observability

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc detaches the sink installed by Setup.
type ShutdownFunc func(context.Context) error

type sink struct {
	logger *slog.Logger
	cfg    Config
}

var current atomic.Pointer[sink]

func loadSink() *sink {
	s := current.Load()
	if s == nil {
		return &sink{}
	}
	return s
}

// Setup routes spans and metrics to logger. A later Setup replaces the sink.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	installed := &sink{logger: logger, cfg: cfg}
	current.Store(installed)

	if logger != nil {
		logger.InfoContext(ctx, "[OBSERVABILITY] relay spans and metrics", slog.Bool("enabled", cfg.Enabled))
	}

	return func(context.Context) error {
		current.CompareAndSwap(installed, nil)
		return nil
	}, nil
}
