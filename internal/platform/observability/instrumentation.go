package observability

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

type requestIDKey struct{}

// WithRequestID tags ctx so spans and metrics recorded under it carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	return loadSink().cfg.Enabled
}

func activeLogger() *slog.Logger {
	s := loadSink()
	if !s.cfg.Enabled {
		return nil
	}
	return s.logger
}

func baseAttrs(ctx context.Context, attrs ...slog.Attr) []slog.Attr {
	if id := RequestIDFrom(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	return attrs
}

// StartSpan logs the start of operation and returns a func that logs its end.
// The end is logged at warn level when it receives an error.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger := activeLogger()
	if logger == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "span start",
		baseAttrs(ctx, slog.String("component", component), slog.String("operation", operation))...)

	return ctx, func(err error) {
		level := slog.LevelDebug
		attrs := baseAttrs(ctx,
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		)
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.LogAttrs(ctx, level, "span end", attrs...)
	}
}

// RecordMetric logs one datapoint. Labels are emitted in name order.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger := activeLogger()
	if logger == nil {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := baseAttrs(ctx, slog.String("metric", name), slog.Float64("value", value))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, labels[k]))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "metric", attrs...)
}
