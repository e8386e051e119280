package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerContextKey keys loggers stored in a context; the empty struct type
// cannot collide with keys from other packages.
type loggerContextKey struct{}

// ToContext attaches a logger to the context for downstream calls.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the context's logger, or the global one when the
// context carries none. It never returns nil.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerContextKey{}).(*zap.SugaredLogger); ok {
		return l
	}

	return global
}

// WithName derives a context whose logger carries the given name, used by
// each binary to mark its records.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV derives a context whose logger always logs the given key-value pairs.
func WithKV(ctx context.Context, kvs ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(kvs...))
}
