package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithSession returns a context whose logger tags every record with the
// verification session and the principal it belongs to.
func WithSession(ctx context.Context, sessionID, principal string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("session_id", sessionID, "principal", principal))
}
