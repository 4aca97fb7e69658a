package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	threadIDKey ctxKey = iota
	turnIDKey
	specialistIDKey
)

// WithThreadID returns a context carrying the thread key string.
func WithThreadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, threadIDKey, id)
}

// WithTurnID returns a context carrying the turn ID.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey, id)
}

// WithSpecialistID returns a context carrying the specialist ID.
func WithSpecialistID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, specialistIDKey, id)
}

// ThreadID extracts the thread key string from the context, or "" if absent.
func ThreadID(ctx context.Context) string {
	v, _ := ctx.Value(threadIDKey).(string)
	return v
}

// TurnID extracts the turn ID from the context, or "" if absent.
func TurnID(ctx context.Context) string {
	v, _ := ctx.Value(turnIDKey).(string)
	return v
}

// SpecialistID extracts the specialist ID from the context, or "" if absent.
func SpecialistID(ctx context.Context) string {
	v, _ := ctx.Value(specialistIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, injecting thread/turn/specialist
// IDs from the context into every record. Use with
// slog.New(NewCorrelationHandler(inner)) so callers can log via
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ThreadID(ctx); v != "" {
		r.AddAttrs(slog.String("thread_id", v))
	}
	if v := TurnID(ctx); v != "" {
		r.AddAttrs(slog.String("turn_id", v))
	}
	if v := SpecialistID(ctx); v != "" {
		r.AddAttrs(slog.String("specialist_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
