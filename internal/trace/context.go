package trace

import "context"

type tracerKey struct{}

type spanKey struct{}

type unitKey struct{}

// FromContext returns the tracer of ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches t to ctx. A nil tracer is stored as Nop.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// WithUnit labels every event started from ctx with the unit name.
func WithUnit(ctx context.Context, unit string) context.Context {
	return context.WithValue(ctx, unitKey{}, unit)
}

// UnitFromContext returns the unit label of ctx.
func UnitFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	unit, _ := ctx.Value(unitKey{}).(string)
	return unit
}

// CurrentSpan returns the id of the innermost span started from ctx, or 0.
func CurrentSpan(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(spanKey{}).(uint64)
	return id
}

func withSpan(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, spanKey{}, id)
}
