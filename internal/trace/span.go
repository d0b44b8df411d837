package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

func nextSpanID() uint64 { return spanCounter.Add(1) }

// Span is an open span. The zero span (and nil) ignores every call.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	unit    string
	name    string
	started time.Time
	extra   map[string]string
}

// Start begins a span with the tracer, parent and unit of ctx. The
// returned context carries the new span as parent for nested spans.
// When the scope is filtered out ctx is returned unchanged.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return ctx, &Span{}
	}
	s := &Span{
		tracer:  t,
		id:      nextSpanID(),
		parent:  CurrentSpan(ctx),
		scope:   scope,
		unit:    UnitFromContext(ctx),
		name:    name,
		started: time.Now(),
	}
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return withSpan(ctx, s.id), s
}

// Set attaches a key-value pair to the end event.
func (s *Span) Set(key, value string) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// End emits the end event and returns the span duration. Later calls do
// nothing.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	now := time.Now()
	ev := s.event(KindSpanEnd, now, detail)
	ev.Extra = s.extra
	s.tracer.Emit(ev)
	s.tracer = nil
	return now.Sub(s.started)
}

// ID returns the span id, 0 for a filtered span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	return &Event{
		Time:     at,
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Unit:     s.unit,
		Name:     s.name,
		Detail:   detail,
	}
}

// Point emits an instant event under the current span of ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: CurrentSpan(ctx),
		Unit:     UnitFromContext(ctx),
		Name:     name,
		Detail:   detail,
	})
}
