package trace

import (
	"errors"
	"io"
	"sync"
)

// gate holds the level shared by the concrete tracers.
type gate struct{ level Level }

func (g gate) Level() Level  { return g.level }
func (g gate) Enabled() bool { return g.level > LevelOff }

func (g gate) admits(ev *Event) bool {
	return ev.Kind == KindHeartbeat || g.level.ShouldEmit(ev.Scope)
}

// StreamTracer writes every event to w as it arrives.
type StreamTracer struct {
	gate
	mu     sync.Mutex
	w      io.Writer
	format Format
}

// NewStreamTracer creates a StreamTracer.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{gate: gate{level}, w: w, format: format}
}

// Emit writes ev. Write errors are dropped: tracing must not stop the
// server.
func (t *StreamTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ev.Seq = NextSeq()
	_, _ = t.w.Write(FormatEvent(ev, t.format)) //nolint:errcheck
}

// Flush flushes w when it buffers.
func (t *StreamTracer) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes w when it is a Closer.
func (t *StreamTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.Flush(); err != nil {
		return err
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// RingTracer keeps the last events in memory.
type RingTracer struct {
	gate
	mu     sync.Mutex
	events []Event
	next   int
	count  int
}

// NewRingTracer creates a RingTracer; capacity defaults to DefaultRingSize.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &RingTracer{gate: gate{level}, events: make([]Event, capacity)}
}

// Emit stores a copy of ev, overwriting the oldest event when full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := *ev
	stored.Seq = NextSeq()
	t.events[t.next] = stored
	t.next = (t.next + 1) % len(t.events)
	t.count = min(t.count+1, len(t.events))
}

// Snapshot returns the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, 0, t.count)
	start := (t.next - t.count + len(t.events)) % len(t.events)
	for i := range t.count {
		out = append(out, t.events[(start+i)%len(t.events)])
	}
	return out
}

// Dump writes the stored events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }
func (t *RingTracer) Close() error { return nil }

// MultiTracer fans events out to several tracers.
type MultiTracer struct {
	gate
	tracers []Tracer
}

// NewMultiTracer creates a MultiTracer.
func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	return &MultiTracer{gate: gate{level}, tracers: tracers}
}

// Emit hands each tracer its own copy of ev.
func (t *MultiTracer) Emit(ev *Event) {
	for _, tr := range t.tracers {
		cp := *ev
		tr.Emit(&cp)
	}
}

// Flush flushes every tracer and joins the errors.
func (t *MultiTracer) Flush() error {
	errs := make([]error, 0, len(t.tracers))
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every tracer and joins the errors.
func (t *MultiTracer) Close() error {
	errs := make([]error, 0, len(t.tracers))
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}
