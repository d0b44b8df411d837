package feed

import (
	"context"
	"sync"
)

type watchState[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	closed  bool
	// changed is closed and replaced on every send or close.
	changed chan struct{}
}

// WatchSender is the writing half of a Watch.
type WatchSender[T any] struct {
	state *watchState[T]
}

// WatchReceiver reads the latest value of a Watch. Each receiver tracks the
// version it last marked as seen.
type WatchReceiver[T any] struct {
	state *watchState[T]
	seen  uint64
}

// NewWatch creates a latest-value feed holding init.
func NewWatch[T any](init T) (*WatchSender[T], *WatchReceiver[T]) {
	st := &watchState[T]{value: init, changed: make(chan struct{})}
	return &WatchSender[T]{state: st}, &WatchReceiver[T]{state: st}
}

// Send overwrites the slot. It returns false if the watch is closed.
func (s *WatchSender[T]) Send(v T) bool {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}
	st.value = v
	st.version++
	close(st.changed)
	st.changed = make(chan struct{})
	return true
}

// Close wakes every waiting receiver. The last value stays readable.
func (s *WatchSender[T]) Close() {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	close(st.changed)
}

// Subscribe returns a new receiver that has seen the current value.
func (s *WatchSender[T]) Subscribe() *WatchReceiver[T] {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return &WatchReceiver[T]{state: s.state, seen: s.state.version}
}

// Borrow returns the latest value without marking it seen.
func (r *WatchReceiver[T]) Borrow() T {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.value
}

// BorrowAndMark returns the latest value and marks it seen.
func (r *WatchReceiver[T]) BorrowAndMark() T {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	r.seen = r.state.version
	return r.state.value
}

// HasChanged reports whether a value newer than the last seen one exists.
func (r *WatchReceiver[T]) HasChanged() bool {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return r.state.version != r.seen
}

// Changed blocks until a value newer than the last seen one is sent and
// marks it seen. It returns ErrClosed once the sender is closed.
func (r *WatchReceiver[T]) Changed(ctx context.Context) error {
	for {
		r.state.mu.RLock()
		version, closed, ch := r.state.version, r.state.closed, r.state.changed
		r.state.mu.RUnlock()
		if version != r.seen {
			r.seen = version
			return nil
		}
		if closed {
			return ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clone returns an independent receiver on the same watch.
func (r *WatchReceiver[T]) Clone() *WatchReceiver[T] {
	return &WatchReceiver[T]{state: r.state, seen: r.seen}
}
