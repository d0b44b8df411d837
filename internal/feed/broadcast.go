package feed

import (
	"context"
	"sync"
)

// Broadcast is a bounded fan-out channel. Messages are retained in a ring of
// the given capacity; subscribers read them through their own cursor.
type Broadcast[T any] struct {
	mu     sync.Mutex
	buf    []T
	next   uint64 // sequence number of the next message
	subs   int
	closed bool
	notify chan struct{}
}

// NewBroadcast creates a broadcast channel retaining up to capacity messages.
func NewBroadcast[T any](capacity int) *Broadcast[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Broadcast[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Send publishes v to the current subscribers and returns how many there
// are. With no subscribers the message is dropped. Sending after Close is a
// no-op returning 0.
func (b *Broadcast[T]) Send(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.subs == 0 {
		return 0
	}
	b.buf[b.next%uint64(len(b.buf))] = v
	b.next++
	b.wakeLocked()
	return b.subs
}

// Close ends the stream. Subscribers drain what they have not read yet and
// then get ErrClosed.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.wakeLocked()
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

func (b *Broadcast[T]) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Subscribe registers a subscriber that sees only messages sent from now on.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	return &Subscription[T]{b: b, cursor: b.next}
}

// Subscription is one subscriber of a Broadcast. It is meant to be used by a
// single goroutine.
type Subscription[T any] struct {
	b      *Broadcast[T]
	cursor uint64
	done   bool
}

// Recv returns the next message. If the subscriber fell behind it returns a
// *LaggedError and the following call resumes at the oldest retained message.
// After Close and once drained it returns ErrClosed.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	b := s.b
	for {
		b.mu.Lock()
		if s.done {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		capacity := uint64(len(b.buf))
		if b.next-s.cursor > capacity {
			oldest := b.next - capacity
			skipped := oldest - s.cursor
			s.cursor = oldest
			b.mu.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if s.cursor < b.next {
			v := b.buf[s.cursor%capacity]
			s.cursor++
			b.mu.Unlock()
			return v, nil
		}
		if b.closed {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. ok is false when nothing is
// pending and the channel is still open.
func (s *Subscription[T]) TryRecv() (v T, ok bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err = s.Recv(ctx)
	if err == context.Canceled {
		return v, false, nil
	}
	return v, err == nil, err
}

// Unsubscribe detaches the subscriber. Later Recv calls return ErrClosed.
func (s *Subscription[T]) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.b.subs--
}
