package feed

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO. Send suspends while the queue is full; the
// consumer side is a single receiver.
type Queue[T any] struct {
	ch chan T

	closeOnce sync.Once
	closed    chan struct{} // sender side closed

	goneOnce sync.Once
	gone     chan struct{} // receiver dropped
}

// NewQueue creates a queue holding at most capacity pending items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
		gone:   make(chan struct{}),
	}
}

// Send enqueues v, waiting for room. It fails with ErrReceiverGone when the
// receiver was dropped and ErrClosed after Close.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	select {
	case <-q.gone:
		return ErrReceiverGone
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.gone:
		return ErrReceiverGone
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v only if there is room.
func (q *Queue[T]) TrySend(v T) error {
	select {
	case <-q.gone:
		return ErrReceiverGone
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Recv returns the next item. After Close it drains the pending items and
// then returns ErrClosed.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.closed:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close closes the sending side. Pending items stay receivable.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// CloseReceiver drops the receiving side; blocked and future senders get
// ErrReceiverGone.
func (q *Queue[T]) CloseReceiver() {
	q.goneOnce.Do(func() { close(q.gone) })
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
