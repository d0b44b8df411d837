package feed

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO inbox. Send never blocks.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	notify chan struct{}
}

// NewMailbox creates an empty open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Send appends v. It returns false once the mailbox is closed.
func (m *Mailbox[T]) Send(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	m.signal()
	return true
}

func (m *Mailbox[T]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Close stops accepting messages. Already accepted messages are still
// delivered by Recv and TryRecv.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// Closed reports whether Close was called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// TryRecv pops the oldest message without blocking.
func (m *Mailbox[T]) TryRecv() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked()
}

func (m *Mailbox[T]) popLocked() (T, bool) {
	var zero T
	if m.head >= len(m.items) {
		return zero, false
	}
	v := m.items[m.head]
	m.items[m.head] = zero
	m.head++
	if m.head == len(m.items) {
		m.items = m.items[:0]
		m.head = 0
	}
	return v, true
}

// Recv waits for the next message. It returns ErrClosed once the mailbox is
// closed and drained.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	for {
		m.mu.Lock()
		v, ok := m.popLocked()
		closed := m.closed
		m.mu.Unlock()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			// keep the wake-up for other waiters
			m.signal()
			return zero, ErrClosed
		}
		select {
		case <-m.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of pending messages.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items) - m.head
}
