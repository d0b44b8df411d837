// Package feed provides the channel primitives actors use to talk to each other.
//
//   - Watch: a single-slot latest-value feed. Sending overwrites the slot;
//     readers always see the newest value and can wait for a change.
//   - Broadcast: bounded fan-out. Every subscriber receives each message sent
//     after it subscribed. A subscriber that falls more than the capacity
//     behind gets a *LaggedError and resumes at the oldest retained message.
//   - Queue: bounded FIFO with backpressure between one producer side and one
//     consumer.
//   - Mailbox: unbounded FIFO used as an actor inbox; Close stops admission and
//     lets the owner drain what was already accepted.
//
// All primitives are safe for concurrent use.
package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by receive operations once the sending side is
	// closed and everything sent before the close was delivered.
	ErrClosed = errors.New("feed: closed")
	// ErrReceiverGone is returned by Queue.Send when the consumer went away.
	ErrReceiverGone = errors.New("feed: receiver gone")
	// ErrFull is returned by Queue.TrySend when the queue is at capacity.
	ErrFull = errors.New("feed: queue full")
)

// LaggedError reports how many broadcast messages a subscriber missed.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("feed: subscriber lagged by %d messages", e.Skipped)
}

// IsLagged reports whether err is a *LaggedError.
func IsLagged(err error) bool {
	var lagged *LaggedError
	return errors.As(err, &lagged)
}
