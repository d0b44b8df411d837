// Package lazy provides a once-cell whose value is built on first demand.
package lazy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanicked is returned to waiters when construction panicked.
var ErrPanicked = errors.New("lazy: construction panicked")

// Deferred holds a value constructed at most once. Concurrent callers of Get
// wait for the single construction and share its result, error included.
type Deferred[T any] struct {
	once sync.Once
	init func() (T, error)
	done chan struct{}

	value T
	err   error
}

// New returns a Deferred that runs init on first use.
func New[T any](init func() (T, error)) *Deferred[T] {
	return &Deferred[T]{init: init, done: make(chan struct{})}
}

// Ready returns a Deferred that is already constructed.
func Ready[T any](v T) *Deferred[T] {
	d := New(func() (T, error) { return v, nil })
	d.run()
	return d
}

func (d *Deferred[T]) run() {
	d.once.Do(func() {
		defer close(d.done)
		defer func() {
			if r := recover(); r != nil {
				d.err = fmt.Errorf("%w: %v", ErrPanicked, r)
				panic(r)
			}
		}()
		d.value, d.err = d.init()
	})
}

// Get constructs the value on the calling goroutine if nobody did yet, or
// waits for the construction in progress.
func (d *Deferred[T]) Get() (T, error) {
	d.run()
	<-d.done
	return d.value, d.err
}

// Start kicks off construction in the background. A panic in init is
// reported to waiters as ErrPanicked.
func (d *Deferred[T]) Start() {
	go func() {
		defer func() { _ = recover() }()
		d.run()
	}()
}

// GetContext starts construction if needed and waits for it or for ctx.
func (d *Deferred[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	default:
	}
	d.Start()
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the value only if construction already finished
// successfully. It never starts construction.
func (d *Deferred[T]) TryGet() (T, bool) {
	select {
	case <-d.done:
		if d.err != nil {
			var zero T
			return zero, false
		}
		return d.value, true
	default:
		var zero T
		return zero, false
	}
}

// Done is closed once construction finished.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}
