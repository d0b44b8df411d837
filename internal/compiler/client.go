package compiler

import (
	"context"
	"fmt"

	"tinymist/internal/feed"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
)

// Client is a handle on a unit. It is safe for concurrent use.
type Client struct {
	unit *Unit
}

// Clone returns another handle on the same unit.
func (c *Client) Clone() *Client {
	return &Client{unit: c.unit}
}

// Unit returns the unit behind the handle.
func (c *Client) Unit() *Unit { return c.unit }

// SubmitChange queues in-memory edits. It never waits for the driver and
// may be called before it is constructed. It returns false after teardown.
func (c *Client) SubmitChange(cs snapshot.MemoryChangeSet) bool {
	return c.unit.inbox.Send(changeRequest{changes: cs})
}

// ChangeEntry re-targets the unit.
func (c *Client) ChangeEntry(entry snapshot.EntryState) bool {
	return c.unit.inbox.Send(entryRequest{entry: entry})
}

// OnSaved tells the export actor that path was saved.
func (c *Client) OnSaved(path string) bool {
	return c.unit.inbox.Send(savedRequest{path: path})
}

// ChangeExportConfig replaces the export settings of the unit. The entry of
// cfg is ignored; the unit's current entry is kept.
func (c *Client) ChangeExportConfig(cfg render.ExportConfig) bool {
	return c.unit.inbox.Send(exportConfigRequest{cfg: cfg})
}

// Document returns a reader of the latest compiled document.
func (c *Client) Document() *feed.WatchReceiver[*snapshot.VersionedDocument] {
	return c.unit.Document()
}

// Steal runs fn on the server goroutine with exclusive access to the
// driver, after every edit submitted before it has been compiled. It fails
// with ErrDriverUnavailable if the driver is not constructed yet.
func (c *Client) Steal(fn func(*Driver)) error {
	if _, ok := c.unit.server.TryGet(); !ok {
		return ErrDriverUnavailable
	}
	return c.steal(context.Background(), fn)
}

// StealAsync is Steal that waits for the driver to be constructed.
func (c *Client) StealAsync(ctx context.Context, fn func(*Driver)) error {
	if _, err := c.unit.server.GetContext(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
	}
	return c.steal(ctx, fn)
}

func (c *Client) steal(ctx context.Context, fn func(*Driver)) error {
	done := make(chan struct{})
	if !c.unit.inbox.Send(stealRequest{fn: fn, done: done}) {
		return ErrDriverUnavailable
	}
	select {
	case <-done:
		return nil
	case <-c.unit.stopped:
		// the request may have been served right before the stop
		select {
		case <-done:
			return nil
		default:
			return ErrDriverUnavailable
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StealValue runs fn like Steal and returns its result.
func StealValue[R any](c *Client, fn func(*Driver) R) (R, error) {
	var out R
	if err := c.Steal(func(d *Driver) { out = fn(d) }); err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// StealValueAsync runs fn like StealAsync and returns its result.
func StealValueAsync[R any](ctx context.Context, c *Client, fn func(*Driver) R) (R, error) {
	var out R
	if err := c.StealAsync(ctx, func(d *Driver) { out = fn(d) }); err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}
