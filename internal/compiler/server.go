package compiler

import (
	"context"
	"errors"
	"log/slog"

	"tinymist/internal/feed"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/trace"
)

// request is a message in the server inbox.
type request interface {
	isRequest()
}

type changeRequest struct {
	changes snapshot.MemoryChangeSet
}

type stealRequest struct {
	fn   func(*Driver)
	done chan struct{}
}

type entryRequest struct {
	entry snapshot.EntryState
}

type savedRequest struct {
	path string
}

type exportConfigRequest struct {
	cfg render.ExportConfig
}

func (changeRequest) isRequest()       {}
func (stealRequest) isRequest()        {}
func (entryRequest) isRequest()        {}
func (savedRequest) isRequest()        {}
func (exportConfigRequest) isRequest() {}

// Server is the actor owning a Driver.
type Server struct {
	name   string
	driver *Driver
	inbox  *feed.Mailbox[request]
	log    *slog.Logger

	dirty bool
}

func newServer(name string, d *Driver, inbox *feed.Mailbox[request], log *slog.Logger) *Server {
	return &Server{name: name, driver: d, inbox: inbox, log: log}
}

// Driver returns the driver. Only the server goroutine and stealers may
// use it.
func (s *Server) Driver() *Driver { return s.driver }

// run compiles once and then serves the inbox until it is closed and
// drained or ctx is done. Every drained batch ends with one compilation if
// anything changed.
func (s *Server) run(ctx context.Context) error {
	ctx, span := trace.Start(trace.WithUnit(ctx, s.name), trace.ScopeUnit, "unit")
	defer span.End("")

	s.driver.Compile(ctx)
	for {
		req, err := s.inbox.Recv(ctx)
		switch {
		case errors.Is(err, feed.ErrClosed):
			s.log.Info("inbox closed, compile server stopped")
			return nil
		case ctx.Err() != nil:
			s.log.Info("compile server cancelled")
			return nil
		case err != nil:
			return err
		}

		s.handle(ctx, req)
		for {
			next, ok := s.inbox.TryRecv()
			if !ok {
				break
			}
			s.handle(ctx, next)
		}
		s.compileIfDirty(ctx)
	}
}

func (s *Server) compileIfDirty(ctx context.Context) {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.driver.Compile(ctx)
}

func (s *Server) handle(ctx context.Context, req request) {
	switch r := req.(type) {
	case changeRequest:
		if r.changes.IsEmpty() {
			return
		}
		s.driver.ApplyChanges(r.changes)
		s.dirty = true
	case stealRequest:
		// the stealer sees every edit submitted before it
		s.compileIfDirty(ctx)
		r.fn(s.driver)
		close(r.done)
	case entryRequest:
		if err := s.driver.ChangeEntry(r.entry); err != nil {
			s.log.Error("failed to change entry", "entry", r.entry.MainPath(), "error", err)
			return
		}
		s.log.Info("entry changed", "entry", r.entry.MainPath())
		s.dirty = true
	case savedRequest:
		s.compileIfDirty(ctx)
		s.driver.handler.Broadcast(render.Saved{Path: r.path})
	case exportConfigRequest:
		cfg := r.cfg
		cfg.Entry = s.driver.Entry()
		s.driver.handler.Broadcast(render.ChangeConfig{Config: cfg})
	}
}
