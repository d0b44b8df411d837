package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinymist/internal/feed"
	"tinymist/internal/fonts"
	"tinymist/internal/lazy"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/source"
	"tinymist/internal/world"
)

// RequestCapacity is the size of the render broadcast of a unit.
const RequestCapacity = 10

// Options configure a unit.
type Options struct {
	Name   string
	Entry  snapshot.EntryState
	Inputs map[string]string
	// Initial is applied to the world when the driver is constructed.
	Initial  snapshot.MemoryChangeSet
	Compiler Compiler
	Builder  world.Builder
	// Fonts returns the font book; nil means an empty book.
	Fonts    func() (*fonts.Book, error)
	Encoding source.Encoding
	Sink     DiagnosticsSink
	Log      *slog.Logger
}

// Unit is one orchestrator together with its channels. The channels exist
// from NewUnit on; the driver is built on first demand.
type Unit struct {
	name    string
	docTx   *feed.WatchSender[*snapshot.VersionedDocument]
	docRx   *feed.WatchReceiver[*snapshot.VersionedDocument]
	reqs    *feed.Broadcast[render.Request]
	inbox   *feed.Mailbox[request]
	handler *Handler
	server  *lazy.Deferred[*Server]
	log     *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewUnit creates the channels of a unit. Nothing runs until Run.
func NewUnit(opts Options) *Unit {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("unit", opts.Name)
	docTx, docRx := feed.NewWatch[*snapshot.VersionedDocument](nil)
	u := &Unit{
		name:    opts.Name,
		docTx:   docTx,
		docRx:   docRx,
		reqs:    feed.NewBroadcast[render.Request](RequestCapacity),
		inbox:   feed.NewMailbox[request](),
		log:     log,
		stopped: make(chan struct{}),
	}
	u.handler = NewHandler(opts.Name, docTx, u.reqs, opts.Sink, log)
	u.server = lazy.New(func() (*Server, error) {
		return u.construct(opts)
	})
	return u
}

func (u *Unit) construct(opts Options) (*Server, error) {
	book := fonts.NewBook(nil)
	if opts.Fonts != nil {
		b, err := opts.Fonts()
		if err != nil {
			return nil, fmt.Errorf("fonts: %w", err)
		}
		book = b
	}
	w, err := opts.Builder.Build(opts.Entry, book, opts.Inputs)
	if err != nil {
		return nil, err
	}
	w.ApplyChanges(opts.Initial)
	u.handler.SetEntry(opts.Entry)
	d := NewDriver(w, opts.Compiler, u.handler, opts.Encoding, u.log)
	u.log.Info("driver constructed", "entry", opts.Entry.MainPath(), "files", len(opts.Initial.Changes))
	return newServer(u.name, d, u.inbox, u.log), nil
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Subscribe registers an actor on the render broadcast. Subscribe before
// Run so the first render is not missed.
func (u *Unit) Subscribe() *feed.Subscription[render.Request] {
	return u.reqs.Subscribe()
}

// Document returns a reader of the latest-document feed.
func (u *Unit) Document() *feed.WatchReceiver[*snapshot.VersionedDocument] {
	return u.docRx.Clone()
}

// Handler returns the diagnostics handler.
func (u *Unit) Handler() *Handler { return u.handler }

// Client returns a handle on the unit.
func (u *Unit) Client() *Client {
	return &Client{unit: u}
}

// Start begins constructing the driver in the background.
func (u *Unit) Start() { u.server.Start() }

// Run constructs the driver if needed and serves requests until Shutdown
// or ctx is done. A construction failure is returned and stops the unit.
// On return every channel of the unit is closed.
func (u *Unit) Run(ctx context.Context) error {
	defer u.stop()
	srv, err := u.server.GetContext(ctx)
	if err != nil {
		u.log.Error("failed to construct driver", "error", err)
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return srv.run(ctx)
}

// Shutdown stops accepting requests. Run returns after the accepted ones
// were served.
func (u *Unit) Shutdown() {
	u.inbox.Close()
}

// Done is closed once the unit stopped.
func (u *Unit) Done() <-chan struct{} { return u.stopped }

func (u *Unit) stop() {
	u.stopOnce.Do(func() {
		u.inbox.Close()
		u.handler.Close()
		close(u.stopped)
	})
}
