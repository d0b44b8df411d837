// Package session wires compile units, their actors and the format worker.
//
// A unit is started by Server: the render broadcast and the suggestion
// queue are created first, the export, grammar and preview actors subscribe
// and start, and only then is the orchestrator constructed. Every task of a
// unit runs under one errgroup; a failing or panicking task tears that unit
// down and leaves the others running.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tinymist/internal/compiler"
	"tinymist/internal/config"
	"tinymist/internal/feed"
	"tinymist/internal/fonts"
	"tinymist/internal/format"
	"tinymist/internal/grammar"
	"tinymist/internal/lazy"
	"tinymist/internal/logging"
	"tinymist/internal/preview"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/trace"
	"tinymist/internal/world"
)

// SuggestionCapacity bounds the grammar results waiting for the
// orchestrator.
const SuggestionCapacity = 10

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
	// ErrUnitExists is returned by Server for a group that is running.
	ErrUnitExists = errors.New("session: unit already running")
	// ErrFormatWorkerStarted is returned by a second RunFormatWorker.
	ErrFormatWorkerStarted = errors.New("session: formatting worker already started")
)

// Options configure a session.
type Options struct {
	Config config.Config
	// Sink receives merged diagnostics of every unit.
	Sink compiler.DiagnosticsSink
	// Snapshot returns the in-memory files a new unit starts with.
	Snapshot func() snapshot.MemoryChangeSet
	// Compiler overrides the markup compiler.
	Compiler compiler.Compiler
	Builder  world.Builder
	// FontCache stores font indexes between runs; nil disables caching.
	FontCache *fonts.DiskCache
	// Renderers override the built-in renderers.
	Renderers map[string]render.Renderer
	// Preview starts a websocket hub per unit.
	Preview  bool
	OnExport func(unit string, e render.Exported)
	Tracer   trace.Tracer
	Log      *slog.Logger
}

type unitHandle struct {
	id     string
	unit   *compiler.Unit
	hub    *preview.Hub
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Session owns the units of one language server or CLI run.
type Session struct {
	opts  Options
	log   *slog.Logger
	ctx   context.Context
	stop  context.CancelFunc
	fonts *lazy.Deferred[*fonts.Book]

	mu     sync.Mutex
	cfg    config.Config
	units  map[string]*unitHandle
	closed bool

	formatJobs    *feed.Mailbox[format.Job]
	formatStarted atomic.Bool
	formatDone    chan struct{}
}

// New creates a session. Fonts are resolved on first use and shared by
// every unit.
func New(opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = logging.With("session")
	}
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	ctx, stop := context.WithCancel(trace.WithTracer(context.Background(), tr))
	s := &Session{
		opts:       opts,
		log:        log,
		ctx:        ctx,
		stop:       stop,
		cfg:        opts.Config,
		units:      make(map[string]*unitHandle),
		formatJobs: feed.NewMailbox[format.Job](),
		formatDone: make(chan struct{}),
	}
	s.fonts = lazy.New(func() (*fonts.Book, error) {
		r := &fonts.Resolver{Dirs: opts.Config.FontPaths, Cache: opts.FontCache, Log: log}
		book, err := r.Resolve(s.ctx)
		if err != nil {
			return nil, err
		}
		log.Info("fonts resolved", "fonts", book.Len())
		return book, nil
	})
	return s
}

// Config returns the current configuration.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Server starts a unit for entry and returns a client handle. The handle
// is usable immediately; the orchestrator is constructed in the background.
func (s *Session) Server(group string, entry snapshot.EntryState, inputs map[string]string) (*compiler.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if h, ok := s.units[group]; ok {
		select {
		case <-h.done:
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnitExists, group)
		}
	}

	cfg := s.cfg
	exportCfg, err := cfg.ExportConfig(entry)
	if err != nil {
		return nil, err
	}
	enc, err := cfg.Encoding()
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = cfg.Inputs
	}
	var initial snapshot.MemoryChangeSet
	if s.opts.Snapshot != nil {
		initial = s.opts.Snapshot()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(trace.WithUnit(logging.WithUnit(s.ctx, group, id), group))
	trace.Point(ctx, trace.ScopeSession, "unit-start", id)
	log := s.log.With("unit", group, "instance", id)

	unit := compiler.NewUnit(compiler.Options{
		Name:     group,
		Entry:    entry,
		Inputs:   inputs,
		Initial:  initial,
		Compiler: s.opts.Compiler,
		Builder:  s.opts.Builder,
		Fonts:    s.fonts.Get,
		Encoding: enc,
		Sink:     s.opts.Sink,
		Log:      log,
	})

	// подписки до первой компиляции
	renderers := s.opts.Renderers
	if renderers == nil {
		renderers = render.Renderers(cfg.FontFamily)
	}
	exporter := render.NewExportActor(unit.Document(), unit.Subscribe(), exportCfg, renderers, log)
	if s.opts.OnExport != nil {
		onExport := s.opts.OnExport
		exporter.OnExport = func(e render.Exported) { onExport(group, e) }
	}
	suggestions := feed.NewQueue[grammar.VersionedSuggestions](SuggestionCapacity)
	checker := grammar.NewActor(unit.Subscribe(), unit.Document(), suggestions, log)
	var hub *preview.Hub
	if s.opts.Preview {
		hub = preview.NewHub(unit.Subscribe(), unit.Document(), log)
	}

	h := &unitHandle{id: id, unit: unit, hub: hub, cancel: cancel, done: make(chan struct{})}
	s.units[group] = h

	g, gctx := errgroup.WithContext(ctx)
	spawn := func(name string, fn func() error) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s panicked: %v", name, r)
					log.Error("task panicked", "task", name, "panic", r)
				}
			}()
			return fn()
		})
	}
	spawn("export", func() error {
		exporter.Run(ctx)
		return nil
	})
	spawn("grammar", func() error {
		checker.Run(ctx)
		return nil
	})
	if hub != nil {
		spawn("preview", func() error {
			hub.Run(ctx)
			return nil
		})
	}
	client := unit.Client()
	spawn("suggestions", func() error {
		defer suggestions.CloseReceiver()
		unit.Start()
		return forwardSuggestions(gctx, client, suggestions, log)
	})
	spawn("compile", func() error {
		return unit.Run(gctx)
	})

	go func() {
		err := g.Wait()
		cancel()
		if err != nil {
			log.Error("unit failed", "error", err)
		} else {
			log.Info("unit stopped")
		}
		s.mu.Lock()
		h.err = err
		s.mu.Unlock()
		close(h.done)
	}()

	log.Info("unit started", "entry", entry.MainPath())
	return client, nil
}

// forwardSuggestions hands every grammar result to the orchestrator until
// the queue closes or the unit is gone.
func forwardSuggestions(
	ctx context.Context,
	client *compiler.Client,
	suggestions *feed.Queue[grammar.VersionedSuggestions],
	log *slog.Logger,
) error {
	for {
		vs, err := suggestions.Recv(ctx)
		if err != nil {
			return nil
		}
		err = client.StealAsync(ctx, func(d *compiler.Driver) {
			d.NotifySuggestions(vs)
		})
		switch {
		case err == nil:
		case errors.Is(err, compiler.ErrDriverUnavailable), ctx.Err() != nil:
			log.Info("orchestrator gone, suggestions dropped", "version", vs.Version)
			return nil
		default:
			log.Error("failed to forward suggestions", "error", err)
		}
	}
}

// Client returns the client of a running unit.
func (s *Session) Client(group string) (*compiler.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.units[group]
	if !ok {
		return nil, false
	}
	return h.unit.Client(), true
}

// Preview returns the websocket hub of a unit, nil without preview.
func (s *Session) Preview(group string) *preview.Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.units[group]; ok {
		return h.hub
	}
	return nil
}

// Units returns the names of the registered units, sorted.
func (s *Session) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.units))
	for name := range s.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wait blocks until the unit stopped and returns the reason it failed.
func (s *Session) Wait(ctx context.Context, group string) error {
	s.mu.Lock()
	h, ok := s.units[group]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: no unit %q", group)
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.err
}

// RemoveUnit stops a unit after it served the requests it already
// accepted, and forgets it.
func (s *Session) RemoveUnit(group string) {
	s.mu.Lock()
	h, ok := s.units[group]
	if ok {
		delete(s.units, group)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	h.unit.Shutdown()
	<-h.done
	h.cancel()
}

// UpdateConfig validates cfg and sends the export and formatter settings
// to every unit and to the format worker.
func (s *Session) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmtCfg, err := cfg.Formatter()
	if err != nil {
		return err
	}
	// the entry is kept by each unit
	exportCfg, err := cfg.ExportConfig(snapshot.EntryState{})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	handles := make([]*unitHandle, 0, len(s.units))
	for _, h := range s.units {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.unit.Client().ChangeExportConfig(exportCfg)
	}
	s.formatJobs.Send(format.ChangeConfig{Config: fmtCfg})
	return nil
}

// RunFormatWorker starts the single format worker on its own OS thread.
func (s *Session) RunFormatWorker() error {
	if !s.formatStarted.CompareAndSwap(false, true) {
		s.log.Error("formatting worker already started")
		return ErrFormatWorkerStarted
	}
	fmtCfg, err := s.Config().Formatter()
	if err != nil {
		fmtCfg = format.DefaultConfig()
	}
	w := format.NewWorker(fmtCfg, s.log)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.formatDone)
		w.Run(s.ctx, s.formatJobs)
	}()
	return nil
}

// Format queues a formatting request. It returns false after Close.
func (s *Session) Format(req format.Request) bool {
	return s.formatJobs.Send(req)
}

// Close stops every unit and the format worker.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	names := make([]string, 0, len(s.units))
	for name := range s.units {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.RemoveUnit(name)
	}
	s.formatJobs.Close()
	if s.formatStarted.Load() {
		<-s.formatDone
	}
	s.stop()
}
