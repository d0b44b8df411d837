package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"tinymist/internal/feed"
	"tinymist/internal/markup"
	"tinymist/internal/snapshot"
	"tinymist/internal/trace"
)

// Exported reports a written artifact.
type Exported struct {
	Path    string
	Version uint64
}

// ExportActor writes documents to disk according to its ExportConfig.
// It owns no compiler state.
type ExportActor struct {
	doc       *feed.WatchReceiver[*snapshot.VersionedDocument]
	reqs      *feed.Subscription[Request]
	cfg       ExportConfig
	renderers map[string]Renderer
	log       *slog.Logger

	last exportKey

	// OnExport, when set, is called after every successful export.
	OnExport func(Exported)
}

type exportKey struct {
	version uint64
	path    string
	saved   bool
}

// NewExportActor creates an actor. reqs must already be subscribed so no
// request sent after construction is missed.
func NewExportActor(
	doc *feed.WatchReceiver[*snapshot.VersionedDocument],
	reqs *feed.Subscription[Request],
	cfg ExportConfig,
	renderers map[string]Renderer,
	log *slog.Logger,
) *ExportActor {
	if renderers == nil {
		renderers = Renderers("")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExportActor{
		doc:       doc,
		reqs:      reqs,
		cfg:       cfg,
		renderers: renderers,
		log:       log.With("actor", "export"),
	}
}

// Config returns the current export settings. Only safe to call from the
// actor goroutine or after Run returned.
func (a *ExportActor) Config() ExportConfig {
	return a.cfg
}

// Run processes requests until the broadcast is closed. ctx carries the
// tracer; cancelling it does not stop the actor.
func (a *ExportActor) Run(ctx context.Context) {
	recvCtx := context.WithoutCancel(ctx)
	for {
		req, err := a.reqs.Recv(recvCtx)
		switch {
		case errors.Is(err, feed.ErrClosed):
			a.log.Info("channel closed, export actor stopped")
			return
		case feed.IsLagged(err):
			a.log.Info("render channel lagged", "error", err)
			continue
		case err != nil:
			a.log.Error("render channel failed", "error", err)
			return
		}

		_, span := trace.Start(ctx, trace.ScopeActor, "export:"+Kind(req))
		a.handle(req)
		span.End("")
	}
}

func (a *ExportActor) handle(req Request) {
	switch r := req.(type) {
	case ChangeConfig:
		a.cfg = r.Config
		a.last = exportKey{}
		a.log.Info("export config changed", "mode", a.cfg.Mode.String(), "pattern", a.cfg.SubstitutePattern)
	case ChangeExportPath:
		a.cfg.Entry = r.Entry
		a.last = exportKey{}
		a.log.Info("export entry changed", "entry", r.Entry.MainPath())
	case Rendered:
		a.maybeExport(false)
	case Saved:
		a.maybeExport(true)
	}
}

func (a *ExportActor) maybeExport(saved bool) {
	vdoc := a.doc.Borrow()
	if vdoc == nil || vdoc.Document == nil {
		return
	}
	switch a.cfg.Mode {
	case ExportNever:
		return
	case ExportOnSave:
		if !saved {
			return
		}
	case ExportOnDocumentHasTitle:
		if saved || vdoc.Document.Title == "" {
			return
		}
	case ExportOnType:
	}

	if _, err := a.Export(vdoc, saved); err != nil {
		a.log.Error("export failed", "version", vdoc.Version, "error", err)
	}
}

// Export renders vdoc to the configured path unless the same version was
// already written there for the same trigger. It returns the written path,
// or "" when nothing was written.
func (a *ExportActor) Export(vdoc *snapshot.VersionedDocument, saved bool) (string, error) {
	path, r, err := Target(a.cfg, a.renderers)
	if err != nil || path == "" {
		return "", err
	}

	key := exportKey{version: vdoc.Version, path: path, saved: saved}
	if key == a.last {
		return "", nil
	}
	if err := WriteDocument(path, r, vdoc.Document); err != nil {
		return "", err
	}
	a.last = key
	a.log.Info("exported", "path", path, "version", strconv.FormatUint(vdoc.Version, 10))
	if a.OnExport != nil {
		a.OnExport(Exported{Path: path, Version: vdoc.Version})
	}
	return path, nil
}

// Target resolves the output file of cfg and the renderer producing it.
// The path is "" when the entry is inactive.
func Target(cfg ExportConfig, renderers map[string]Renderer) (string, Renderer, error) {
	base, ok := SubstitutePath(cfg.SubstitutePattern, cfg.Entry)
	if !ok {
		return "", nil, nil
	}
	format := cfg.Format
	if format == "" {
		format = "txt"
	}
	r, ok := renderers[format]
	if !ok {
		return "", nil, fmt.Errorf("no renderer for format %q", format)
	}
	return base + "." + r.Extension(), r, nil
}

// WriteDocument renders doc into path, replacing it atomically.
func WriteDocument(path string, r Renderer, doc *markup.Document) error {
	return writeAtomic(path, func(f *os.File) error { return r.Render(f, doc) })
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, write func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), path)
}
