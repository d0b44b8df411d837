package compiler

import (
	"context"
	"log/slog"

	"tinymist/internal/diag"
	"tinymist/internal/grammar"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/source"
	"tinymist/internal/trace"
	"tinymist/internal/world"
)

// Driver owns the world of a unit and compiles it. It is only touched by
// the Server goroutine; other goroutines reach it through Client.Steal.
type Driver struct {
	world    *world.World
	compiler Compiler
	handler  *Handler
	encoding source.Encoding
	log      *slog.Logger

	// files of the latest published document
	files   *source.FileSet
	version uint64
	// first version that can belong to the current entry
	entryFloor uint64
}

// NewDriver creates a driver. Nothing is compiled yet.
func NewDriver(w *world.World, c Compiler, h *Handler, enc source.Encoding, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = &MarkupCompiler{}
	}
	return &Driver{world: w, compiler: c, handler: h, encoding: enc, log: log}
}

// World returns the world. Callers must hold exclusive access.
func (d *Driver) World() *world.World { return d.world }

// Entry returns the current entry.
func (d *Driver) Entry() snapshot.EntryState { return d.world.Entry }

// Handler returns the diagnostics handler.
func (d *Driver) Handler() *Handler { return d.handler }

// LatestVersion is the version of the latest published document, 0 before
// the first success.
func (d *Driver) LatestVersion() uint64 { return d.version }

// ApplyChanges applies in-memory edits in order.
func (d *Driver) ApplyChanges(cs snapshot.MemoryChangeSet) {
	d.world.ApplyChanges(cs)
}

// ChangeEntry re-targets the world and tells the actors about it.
func (d *Driver) ChangeEntry(entry snapshot.EntryState) error {
	prev := d.world.Entry.MainPath()
	if err := d.world.SetEntry(entry); err != nil {
		return err
	}
	if entry.MainPath() != prev {
		// документ старого entry больше не годится для анализа
		d.files = nil
		d.entryFloor = d.version + 1
	}
	d.handler.SetEntry(entry)
	d.handler.Broadcast(render.ChangeExportPath{Entry: entry})
	return nil
}

// Compile compiles the current world. A failed compilation only pushes
// diagnostics; a successful one publishes a new document version first.
func (d *Driver) Compile(ctx context.Context) {
	ctx, span := trace.Start(ctx, trace.ScopeCompile, "compile")
	defer span.End("")

	if d.world.Entry.IsInactive() {
		d.handler.PushDiagnostics(GroupCompile, nil, false)
		return
	}

	doc, diags, err := d.compiler.Compile(ctx, d.world)
	if err != nil {
		d.log.Warn("compilation aborted", "error", err)
		return
	}
	var files *source.FileSet
	if doc != nil {
		files = doc.Files
	}

	if diag.HasErrors(diags) || doc == nil {
		span.Set("status", "failed")
		d.pushCompile(files, diags)
		return
	}

	d.version++
	d.files = files
	d.handler.Publish(&snapshot.VersionedDocument{Version: d.version, Document: doc})
	d.pushCompile(files, diags)
}

func (d *Driver) pushCompile(files *source.FileSet, diags []diag.Diagnostic) {
	ac := d.analysis(files)
	located, err := ac.Convert(diags, "tinymist")
	if err != nil {
		d.log.Error("failed to convert compile diagnostics", "error", err)
		d.handler.PushDiagnostics(GroupCompile, nil, false)
		return
	}
	d.handler.PushDiagnostics(GroupCompile, located, true)
}

// AnalysisContext resolves spans of the latest document.
type AnalysisContext struct {
	Files    *source.FileSet
	Encoding source.Encoding
	Entry    snapshot.EntryState
}

// Convert resolves diagnostics to positions in the negotiated encoding.
// Diagnostics without a location are attached to the entry file.
func (a *AnalysisContext) Convert(diags []diag.Diagnostic, src string) ([]diag.Located, error) {
	c := diag.Converter{
		Files:    a.Files,
		Encoding: a.Encoding,
		Source:   src,
		Fallback: a.Entry.MainPath(),
	}
	return c.Convert(diags)
}

func (d *Driver) analysis(files *source.FileSet) *AnalysisContext {
	if files == nil {
		files = source.NewFileSet()
	}
	return &AnalysisContext{Files: files, Encoding: d.encoding, Entry: d.world.Entry}
}

// RunAnalysis runs fn against the latest published document.
func (d *Driver) RunAnalysis(fn func(*AnalysisContext) error) error {
	if d.files == nil {
		return ErrAnalysisUnavailable
	}
	return fn(d.analysis(d.files))
}

// NotifySuggestions pushes grammar results as the "grammar" group. Results
// for a version older than the latest document, or computed before the
// last entry change, are dropped.
func (d *Driver) NotifySuggestions(vs grammar.VersionedSuggestions) {
	if vs.Version < d.version || vs.Version < d.entryFloor {
		d.log.Debug("dropping stale suggestions", "version", vs.Version, "latest", d.version, "floor", d.entryFloor)
		return
	}
	if d.world.Entry.IsInactive() || !vs.Checked {
		d.handler.PushDiagnostics(GroupGrammar, nil, false)
		return
	}
	diags := grammar.DiagsFromSuggestions(vs.Suggestions)
	var located []diag.Located
	err := d.RunAnalysis(func(ac *AnalysisContext) error {
		var err error
		located, err = ac.Convert(diags, "grammar")
		return err
	})
	if err != nil {
		d.log.Error("failed to convert suggestions", "version", vs.Version, "error", err)
		d.handler.PushDiagnostics(GroupGrammar, nil, false)
		return
	}
	d.handler.PushDiagnostics(GroupGrammar, located, true)
}

