// Package compiler is the compile orchestrator of one unit.
//
// A unit owns a World and a Driver behind a single actor goroutine
// (Server). Everything else talks to it through a Client: edits are queued
// in an unbounded inbox and applied in order, exclusive access to the
// Driver is requested with Steal. Compiled documents are published on a
// latest-value feed followed by a render notice on a broadcast channel that
// the export and grammar actors subscribe to.
package compiler

import (
	"context"
	"errors"

	"tinymist/internal/diag"
	"tinymist/internal/markup"
	"tinymist/internal/world"
)

// Diagnostic groups merged by the Handler.
const (
	GroupCompile = "compile"
	GroupGrammar = "grammar"
)

var (
	// ErrDriverUnavailable is returned by Steal before the driver is
	// constructed or after the unit stopped.
	ErrDriverUnavailable = errors.New("compiler: driver unavailable")
	// ErrAnalysisUnavailable is returned by RunAnalysis before the first
	// successful compilation of the current entry.
	ErrAnalysisUnavailable = errors.New("compiler: no analysis available")
)

// Compiler turns a world into a document. A result is a failure when err is
// non-nil or any diagnostic is an error.
type Compiler interface {
	Compile(ctx context.Context, w *world.World) (*markup.Document, []diag.Diagnostic, error)
}

// MarkupCompiler compiles worlds with the markup compiler.
type MarkupCompiler struct {
	Markup markup.Compiler
}

func (c *MarkupCompiler) Compile(ctx context.Context, w *world.World) (*markup.Document, []diag.Diagnostic, error) {
	return c.Markup.Compile(ctx, w)
}

// DiagnosticsSink receives the merged per-file diagnostics of a unit after
// every push. An empty view means no file has diagnostics.
type DiagnosticsSink interface {
	PublishDiagnostics(unit string, view map[string][]diag.Located)
}

// SinkFunc adapts a function to DiagnosticsSink.
type SinkFunc func(unit string, view map[string][]diag.Located)

func (f SinkFunc) PublishDiagnostics(unit string, view map[string][]diag.Located) {
	f(unit, view)
}
