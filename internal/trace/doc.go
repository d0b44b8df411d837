// Package trace records timing spans of a session.
//
// A span is started from a context: the tracer, the enclosing span and the
// unit label all travel in it, so a compile span nests under the span of
// the unit that ran it without any explicit bookkeeping.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx = trace.WithUnit(ctx, "primary")
//	ctx, span := trace.Start(ctx, trace.ScopeCompile, "compile")
//	defer span.End("")
//
// Tracers: Nop when tracing is off, StreamTracer writes each event as it
// happens, RingTracer keeps the last N events for a dump, MultiTracer fans
// out. LevelPhase keeps session, unit and compile spans; LevelDetail adds
// actor iterations.
//
// Usage:
//
//	tinymist lsp --trace=- --trace-level=phase
package trace
