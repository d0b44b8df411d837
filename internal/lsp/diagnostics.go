package lsp

import (
	"sort"

	"tinymist/internal/diag"
)

// PublishDiagnostics implements compiler.DiagnosticsSink. view is the full
// merged state of unit: files it no longer lists are cleared.
func (s *Server) PublishDiagnostics(unit string, view map[string][]diag.Located) {
	grouped := make(map[string][]lspDiagnostic, len(view))
	for path, list := range view {
		uri := pathToURI(path)
		if uri == "" {
			continue
		}
		out := grouped[uri]
		for _, d := range list {
			out = append(out, toLSPDiagnostic(d))
		}
		grouped[uri] = out
	}

	targets := make([]string, 0, len(grouped))
	for uri := range grouped {
		targets = append(targets, uri)
	}
	sort.Strings(targets)

	s.mu.Lock()
	prev := s.published[unit]
	next := make(map[string]struct{}, len(targets))
	for _, uri := range targets {
		next[uri] = struct{}{}
	}
	s.published[unit] = next
	trace := s.traceLSP
	s.mu.Unlock()

	for _, uri := range targets {
		list := grouped[uri]
		if err := s.sendPublish(uri, list); err != nil {
			s.log.Error("failed to publish diagnostics", "uri", uri, "error", err)
		}
		if trace {
			s.logf("publishDiagnostics: unit=%s uri=%s count=%d", unit, uri, len(list))
		}
	}

	stale := make([]string, 0, len(prev))
	for uri := range prev {
		if _, ok := next[uri]; !ok {
			stale = append(stale, uri)
		}
	}
	sort.Strings(stale)
	for _, uri := range stale {
		if err := s.sendPublish(uri, nil); err != nil {
			s.log.Error("failed to clear diagnostics", "uri", uri, "error", err)
		}
		if trace {
			s.logf("publishDiagnostics: unit=%s uri=%s count=0", unit, uri)
		}
	}
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	if len(s.published) == 0 {
		s.mu.Unlock()
		return
	}
	uris := make(map[string]struct{})
	for _, set := range s.published {
		for uri := range set {
			uris[uri] = struct{}{}
		}
	}
	s.published = make(map[string]map[string]struct{})
	s.mu.Unlock()
	for uri := range uris {
		if err := s.sendPublish(uri, nil); err != nil {
			s.log.Error("failed to clear diagnostics", "uri", uri, "error", err)
		}
	}
}

func toLSPDiagnostic(d diag.Located) lspDiagnostic {
	out := lspDiagnostic{
		Range: lspRange{
			Start: toLSPPosition(d.Range.Start),
			End:   toLSPPosition(d.Range.End),
		},
		Severity: d.Severity.LSP(),
		Code:     d.Code.ID(),
		Source:   d.Source,
		Message:  d.Message,
	}
	if out.Source == "" {
		out.Source = "tinymist"
	}
	if len(d.Replacements) > 0 {
		out.Data = &diagnosticData{Replacements: append([]string(nil), d.Replacements...)}
	}
	return out
}
