// Package grammar checks the prose of compiled documents and reports
// suggestions located in source.
//
// The checker runs in its own actor. It reads the latest document from the
// document feed whenever a render request arrives and sends versioned
// results over a bounded queue to the orchestrator.
package grammar

import (
	"tinymist/internal/diag"
	"tinymist/internal/markup"
	"tinymist/internal/source"
	"tinymist/internal/textexport"
)

// Suggestion is one grammar finding. Span is nil when the finding could not
// be mapped back to source.
type Suggestion struct {
	Source       string
	Message      string
	Span         *textexport.MappedSpan
	Replacements []string
}

// VersionedSuggestions ties a check result to the document version it was
// computed for. Checked is false when checking failed; Suggestions is nil
// in that case.
type VersionedSuggestions struct {
	Version     uint64
	Suggestions []Suggestion
	Checked     bool
}

// CheckDocument extracts the text of doc, runs the rule set and maps every
// match back to source.
func CheckDocument(doc *markup.Document) ([]Suggestion, error) {
	rules, err := LoadRules()
	if err != nil {
		return nil, err
	}
	return rules.CheckDocument(doc)
}

// CheckDocument is CheckDocument with an explicit rule set.
func (r *Rules) CheckDocument(doc *markup.Document) ([]Suggestion, error) {
	ann, err := textexport.Annotate(doc)
	if err != nil {
		return nil, err
	}
	matches := r.Check(ann.Text)
	if len(matches) == 0 {
		return []Suggestion{}, nil
	}
	ranges := make([]textexport.Range, len(matches))
	for i, m := range matches {
		ranges[i] = m.Range
	}
	spans := ann.MapBackSpans(ranges)
	out := make([]Suggestion, len(matches))
	for i, m := range matches {
		out[i] = Suggestion{
			Source:       m.Rule,
			Message:      m.Message,
			Span:         spans[i],
			Replacements: m.Replacements,
		}
	}
	return out, nil
}

// DiagFromSuggestion converts s to a warning with one fix per replacement.
func DiagFromSuggestion(s Suggestion) diag.Diagnostic {
	primary := source.Detached()
	if s.Span != nil {
		primary = s.Span.Span
	}
	d := diag.NewWarning(diag.GrmSuggestion, primary, s.Message)
	for _, r := range s.Replacements {
		d = d.WithFix("Replace with \""+r+"\"", diag.FixEdit{Span: primary, NewText: r})
	}
	return d
}

// DiagsFromSuggestions converts a whole result.
func DiagsFromSuggestions(ss []Suggestion) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, len(ss))
	for _, s := range ss {
		out = append(out, DiagFromSuggestion(s))
	}
	return out
}
