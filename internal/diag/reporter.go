package diag

import "tinymist/internal/source"

// Reporter is the minimal contract compile phases use to emit diagnostics.
type Reporter interface {
	Report(sev Severity, code Code, primary source.Span, msg string)
}

// BagReporter writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(sev Severity, code Code, primary source.Span, msg string) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(New(sev, code, primary, msg))
}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, primary source.Span, msg string) {
	if r != nil {
		r.Report(SevError, code, primary, msg)
	}
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, primary source.Span, msg string) {
	if r != nil {
		r.Report(SevWarning, code, primary, msg)
	}
}
