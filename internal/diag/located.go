package diag

import (
	"fmt"

	"tinymist/internal/source"
)

// Range is a half-open range of zero-based positions.
type Range struct {
	Start source.Position
	End   source.Position
}

// Located is a diagnostic resolved to a file path and positions in a
// negotiated encoding. It no longer depends on a FileSet.
type Located struct {
	Path         string
	Range        Range
	Severity     Severity
	Code         Code
	Source       string
	Message      string
	Replacements []string
}

// Converter resolves diagnostics against the files of one compilation.
type Converter struct {
	Files    *source.FileSet
	Encoding source.Encoding
	// Source is copied into every Located (e.g. "tinymist", "grammar").
	Source string
	// Fallback receives diagnostics whose span is detached. Such
	// diagnostics are skipped when Fallback is empty.
	Fallback string
}

// Convert resolves every diagnostic. It fails if a span points at a file
// the FileSet does not know.
func (c Converter) Convert(diags []Diagnostic) ([]Located, error) {
	out := make([]Located, 0, len(diags))
	for i := range diags {
		d := &diags[i]
		loc := Located{
			Severity: d.Severity,
			Code:     d.Code,
			Source:   c.Source,
			Message:  d.Message,
		}
		for _, fix := range d.Fixes {
			for _, e := range fix.Edits {
				loc.Replacements = append(loc.Replacements, e.NewText)
			}
		}
		if d.Primary.IsDetached() {
			if c.Fallback == "" {
				continue
			}
			loc.Path = c.Fallback
			out = append(out, loc)
			continue
		}
		f := c.Files.Get(d.Primary.File)
		if f == nil {
			return nil, fmt.Errorf("diagnostic %q refers to unknown file %d", d.Message, d.Primary.File)
		}
		loc.Path = f.Path
		loc.Range = Range{
			Start: f.Position(d.Primary.Start, c.Encoding),
			End:   f.Position(d.Primary.End, c.Encoding),
		}
		out = append(out, loc)
	}
	return out, nil
}

func (l Located) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s: %s",
		l.Path, l.Range.Start.Line+1, l.Range.Start.Character+1,
		l.Severity, l.Code.ID(), l.Message)
}
