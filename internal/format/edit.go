package format

import (
	"tinymist/internal/source"
)

// Range is a half-open range of zero-based positions.
type Range struct {
	Start source.Position
	End   source.Position
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range
	NewText string
}

// Edits returns a single edit replacing the whole of original with
// formatted, or nil when nothing changed. The end position is expressed in
// enc.
func Edits(original, formatted string, enc source.Encoding) []TextEdit {
	if original == formatted {
		return nil
	}
	return []TextEdit{{
		Range:   Range{End: source.EndPosition(original, enc)},
		NewText: formatted,
	}}
}
