package lsp

import (
	"strings"

	"fortio.org/safecast"

	"tinymist/internal/source"
)

// applyChanges applies incremental or full content changes in order.
// Positions are counted in enc.
func applyChanges(text string, changes []textDocumentContentChangeEvent, enc source.Encoding) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start, enc)
		end := offsetForPosition(text, change.Range.End, enc)
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetForPosition clamps pos into text and returns its byte offset. A
// character past the end of a line points at the line break.
func offsetForPosition(text string, pos position, enc source.Encoding) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	i := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(text[i:], '\n')
		if next < 0 {
			return len(text)
		}
		i += next + 1
	}
	lineEnd := strings.IndexByte(text[i:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text) - i
	}
	off, err := safecast.Conv[int](source.OffsetInLine(text[i:i+lineEnd], pos.Character, enc))
	if err != nil {
		return i + lineEnd
	}
	return i + off
}

func toLSPPosition(p source.Position) position {
	return position{Line: maxZero(p.Line), Character: maxZero(p.Character)}
}

func maxZero(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
