package format

import (
	"github.com/mattn/go-runewidth"
)

// Writer accumulates formatted output and tracks the display column of the
// current line.
type Writer struct {
	buf         []byte
	col         int
	atLineStart bool
	blankRun    int
}

// NewWriter creates a writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size), atLineStart: true}
}

// Bytes returns the accumulated formatted output.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Column returns the display width of the current line.
func (w *Writer) Column() int {
	return w.col
}

// AtLineStart reports whether nothing was written on the current line.
func (w *Writer) AtLineStart() bool {
	return w.atLineStart
}

// WriteString writes s, which must not contain a newline.
func (w *Writer) WriteString(s string) {
	if s == "" {
		return
	}
	w.buf = append(w.buf, s...)
	w.col += runewidth.StringWidth(s)
	w.atLineStart = false
	w.blankRun = 0
}

// Space writes a single space unless the line is empty or already ends
// with one.
func (w *Writer) Space() {
	if w.atLineStart || len(w.buf) == 0 {
		return
	}
	if last := w.buf[len(w.buf)-1]; last == ' ' || last == '\t' {
		return
	}
	w.buf = append(w.buf, ' ')
	w.col++
}

// Line writes s followed by a newline.
func (w *Writer) Line(s string) {
	w.WriteString(s)
	w.Newline()
}

// Newline ends the current line.
func (w *Writer) Newline() {
	w.buf = append(w.buf, '\n')
	w.col = 0
	if w.atLineStart {
		w.blankRun++
	}
	w.atLineStart = true
}

// BlankLine writes an empty line unless the output is empty or already
// ends with one.
func (w *Writer) BlankLine() {
	if len(w.buf) == 0 || w.blankRun > 0 {
		return
	}
	if !w.atLineStart {
		w.Newline()
	}
	w.Newline()
}

// Verbatim copies a whole line, trailing whitespace removed, without
// touching blank line bookkeeping of the surrounding text.
func (w *Writer) Verbatim(line string) {
	w.buf = append(w.buf, line...)
	w.buf = append(w.buf, '\n')
	w.col = 0
	w.atLineStart = true
	w.blankRun = 0
	if line == "" {
		w.blankRun = 1
	}
}
