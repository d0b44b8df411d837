// Package textexport flattens a compiled document into plain text and maps
// ranges of that text back to source spans.
package textexport

import (
	"errors"
	"strings"

	"tinymist/internal/markup"
	"tinymist/internal/source"
)

// ErrNoDocument is returned by Annotate for a nil document.
var ErrNoDocument = errors.New("textexport: no document")

// Range is a half-open byte range in the extracted text.
type Range struct {
	Start int
	End   int
}

// MappedSpan is a range of extracted text resolved to source.
type MappedSpan struct {
	Span source.Span
}

type segment struct {
	start int // text offsets
	end   int
	span  source.Span
}

// Annotated is the plain text of a document plus the source mapping of every
// text run. Separators inserted between blocks are not mapped.
type Annotated struct {
	Text     string
	segments []segment
}

// Annotate extracts the text of doc. Blocks are separated by a blank line,
// raw blocks are left out.
func Annotate(doc *markup.Document) (*Annotated, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	var b builder
	for _, block := range doc.Blocks {
		if block.Kind == markup.NodeRawBlock {
			continue
		}
		if b.sb.Len() > 0 {
			b.sb.WriteString("\n\n")
		}
		b.inline(block.Children)
	}
	return &Annotated{Text: b.sb.String(), segments: b.segments}, nil
}

type builder struct {
	sb       strings.Builder
	segments []segment
}

func (b *builder) inline(nodes []*markup.Node) {
	for _, n := range nodes {
		switch n.Kind {
		case markup.NodeText, markup.NodeRaw:
			text := n.Text
			sp := n.Span
			if n.Kind == markup.NodeRaw && sp.Len() >= 2 {
				// без обратных кавычек
				sp = sp.Sub(1, sp.Len()-1)
			}
			start := b.sb.Len()
			b.sb.WriteString(text)
			b.segments = append(b.segments, segment{start: start, end: b.sb.Len(), span: sp})
		case markup.NodeSpace:
			b.sb.WriteByte(' ')
		default:
			b.inline(n.Children)
		}
	}
}

// MapBackSpans resolves each range. A range that touches no mapped text
// yields nil. A range crossing files is cut at the end of the first file.
func (a *Annotated) MapBackSpans(ranges []Range) []*MappedSpan {
	out := make([]*MappedSpan, len(ranges))
	for i, r := range ranges {
		out[i] = a.mapBack(r)
	}
	return out
}

func (a *Annotated) mapBack(r Range) *MappedSpan {
	if r.End < r.Start {
		return nil
	}
	var out *MappedSpan
	for _, seg := range a.segments {
		if seg.end < r.Start || seg.start > r.End {
			continue
		}
		// touching at a boundary only counts for empty ranges
		if r.Start != r.End && (seg.end == r.Start || seg.start == r.End) {
			continue
		}
		if out == nil {
			start := seg.span.Start + offsetIn(seg, r.Start)
			out = &MappedSpan{Span: source.Span{File: seg.span.File, Start: start, End: start}}
		} else if seg.span.File != out.Span.File {
			break
		}
		if end := seg.span.Start + offsetIn(seg, r.End); end > out.Span.End {
			out.Span.End = end
		}
	}
	return out
}

// offsetIn maps a text offset into the span of seg, clamping to its bounds.
func offsetIn(seg segment, textOff int) uint32 {
	d := textOff - seg.start
	if d < 0 {
		return 0
	}
	n := seg.span.Len()
	if uint64(d) > uint64(n) {
		return n
	}
	return uint32(d) // #nosec G115 -- bounded by n
}
