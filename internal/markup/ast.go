package markup

import (
	"strings"

	"tinymist/internal/source"
)

// NodeKind tells what a Node represents.
type NodeKind uint8

const (
	NodeText NodeKind = iota
	NodeSpace
	NodeStrong
	NodeEmph
	NodeRaw
	NodeHeading
	NodeParagraph
	NodeListItem
	NodeRawBlock
)

func (k NodeKind) String() string {
	switch k {
	case NodeText:
		return "text"
	case NodeSpace:
		return "space"
	case NodeStrong:
		return "strong"
	case NodeEmph:
		return "emph"
	case NodeRaw:
		return "raw"
	case NodeHeading:
		return "heading"
	case NodeParagraph:
		return "paragraph"
	case NodeListItem:
		return "list-item"
	case NodeRawBlock:
		return "raw-block"
	}
	return "unknown"
}

// IsBlock reports whether the kind is a top-level block.
func (k NodeKind) IsBlock() bool {
	return k >= NodeHeading
}

// Node is an element of a compiled document. Leaves (text, raw) carry Text;
// containers carry Children. Span points into the file the node came from.
type Node struct {
	Kind     NodeKind
	Level    int    // heading level
	Lang     string // raw block language tag
	Text     string
	Span     source.Span
	Children []*Node
}

// PlainText concatenates the text of n and its descendants.
func (n *Node) PlainText() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	switch n.Kind {
	case NodeText, NodeRaw, NodeRawBlock:
		sb.WriteString(n.Text)
	case NodeSpace:
		sb.WriteByte(' ')
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Document is the result of one compilation. It is immutable once returned.
type Document struct {
	// Title is set by #title("..."). Empty means the document has no title.
	Title  string
	Blocks []*Node
	// Files holds every file read during compilation; spans resolve against it.
	Files *source.FileSet
	// Main is the entry file, or source.NoFile when it could not be read.
	Main source.FileID
}

// Walk visits nodes depth-first in document order. Returning false from fn
// skips the children of that node.
func (d *Document) Walk(fn func(*Node) bool) {
	if d == nil {
		return
	}
	for _, b := range d.Blocks {
		walk(b, fn)
	}
}

func walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		walk(c, fn)
	}
}

// Headings returns the heading nodes in order.
func (d *Document) Headings() []*Node {
	var out []*Node
	d.Walk(func(n *Node) bool {
		if n.Kind == NodeHeading {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}
