package render

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"tinymist/internal/markup"
)

// Renderer writes a document in one output format.
type Renderer interface {
	// Extension is the output file extension without the dot.
	Extension() string
	Render(w io.Writer, doc *markup.Document) error
}

// Renderers returns the built-in renderers keyed by extension.
func Renderers(fontFamily string) map[string]Renderer {
	return map[string]Renderer{
		"txt":  TextRenderer{},
		"html": HTMLRenderer{FontFamily: fontFamily},
	}
}

// TextRenderer writes plain text. Headings are underlined to their display
// width, list items get a bullet and raw blocks are indented.
type TextRenderer struct{}

func (TextRenderer) Extension() string { return "txt" }

func (TextRenderer) Render(w io.Writer, doc *markup.Document) error {
	bw := bufio.NewWriter(w)
	if doc.Title != "" {
		fmt.Fprintf(bw, "%s\n%s\n\n", doc.Title, strings.Repeat("#", runewidth.StringWidth(doc.Title)))
	}
	for i, b := range doc.Blocks {
		if i > 0 && !(b.Kind == markup.NodeListItem && doc.Blocks[i-1].Kind == markup.NodeListItem) {
			bw.WriteString("\n")
		}
		switch b.Kind {
		case markup.NodeHeading:
			text := b.PlainText()
			rule := "="
			if b.Level > 1 {
				rule = "-"
			}
			fmt.Fprintf(bw, "%s\n%s\n", text, strings.Repeat(rule, runewidth.StringWidth(text)))
		case markup.NodeListItem:
			fmt.Fprintf(bw, "• %s\n", b.PlainText())
		case markup.NodeRawBlock:
			for _, line := range strings.Split(b.Text, "\n") {
				fmt.Fprintf(bw, "    %s\n", line)
			}
		default:
			fmt.Fprintf(bw, "%s\n", b.PlainText())
		}
	}
	return bw.Flush()
}

// HTMLRenderer writes a standalone HTML page.
type HTMLRenderer struct {
	FontFamily string
}

func (HTMLRenderer) Extension() string { return "html" }

func (r HTMLRenderer) Render(w io.Writer, doc *markup.Document) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if doc.Title != "" {
		fmt.Fprintf(bw, "<title>%s</title>\n", html.EscapeString(doc.Title))
	}
	if r.FontFamily != "" {
		fmt.Fprintf(bw, "<style>body { font-family: %q; }</style>\n", r.FontFamily)
	}
	bw.WriteString("</head>\n<body>\n")

	inList := false
	for _, b := range doc.Blocks {
		if inList && b.Kind != markup.NodeListItem {
			bw.WriteString("</ul>\n")
			inList = false
		}
		switch b.Kind {
		case markup.NodeHeading:
			level := min(max(b.Level, 1), 6)
			fmt.Fprintf(bw, "<h%d>", level)
			writeInlineHTML(bw, b.Children)
			fmt.Fprintf(bw, "</h%d>\n", level)
		case markup.NodeListItem:
			if !inList {
				bw.WriteString("<ul>\n")
				inList = true
			}
			bw.WriteString("<li>")
			writeInlineHTML(bw, b.Children)
			bw.WriteString("</li>\n")
		case markup.NodeRawBlock:
			if b.Lang != "" {
				fmt.Fprintf(bw, "<pre><code class=\"language-%s\">", html.EscapeString(b.Lang))
			} else {
				bw.WriteString("<pre><code>")
			}
			bw.WriteString(html.EscapeString(b.Text))
			bw.WriteString("</code></pre>\n")
		default:
			bw.WriteString("<p>")
			writeInlineHTML(bw, b.Children)
			bw.WriteString("</p>\n")
		}
	}
	if inList {
		bw.WriteString("</ul>\n")
	}
	bw.WriteString("</body>\n</html>\n")
	return bw.Flush()
}

func writeInlineHTML(bw *bufio.Writer, nodes []*markup.Node) {
	for _, n := range nodes {
		switch n.Kind {
		case markup.NodeText:
			bw.WriteString(html.EscapeString(n.Text))
		case markup.NodeSpace:
			bw.WriteByte(' ')
		case markup.NodeRaw:
			bw.WriteString("<code>" + html.EscapeString(n.Text) + "</code>")
		case markup.NodeStrong:
			bw.WriteString("<strong>")
			writeInlineHTML(bw, n.Children)
			bw.WriteString("</strong>")
		case markup.NodeEmph:
			bw.WriteString("<em>")
			writeInlineHTML(bw, n.Children)
			bw.WriteString("</em>")
		}
	}
}
