package markup

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tinymist/internal/diag"
	"tinymist/internal/source"
)

type inlineFrame struct {
	node  *Node
	delim byte
	open  int
}

// inlineState accumulates text runs of one line.
type inlineState struct {
	file  source.FileID
	stack []*inlineFrame
	buf   strings.Builder
	start int // offset of the first byte in buf, -1 when empty
}

func (s *inlineState) top() *Node {
	return s.stack[len(s.stack)-1].node
}

func (s *inlineState) push(n *Node) {
	top := s.top()
	top.Children = append(top.Children, n)
}

func (s *inlineState) appendText(at int, text string) {
	if s.start < 0 {
		s.start = at
	}
	s.buf.WriteString(text)
}

func (s *inlineState) flushText(at int) {
	if s.start < 0 {
		return
	}
	s.push(&Node{Kind: NodeText, Text: s.buf.String(), Span: span(s.file, s.start, at)})
	s.buf.Reset()
	s.start = -1
}

// parseInline parses content[start:end] (a single line) into inline nodes.
func (p *parser) parseInline(file source.FileID, content []byte, start, end int) []*Node {
	root := &Node{}
	s := &inlineState{file: file, stack: []*inlineFrame{{node: root}}, start: -1}

	i := start
loop:
	for i < end {
		c := content[i]
		switch {
		case c == '\\' && i+1 < end:
			r, size := utf8.DecodeRune(content[i+1 : end])
			s.appendText(i, string(r))
			i += 1 + size

		case c == '/' && i+1 < end && content[i+1] == '/':
			s.flushText(i)
			break loop

		case c == '*' || c == '_':
			s.flushText(i)
			top := s.stack[len(s.stack)-1]
			if top.delim == c {
				s.stack = s.stack[:len(s.stack)-1]
				top.node.Span.End = uint32(i + 1) // #nosec G115
				s.push(top.node)
			} else {
				kind := NodeStrong
				if c == '_' {
					kind = NodeEmph
				}
				s.stack = append(s.stack, &inlineFrame{
					node:  &Node{Kind: kind, Span: span(file, i, i+1)},
					delim: c,
					open:  i,
				})
			}
			i++

		case c == '`':
			s.flushText(i)
			j := i + 1
			for j < end && content[j] != '`' {
				j++
			}
			if j >= end {
				p.err(diag.SynUnterminatedRaw, span(file, i, i+1), "unterminated raw text")
				s.push(&Node{Kind: NodeRaw, Text: string(content[i+1 : end]), Span: span(file, i, end)})
				i = end
				continue
			}
			s.push(&Node{Kind: NodeRaw, Text: string(content[i+1 : j]), Span: span(file, i, j+1)})
			i = j + 1

		case c == '#' && i+1 < end && isIdentStart(content[i+1]):
			s.flushText(i)
			var n *Node
			n, i = p.parseCall(file, content, i, end)
			if n != nil {
				s.push(n)
			}

		default:
			r, size := utf8.DecodeRune(content[i:end])
			s.appendText(i, string(r))
			i += size
		}
	}
	s.flushText(min(i, end))

	// незакрытые разделители: сообщаем и сворачиваем в родителя
	for len(s.stack) > 1 {
		top := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		p.err(diag.SynUnclosedDelimiter, span(file, top.open, top.open+1),
			fmt.Sprintf("unclosed delimiter %q", string(top.delim)))
		top.node.Span.End = uint32(end) // #nosec G115
		s.push(top.node)
	}
	return root.Children
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

// parseCall parses `#name("arg", ...)` at start. It returns the produced
// node (nil when the call produces no content) and the offset after the call.
func (p *parser) parseCall(file source.FileID, content []byte, start, end int) (*Node, int) {
	nameEnd := start + 1
	for nameEnd < end && isIdentChar(content[nameEnd]) {
		nameEnd++
	}
	name := string(content[start+1 : nameEnd])

	args, next, ok := parseArgs(content, nameEnd, end)
	callSpan := span(file, start, next)

	switch name {
	case "input":
		if !ok || len(args) != 1 {
			p.err(diag.SynBadArgument, callSpan, `#input expects one string argument, e.g. #input("key")`)
			return nil, next
		}
		value, found := p.src.Input(args[0])
		if !found {
			p.err(diag.IOMissingInput, callSpan, fmt.Sprintf("no input named %q", args[0]))
			return nil, next
		}
		return &Node{Kind: NodeText, Text: value, Span: callSpan}, next

	case "title":
		if !ok || len(args) != 1 {
			p.err(diag.SynBadArgument, callSpan, `#title expects one string argument`)
			return nil, next
		}
		p.doc.Title = args[0]
		return nil, next

	case "include":
		p.err(diag.SynBadArgument, callSpan, "#include must start a line")
		return nil, next

	default:
		p.err(diag.SynUnknownFunction, span(file, start, nameEnd), fmt.Sprintf("unknown function: %s", name))
		return nil, next
	}
}

// parseArgs reads `("a", "b")` at pos. Without an opening parenthesis it
// consumes nothing and reports ok == false.
func parseArgs(content []byte, pos, end int) (args []string, next int, ok bool) {
	if pos >= end || content[pos] != '(' {
		return nil, pos, false
	}
	i := pos + 1
	for {
		for i < end && content[i] == ' ' {
			i++
		}
		if i >= end {
			return nil, end, false
		}
		if content[i] == ')' {
			return args, i + 1, true
		}
		v, after, good := parseString(content, i, end)
		if !good {
			// пропускаем до закрывающей скобки
			for i < end && content[i] != ')' {
				i++
			}
			return nil, min(i+1, end), false
		}
		args = append(args, v)
		i = after
		for i < end && content[i] == ' ' {
			i++
		}
		if i < end && content[i] == ',' {
			i++
		}
	}
}
