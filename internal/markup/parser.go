package markup

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"tinymist/internal/diag"
	"tinymist/internal/source"
)

// maxIncludeDepth bounds #include nesting.
const maxIncludeDepth = 16

// Options tune a single compilation.
type Options struct {
	MaxErrors     uint
	CurrentErrors uint
	Reporter      diag.Reporter
}

// Enough reports whether the error limit was reached.
func (o *Options) Enough() bool {
	if o.MaxErrors == 0 {
		return false
	}
	return o.CurrentErrors >= o.MaxErrors
}

// parser holds the state of one compilation across included files.
type parser struct {
	src   Source
	files *source.FileSet
	doc   *Document
	opts  Options
	stack []string // include chain, entry first
}

func (p *parser) report(code diag.Code, sev diag.Severity, sp source.Span, msg string) bool {
	if p.opts.Reporter == nil {
		return false
	}
	if sev == diag.SevError {
		p.opts.CurrentErrors++
	}
	if p.opts.Enough() {
		return false
	}
	p.opts.Reporter.Report(sev, code, sp, msg)
	return true
}

func (p *parser) err(code diag.Code, sp source.Span, msg string) bool {
	return p.report(code, diag.SevError, sp, msg)
}

func (p *parser) warn(code diag.Code, sp source.Span, msg string) bool {
	return p.report(code, diag.SevWarning, sp, msg)
}

func span(file source.FileID, start, end int) source.Span {
	return source.Span{File: file, Start: uint32(start), End: uint32(end)} // #nosec G115 -- file sizes are bounded by FileSet
}

// parseFile reads path and returns its blocks. at is the span of the
// #include argument that requested it (detached for the entry).
func (p *parser) parseFile(path string, at source.Span) ([]*Node, source.FileID) {
	content, err := p.src.ReadFile(path)
	if err != nil {
		if len(p.stack) == 0 {
			p.err(diag.IOEntryNotFound, at, fmt.Sprintf("entry file %s not found: %v", path, err))
		} else {
			p.err(diag.IOFileNotFound, at, fmt.Sprintf("file not found: %s", path))
		}
		return nil, source.NoFile
	}
	if !utf8.Valid(content) {
		p.err(diag.IOInvalidEncoding, at, fmt.Sprintf("file %s is not valid UTF-8", path))
		return nil, source.NoFile
	}
	content, flags := source.Normalize(content)
	id := p.files.Add(path, content, flags)

	p.stack = append(p.stack, filepath.Clean(path))
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()
	return p.parseBlocks(id, content), id
}

func (p *parser) currentDir() string {
	if len(p.stack) == 0 {
		return ""
	}
	return filepath.Dir(p.stack[len(p.stack)-1])
}

// parseBlocks splits content into lines and groups them into blocks.
func (p *parser) parseBlocks(file source.FileID, content []byte) []*Node {
	var (
		blocks []*Node
		para   *Node
	)
	flush := func() {
		// строки только с #title(...) не дают абзаца
		if para != nil && len(para.Children) > 0 {
			blocks = append(blocks, para)
		}
		para = nil
	}

	for off := 0; off < len(content); {
		lineEnd := len(content)
		if i := bytes.IndexByte(content[off:], '\n'); i >= 0 {
			lineEnd = off + i
		}
		next := lineEnd + 1
		line := content[off:lineEnd]
		trimmed := bytes.TrimLeft(line, " \t")
		base := off + len(line) - len(trimmed)

		switch {
		case len(bytes.TrimSpace(line)) == 0:
			flush()

		case bytes.HasPrefix(trimmed, []byte("```")):
			flush()
			var raw *Node
			raw, next = p.parseFence(file, content, base, lineEnd)
			blocks = append(blocks, raw)

		case bytes.HasPrefix(trimmed, []byte("//")):
			// комментарий не разрывает абзац

		case trimmed[0] == '=' && headingLevel(trimmed) > 0:
			flush()
			level := headingLevel(trimmed)
			textStart := base + level
			for textStart < lineEnd && (content[textStart] == ' ' || content[textStart] == '\t') {
				textStart++
			}
			h := &Node{Kind: NodeHeading, Level: level, Span: span(file, base, lineEnd)}
			h.Children = p.parseInline(file, content, textStart, lineEnd)
			if strings.TrimSpace(h.PlainText()) == "" {
				p.warn(diag.SynEmptyHeading, span(file, base, base+level), "heading has no text")
			}
			blocks = append(blocks, h)

		case bytes.Equal(trimmed, []byte("-")) || bytes.HasPrefix(trimmed, []byte("- ")):
			flush()
			item := &Node{Kind: NodeListItem, Span: span(file, base, lineEnd)}
			item.Children = p.parseInline(file, content, min(base+2, lineEnd), lineEnd)
			blocks = append(blocks, item)

		case isIncludeLine(trimmed):
			flush()
			blocks = append(blocks, p.parseInclude(file, content, base, lineEnd)...)

		default:
			if para == nil {
				para = &Node{Kind: NodeParagraph, Span: span(file, base, lineEnd)}
			} else {
				if len(para.Children) > 0 {
					para.Children = append(para.Children, &Node{Kind: NodeSpace, Span: span(file, off-1, base)})
				}
				para.Span.End = uint32(lineEnd) // #nosec G115
			}
			para.Children = append(para.Children, p.parseInline(file, content, base, lineEnd)...)
		}
		off = next
	}
	flush()
	return blocks
}

func headingLevel(line []byte) int {
	n := 0
	for n < len(line) && line[n] == '=' {
		n++
	}
	if n < len(line) && line[n] != ' ' && line[n] != '\t' {
		return 0
	}
	return n
}

func isIncludeLine(line []byte) bool {
	if !bytes.HasPrefix(line, []byte("#include")) {
		return false
	}
	rest := line[len("#include"):]
	return len(rest) == 0 || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '"'
}

// parseFence parses a fenced raw block starting at start. It returns the
// node and the offset of the line after the closing fence.
func (p *parser) parseFence(file source.FileID, content []byte, start, lineEnd int) (*Node, int) {
	lang := strings.TrimSpace(string(content[start+3 : lineEnd]))
	bodyStart := min(lineEnd+1, len(content))

	for off := bodyStart; off < len(content); {
		end := len(content)
		if i := bytes.IndexByte(content[off:], '\n'); i >= 0 {
			end = off + i
		}
		if bytes.HasPrefix(bytes.TrimLeft(content[off:end], " \t"), []byte("```")) {
			body := content[bodyStart:off]
			body = bytes.TrimSuffix(body, []byte("\n"))
			return &Node{
				Kind: NodeRawBlock,
				Lang: lang,
				Text: string(body),
				Span: span(file, bodyStart, bodyStart+len(body)),
			}, end + 1
		}
		off = end + 1
	}

	p.err(diag.SynUnterminatedRaw, span(file, start, start+3), "unterminated raw block")
	return &Node{
		Kind: NodeRawBlock,
		Lang: lang,
		Text: string(content[bodyStart:]),
		Span: span(file, bodyStart, len(content)),
	}, len(content)
}

// parseInclude handles `#include "path"` and returns the included blocks.
func (p *parser) parseInclude(file source.FileID, content []byte, start, lineEnd int) []*Node {
	pos := start + len("#include")
	for pos < lineEnd && (content[pos] == ' ' || content[pos] == '\t') {
		pos++
	}
	target, end, ok := parseString(content, pos, lineEnd)
	if !ok {
		p.err(diag.SynBadArgument, span(file, start, lineEnd), "#include expects a quoted path")
		return nil
	}
	argSpan := span(file, pos, end)
	if target == "" {
		p.err(diag.SynBadArgument, argSpan, "#include path is empty")
		return nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.currentDir(), target)
	}
	target = filepath.Clean(target)

	for _, open := range p.stack {
		if open == target {
			p.err(diag.IOIncludeCycle, argSpan, fmt.Sprintf("cyclic include of %s", filepath.Base(target)))
			return nil
		}
	}
	if len(p.stack) > maxIncludeDepth {
		p.err(diag.IOIncludeTooDeep, argSpan, fmt.Sprintf("include nesting deeper than %d", maxIncludeDepth))
		return nil
	}
	blocks, _ := p.parseFile(target, argSpan)
	return blocks
}

// parseString reads a double-quoted literal at pos. end is the offset just
// past the closing quote.
func parseString(content []byte, pos, limit int) (value string, end int, ok bool) {
	if pos >= limit || content[pos] != '"' {
		return "", pos, false
	}
	var sb strings.Builder
	for i := pos + 1; i < limit; i++ {
		switch c := content[i]; c {
		case '"':
			return sb.String(), i + 1, true
		case '\\':
			if i+1 >= limit {
				return "", limit, false
			}
			i++
			switch content[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(content[i])
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", limit, false
}
