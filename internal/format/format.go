package format

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"tinymist/internal/source"
)

// DefaultWidth is the reflow width used when none is configured.
const DefaultWidth = 120

// Options control a single formatting run.
type Options struct {
	// Width is the maximum display width of reflowed paragraph lines.
	Width int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	return o
}

// Source formats a markup file. The result ends with exactly one newline
// unless it is empty.
func Source(src string, opt Options) string {
	opt = opt.withDefaults()
	content, _ := source.Normalize([]byte(src))
	lines := strings.Split(string(content), "\n")

	w := NewWriter(len(content))
	var para []string
	flush := func() {
		if len(para) > 0 {
			reflow(w, para, opt.Width)
			para = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
			w.BlankLine()

		case strings.HasPrefix(line, "```"):
			flush()
			w.Line(line)
			for i++; i < len(lines); i++ {
				if strings.HasPrefix(strings.TrimLeft(lines[i], " \t"), "```") {
					w.Line(strings.TrimSpace(lines[i]))
					break
				}
				w.Verbatim(lines[i])
			}

		case strings.HasPrefix(line, "//"):
			flush()
			w.Line(line)

		case headingLevel(line) > 0:
			flush()
			w.Line(heading(line))

		case line == "-" || strings.HasPrefix(line, "- "):
			flush()
			w.Line(listItem(line))

		case isInclude(line):
			flush()
			w.Line(line)

		default:
			if _, ok := splitAtoms(line); !ok {
				// строку нельзя склеивать с соседними
				flush()
				w.Line(line)
				continue
			}
			para = append(para, line)
		}
	}
	flush()

	out := strings.TrimRight(string(w.Bytes()), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '=' {
		n++
	}
	if n < len(line) && line[n] != ' ' && line[n] != '\t' {
		return 0
	}
	return n
}

func heading(line string) string {
	n := headingLevel(line)
	rest := strings.TrimSpace(line[n:])
	if rest == "" {
		return line[:n]
	}
	return line[:n] + " " + rest
}

func listItem(line string) string {
	rest := strings.TrimSpace(line[1:])
	if rest == "" {
		return "-"
	}
	return "- " + rest
}

func isInclude(line string) bool {
	rest, ok := strings.CutPrefix(line, "#include")
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '"')
}

// startsBlock reports whether atom would change meaning at a line start.
func startsBlock(atom string) bool {
	switch {
	case atom == "-", strings.HasPrefix(atom, "```"), isInclude(atom):
		return true
	case strings.Trim(atom, "=") == "":
		return true
	}
	return false
}

func reflow(w *Writer, lines []string, width int) {
	for _, line := range lines {
		atoms, _ := splitAtoms(line)
		for _, a := range atoms {
			if !w.AtLineStart() {
				if w.Column()+1+runewidth.StringWidth(a) > width && !startsBlock(a) {
					w.Newline()
				} else {
					w.Space()
				}
			}
			w.WriteString(a)
		}
	}
	if !w.AtLineStart() {
		w.Newline()
	}
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

// splitAtoms splits a paragraph line at the spaces where a line break
// keeps the meaning: outside emphasis, raw text and function calls. It
// reports false for lines that must stay as they are: lines with a
// comment, a trailing escape or an unbalanced construct.
func splitAtoms(line string) ([]string, bool) {
	var (
		atoms  []string
		delims []byte
	)
	start := -1
	mark := func(i int) {
		if start < 0 {
			start = i
		}
	}
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == '\\':
			if i+1 >= len(line) {
				return nil, false
			}
			mark(i)
			_, size := utf8.DecodeRuneInString(line[i+1:])
			i += 1 + size
			continue

		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return nil, false

		case c == ' ' || c == '\t':
			if len(delims) == 0 {
				if start >= 0 {
					atoms = append(atoms, line[start:i])
					start = -1
				}
				i++
				continue
			}

		case c == '*' || c == '_':
			if n := len(delims); n > 0 && delims[n-1] == c {
				delims = delims[:n-1]
			} else {
				delims = append(delims, c)
			}

		case c == '`':
			j := strings.IndexByte(line[i+1:], '`')
			if j < 0 {
				return nil, false
			}
			mark(i)
			i += j + 2
			continue

		case c == '#' && i+1 < len(line) && isIdentStart(line[i+1]):
			end, ok := skipCall(line, i)
			if !ok {
				return nil, false
			}
			mark(i)
			i = end
			continue
		}
		mark(i)
		i++
	}
	if len(delims) > 0 {
		return nil, false
	}
	if start >= 0 {
		atoms = append(atoms, line[start:])
	}
	return atoms, true
}

// skipCall returns the offset after `#name(...)` starting at i.
func skipCall(line string, i int) (int, bool) {
	j := i + 1
	for j < len(line) && isIdentChar(line[j]) {
		j++
	}
	if j >= len(line) || line[j] != '(' {
		return j, true
	}
	inString := false
	for j++; j < len(line); j++ {
		switch c := line[j]; {
		case inString && c == '\\':
			j++
		case c == '"':
			inString = !inString
		case !inString && c == ')':
			return j + 1, true
		}
	}
	return len(line), false
}
