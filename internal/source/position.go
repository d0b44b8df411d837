package source

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"
)

// Encoding is the unit used to count characters inside a line.
type Encoding uint8

const (
	EncodingUTF16 Encoding = iota
	EncodingUTF8
	EncodingUTF32
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "utf-8"
	case EncodingUTF32:
		return "utf-32"
	default:
		return "utf-16"
	}
}

// ParseEncoding accepts the LSP spelling of a position encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-16", "utf16":
		return EncodingUTF16, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "utf-32", "utf32":
		return EncodingUTF32, nil
	default:
		return EncodingUTF16, fmt.Errorf("invalid position encoding: %q (expected: utf-8|utf-16|utf-32)", s)
	}
}

func (e Encoding) units(r rune, size int) int {
	switch e {
	case EncodingUTF8:
		return size
	case EncodingUTF32:
		return 1
	default:
		if r > 0xFFFF {
			return 2
		}
		return 1
	}
}

// Position converts a byte offset into a zero-based line/character pair.
func (f *File) Position(offset uint32, enc Encoding) Position {
	if f == nil {
		return Position{}
	}
	contentLen := safeLen(f.Content)
	if offset > contentLen {
		offset = contentLen
	}
	line, lineStart := lineOf(f.LineIdx, offset)
	return Position{Line: line, Character: countUnits(f.Content[lineStart:offset], enc)}
}

// Offset converts a zero-based line/character pair back into a byte offset.
// Positions past the end of a line clamp to the line end.
func (f *File) Offset(pos Position, enc Encoding) uint32 {
	if f == nil || pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	contentLen := safeLen(f.Content)
	if pos.Line > len(f.LineIdx) {
		return contentLen
	}
	var lineStart uint32
	if pos.Line > 0 {
		lineStart = f.LineIdx[pos.Line-1] + 1
	}
	lineEnd := contentLen
	if pos.Line < len(f.LineIdx) {
		lineEnd = f.LineIdx[pos.Line]
	}
	return lineStart + OffsetInLine(string(f.Content[lineStart:lineEnd]), pos.Character, enc)
}

// EndPosition returns the position just after the last byte of text.
func EndPosition(text string, enc Encoding) Position {
	line := strings.Count(text, "\n")
	lastStart := strings.LastIndexByte(text, '\n') + 1
	return Position{Line: line, Character: countUnits([]byte(text[lastStart:]), enc)}
}

// OffsetInLine returns the byte offset of the character-th unit within line.
func OffsetInLine(line string, character int, enc Encoding) uint32 {
	units := 0
	i := 0
	for i < len(line) && units < character {
		r, size := utf8.DecodeRuneInString(line[i:])
		need := enc.units(r, size)
		if units+need > character {
			break
		}
		units += need
		i += size
	}
	return safeLen([]byte(line[:i]))
}

func countUnits(b []byte, enc Encoding) int {
	if enc == EncodingUTF8 {
		return len(b)
	}
	units := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		units += enc.units(r, size)
		b = b[size:]
	}
	return units
}

func safeLen(b []byte) uint32 {
	n, err := safecast.Conv[uint32](len(b))
	if err != nil {
		return ^uint32(0)
	}
	return n
}
