// Package fonts discovers font files and builds the font book shared by the
// compilation units of a session.
package fonts

import (
	"sort"
	"strings"
	"unicode"
)

// Digest is a blake3-256 digest.
type Digest [32]byte

// Font describes one font file.
type Font struct {
	Path   string
	Family string
	Style  string // "regular", "bold", "italic", "bold italic", ...
	Size   int64
	Hash   Digest
}

// Book is an immutable index of fonts by family.
type Book struct {
	fonts    []Font
	families map[string][]int
}

// NewBook indexes fonts. Order is kept for lookups within a family.
func NewBook(fonts []Font) *Book {
	b := &Book{fonts: fonts, families: make(map[string][]int)}
	for i, f := range fonts {
		key := strings.ToLower(f.Family)
		b.families[key] = append(b.families[key], i)
	}
	return b
}

// Len returns the number of fonts.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.fonts)
}

// Fonts returns a copy of the indexed fonts.
func (b *Book) Fonts() []Font {
	if b == nil {
		return nil
	}
	out := make([]Font, len(b.fonts))
	copy(out, b.fonts)
	return out
}

// Families returns family names sorted case-insensitively.
func (b *Book) Families() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.families))
	for _, idx := range b.families {
		out = append(out, b.fonts[idx[0]].Family)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// Lookup returns the fonts of a family, ignoring case.
func (b *Book) Lookup(family string) []Font {
	if b == nil {
		return nil
	}
	idx := b.families[strings.ToLower(family)]
	out := make([]Font, 0, len(idx))
	for _, i := range idx {
		out = append(out, b.fonts[i])
	}
	return out
}

var styleWords = map[string]string{
	"regular":    "regular",
	"bold":       "bold",
	"italic":     "italic",
	"oblique":    "italic",
	"light":      "light",
	"medium":     "medium",
	"semibold":   "semibold",
	"black":      "black",
	"thin":       "thin",
	"bolditalic": "bold italic",
}

// ParseName derives family and style from a font file base name without
// extension, e.g. "NotoSans-BoldItalic" -> ("Noto Sans", "bold italic").
func ParseName(base string) (family, style string) {
	name, styles, _ := strings.Cut(base, "-")
	family = splitCamel(strings.NewReplacer("_", " ").Replace(name))

	var parts []string
	for _, w := range strings.Fields(strings.ToLower(splitCamel(styles))) {
		if s, ok := styleWords[w]; ok {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return family, "regular"
	}
	return family, strings.Join(parts, " ")
}

// splitCamel inserts spaces at lower-to-upper transitions.
func splitCamel(s string) string {
	var sb strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
		prev = r
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
