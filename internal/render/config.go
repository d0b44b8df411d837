package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"tinymist/internal/snapshot"
)

// ExportMode decides when a document is written to disk.
type ExportMode uint8

const (
	ExportNever ExportMode = iota
	ExportOnSave
	// ExportOnType exports every successful compilation.
	ExportOnType
	// ExportOnDocumentHasTitle exports every successful compilation of a
	// document that sets a title.
	ExportOnDocumentHasTitle
)

func (m ExportMode) String() string {
	switch m {
	case ExportOnSave:
		return "onSave"
	case ExportOnType:
		return "onType"
	case ExportOnDocumentHasTitle:
		return "onDocumentHasTitle"
	default:
		return "never"
	}
}

// ParseExportMode accepts never|onSave|onType|always|onDocumentHasTitle.
func ParseExportMode(s string) (ExportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return ExportNever, nil
	case "onsave":
		return ExportOnSave, nil
	case "ontype", "always":
		return ExportOnType, nil
	case "ondocumenthastitle":
		return ExportOnDocumentHasTitle, nil
	default:
		return ExportNever, fmt.Errorf("invalid export mode: %q (expected: never|onSave|onType|onDocumentHasTitle)", s)
	}
}

// ExportConfig is the export state of one unit.
type ExportConfig struct {
	// SubstitutePattern templates the output path without extension.
	// $root, $dir and $name are replaced; relative results are resolved
	// against the root. Empty means next to the entry file.
	SubstitutePattern string
	Entry             snapshot.EntryState
	Mode              ExportMode
	// Format selects the renderer by extension, "txt" or "html".
	Format string
}

// SubstitutePath computes the output path (without extension) for entry.
// ok is false when the entry is inactive.
func SubstitutePath(pattern string, entry snapshot.EntryState) (string, bool) {
	main := entry.MainPath()
	if main == "" {
		return "", false
	}
	stem := strings.TrimSuffix(main, filepath.Ext(main))
	if pattern == "" {
		return stem, true
	}

	root := entry.Root
	if root == "" {
		root = filepath.Dir(main)
	}
	rel, err := filepath.Rel(root, main)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(main)
	}
	dir := filepath.Dir(rel)
	name := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))

	out := strings.NewReplacer("$root", root, "$dir", dir, "$name", name).Replace(pattern)
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}
	return filepath.Clean(out), true
}
