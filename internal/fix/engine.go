// Package fix applies the replacement edits carried by diagnostics back to
// the files they point at.
package fix

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"tinymist/internal/diag"
	"tinymist/internal/source"
)

// ErrNoFixes is returned when no fixes were applied.
var ErrNoFixes = errors.New("no applicable fixes found")

// ApplyMode determines selection strategy for fixes.
type ApplyMode uint8

const (
	// ApplyModeOnce applies the first fix found in source order.
	ApplyModeOnce ApplyMode = iota
	// ApplyModeAll applies the first fix of every diagnostic.
	ApplyModeAll
)

// ApplyOptions configures how fixes are selected.
type ApplyOptions struct {
	Mode ApplyMode
	// DryRun computes the result without writing files.
	DryRun bool
}

// AppliedFix records a successfully applied fix.
type AppliedFix struct {
	Title     string
	Code      diag.Code
	Message   string
	Path      string
	EditCount int
}

// SkippedFix captures a skipped fix with a reason.
type SkippedFix struct {
	Title  string
	Path   string
	Reason string
}

// FileChange summarises modifications performed on a file. Content is the
// new text of the file.
type FileChange struct {
	Path      string
	EditCount int
	Content   []byte
}

// ApplyResult aggregates applied fixes, skipped ones, and file changes.
type ApplyResult struct {
	Applied     []AppliedFix
	Skipped     []SkippedFix
	FileChanges []FileChange
}

type candidate struct {
	diag  diag.Diagnostic
	fix   diag.Fix
	order int
}

// Apply collects fixes from diagnostics, selects a subset according to opts
// and applies them to the files of fs.
func Apply(fs *source.FileSet, diagnostics []diag.Diagnostic, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{}
	if fs == nil {
		return result, fmt.Errorf("fix: FileSet is nil")
	}

	candidates := gatherCandidates(diagnostics)
	if len(candidates) == 0 {
		return result, ErrNoFixes
	}
	sortCandidates(candidates)
	if opts.Mode == ApplyModeOnce {
		candidates = candidates[:1]
	}

	changes, err := applyCandidates(fs, candidates, result)
	if err != nil {
		return result, err
	}
	if len(result.Applied) == 0 {
		return result, ErrNoFixes
	}
	if !opts.DryRun {
		for _, ch := range changes {
			if err := writeFile(ch.Path, ch.Content); err != nil {
				return result, err
			}
		}
	}
	result.FileChanges = changes
	return result, nil
}

// gatherCandidates takes the first fix of every diagnostic that has one.
// Alternatives are left for the editor to offer.
func gatherCandidates(diagnostics []diag.Diagnostic) []candidate {
	cands := make([]candidate, 0, len(diagnostics))
	for i, d := range diagnostics {
		if len(d.Fixes) == 0 || len(d.Fixes[0].Edits) == 0 {
			continue
		}
		cands = append(cands, candidate{diag: d, fix: d.Fixes[0], order: i})
	}
	return cands
}

func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].diag.Primary, candidates[j].diag.Primary
		if di.File != dj.File {
			return di.File < dj.File
		}
		if di.Start != dj.Start {
			return di.Start < dj.Start
		}
		if di.End != dj.End {
			return di.End < dj.End
		}
		return candidates[i].order < candidates[j].order
	})
}

func applyCandidates(fs *source.FileSet, selected []candidate, result *ApplyResult) ([]FileChange, error) {
	applied := make(map[source.FileID][]diag.FixEdit)
	counts := make(map[source.FileID]int)

	for _, cand := range selected {
		path := pathOf(fs, cand.diag.Primary.File)
		reason := ""
		staged := make(map[source.FileID][]diag.FixEdit)
		for _, edit := range cand.fix.Edits {
			file := fs.Get(edit.Span.File)
			switch {
			case edit.Span.IsDetached() || file == nil:
				reason = "edit has no location"
			case file.Flags&source.FileVirtual != 0:
				reason = "target file is virtual"
			case int(edit.Span.End) > len(file.Content) || edit.Span.End < edit.Span.Start:
				reason = "edit span out of range"
			case conflicts(applied[edit.Span.File], edit) || conflicts(staged[edit.Span.File], edit):
				reason = "conflicts with previously applied edits"
			}
			if reason != "" {
				break
			}
			staged[edit.Span.File] = append(staged[edit.Span.File], edit)
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedFix{Title: cand.fix.Title, Path: path, Reason: reason})
			continue
		}
		total := 0
		for id, edits := range staged {
			applied[id] = append(applied[id], edits...)
			counts[id] += len(edits)
			total += len(edits)
		}
		result.Applied = append(result.Applied, AppliedFix{
			Title:     cand.fix.Title,
			Code:      cand.diag.Code,
			Message:   cand.diag.Message,
			Path:      path,
			EditCount: total,
		})
	}

	changes := make([]FileChange, 0, len(applied))
	for id, edits := range applied {
		file := fs.Get(id)
		changes = append(changes, FileChange{
			Path:      file.Path,
			EditCount: counts[id],
			Content:   rewrite(file.Content, edits),
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// rewrite applies non-overlapping edits from the end of the buffer so that
// earlier offsets stay valid.
func rewrite(content []byte, edits []diag.FixEdit) []byte {
	sorted := append([]diag.FixEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start == sorted[j].Span.Start {
			return sorted[i].Span.End > sorted[j].Span.End
		}
		return sorted[i].Span.Start > sorted[j].Span.Start
	})
	out := append([]byte(nil), content...)
	for _, e := range sorted {
		suffix := append([]byte(nil), out[e.Span.End:]...)
		out = append(append(out[:e.Span.Start], e.NewText...), suffix...)
	}
	return out
}

func conflicts(existing []diag.FixEdit, edit diag.FixEdit) bool {
	for _, prev := range existing {
		if spansConflict(prev.Span, edit.Span) {
			return true
		}
	}
	return false
}

// spansConflict treats spans as half-open intervals. Two insertions never
// conflict; an insertion conflicts with a span that strictly contains it.
func spansConflict(a, b source.Span) bool {
	if a.Start == a.End && b.Start == b.End {
		return false
	}
	if a.Start == a.End {
		return b.Start <= a.Start && a.Start < b.End
	}
	if b.Start == b.End {
		return a.Start <= b.Start && b.Start < a.End
	}
	return a.Start < b.End && b.Start < a.End
}

func pathOf(fs *source.FileSet, id source.FileID) string {
	if f := fs.Get(id); f != nil {
		return f.Path
	}
	return ""
}

func writeFile(path string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
