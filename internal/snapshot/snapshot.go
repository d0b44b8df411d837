// Package snapshot holds the values passed between the compilation actors:
// published documents, entry selection and in-memory edits.
package snapshot

import (
	"path/filepath"

	"tinymist/internal/markup"
)

// VersionedDocument is a compiled document tagged with the version of the
// compilation that produced it. It is never mutated after publication.
type VersionedDocument struct {
	Version  uint64
	Document *markup.Document
}

// EntryState selects what a compilation unit compiles. A state without a
// main file is inactive: the unit keeps running but compiles nothing.
type EntryState struct {
	Root string
	Main string // relative to Root, or absolute
}

// ActiveEntry returns an entry compiling main inside root.
func ActiveEntry(root, main string) EntryState {
	return EntryState{Root: root, Main: main}
}

// DetachedEntry returns an inactive entry for root.
func DetachedEntry(root string) EntryState {
	return EntryState{Root: root}
}

// IsInactive reports whether no main file is selected.
func (e EntryState) IsInactive() bool {
	return e.Main == ""
}

// MainPath returns the absolute, cleaned main path, or "" when inactive.
func (e EntryState) MainPath() string {
	if e.IsInactive() {
		return ""
	}
	if filepath.IsAbs(e.Main) || e.Root == "" {
		return filepath.Clean(e.Main)
	}
	return filepath.Join(e.Root, e.Main)
}

// Select returns an entry for main keeping the root. An empty main detaches.
func (e EntryState) Select(main string) EntryState {
	return EntryState{Root: e.Root, Main: main}
}

// FileChange is one edit: new content for Path, or its removal from memory.
type FileChange struct {
	Path    string
	Content string
	Removed bool
}

// MemoryChangeSet is an ordered batch of in-memory file edits.
type MemoryChangeSet struct {
	Changes []FileChange
}

// Insert appends an upsert of path.
func (m MemoryChangeSet) Insert(path, content string) MemoryChangeSet {
	return m.with(FileChange{Path: path, Content: content})
}

// Remove appends a removal of path.
func (m MemoryChangeSet) Remove(path string) MemoryChangeSet {
	return m.with(FileChange{Path: path, Removed: true})
}

// with never writes into the receiver's backing array: sets derived from
// the same base stay independent.
func (m MemoryChangeSet) with(c FileChange) MemoryChangeSet {
	out := make([]FileChange, len(m.Changes), len(m.Changes)+1)
	copy(out, m.Changes)
	return MemoryChangeSet{Changes: append(out, c)}
}

// IsEmpty reports whether the set has no changes.
func (m MemoryChangeSet) IsEmpty() bool {
	return len(m.Changes) == 0
}

// Merge appends the changes of other after those of m.
func (m MemoryChangeSet) Merge(other MemoryChangeSet) MemoryChangeSet {
	out := MemoryChangeSet{Changes: make([]FileChange, 0, len(m.Changes)+len(other.Changes))}
	out.Changes = append(out.Changes, m.Changes...)
	out.Changes = append(out.Changes, other.Changes...)
	return out
}
