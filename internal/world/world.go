// Package world is the compilation environment of one unit: entry
// selection, in-memory file overlay, inputs and fonts.
package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"tinymist/internal/fonts"
	"tinymist/internal/snapshot"
)

// ErrInvalidRoot is returned when an active entry has no absolute root.
var ErrInvalidRoot = errors.New("world: root must be an absolute path")

// World implements markup.Source. It is owned by a single goroutine.
type World struct {
	Entry  snapshot.EntryState
	Inputs map[string]string
	Fonts  *fonts.Book

	overlay map[string]string
	// readFile is the disk fallback; tests replace it.
	readFile func(string) ([]byte, error)
}

// Builder constructs worlds.
type Builder struct {
	// ReadFile overrides disk access; nil means os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

// Build validates the options and returns a world with an empty overlay.
func (b Builder) Build(entry snapshot.EntryState, book *fonts.Book, inputs map[string]string) (*World, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	read := b.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	cp := make(map[string]string, len(inputs))
	for k, v := range inputs {
		cp[k] = v
	}
	return &World{
		Entry:    entry,
		Inputs:   cp,
		Fonts:    book,
		overlay:  make(map[string]string),
		readFile: read,
	}, nil
}

func validateEntry(entry snapshot.EntryState) error {
	if entry.IsInactive() {
		return nil
	}
	if !filepath.IsAbs(entry.Root) && !filepath.IsAbs(entry.Main) {
		return fmt.Errorf("%w: %q", ErrInvalidRoot, entry.Root)
	}
	return nil
}

// MainPath returns the absolute entry path, "" when inactive.
func (w *World) MainPath() string {
	return w.Entry.MainPath()
}

// SetEntry re-targets the world.
func (w *World) SetEntry(entry snapshot.EntryState) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	w.Entry = entry
	return nil
}

// ApplyChanges applies the edits in order. A removal drops the in-memory
// copy so reads fall back to disk.
func (w *World) ApplyChanges(cs snapshot.MemoryChangeSet) {
	for _, ch := range cs.Changes {
		key := normalize(ch.Path)
		if ch.Removed {
			delete(w.overlay, key)
			continue
		}
		w.overlay[key] = ch.Content
	}
}

// ReadFile returns the overlay content of path, or the disk content.
func (w *World) ReadFile(path string) ([]byte, error) {
	if content, ok := w.overlay[normalize(path)]; ok {
		return []byte(content), nil
	}
	// #nosec G304 -- path comes from the entry or an #include
	return w.readFile(path)
}

// Input returns a named input value.
func (w *World) Input(key string) (string, bool) {
	v, ok := w.Inputs[key]
	return v, ok
}

// Overlay returns the paths held in memory, sorted.
func (w *World) Overlay() []string {
	out := make([]string, 0, len(w.overlay))
	for p := range w.overlay {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// InMemory returns the overlay content of path.
func (w *World) InMemory(path string) (string, bool) {
	v, ok := w.overlay[normalize(path)]
	return v, ok
}

func normalize(p string) string {
	return filepath.Clean(p)
}
