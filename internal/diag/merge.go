package diag

import (
	"sort"
)

// Merger keeps the latest contribution of every diagnostic group and
// builds the combined per-file view. It is not safe for concurrent use.
type Merger struct {
	groups map[string][]Located
}

func NewMerger() *Merger {
	return &Merger{groups: make(map[string][]Located)}
}

// Set replaces the contribution of group. present == false clears it.
// An empty but present slice is kept: the group ran and found nothing.
func (m *Merger) Set(group string, diags []Located, present bool) {
	if !present {
		delete(m.groups, group)
		return
	}
	cp := make([]Located, len(diags))
	copy(cp, diags)
	m.groups[group] = cp
}

// Clear drops every group.
func (m *Merger) Clear() {
	clear(m.groups)
}

// Groups returns the names of the groups currently contributing, sorted.
func (m *Merger) Groups() []string {
	names := make([]string, 0, len(m.groups))
	for g := range m.groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// View returns path -> diagnostics for every group, in group name order
// then by position. The result is freshly allocated.
func (m *Merger) View() map[string][]Located {
	view := make(map[string][]Located)
	for _, g := range m.Groups() {
		for _, d := range m.groups[g] {
			view[d.Path] = append(view[d.Path], d)
		}
	}
	for _, ds := range view {
		sort.SliceStable(ds, func(i, j int) bool {
			a, b := ds[i].Range.Start, ds[j].Range.Start
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Character < b.Character
		})
	}
	return view
}
