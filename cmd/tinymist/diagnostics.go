package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"tinymist/internal/diag"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	pathColor    = color.New(color.Bold)
	fixColor     = color.New(color.FgGreen)
)

// printLocated writes one line per diagnostic, with 1-based positions.
func printLocated(w io.Writer, list []diag.Located) {
	for _, d := range list {
		sev := infoColor
		switch d.Severity {
		case diag.SevError:
			sev = errorColor
		case diag.SevWarning:
			sev = warningColor
		}
		fmt.Fprintf(w, "%s %s %s\n",
			pathColor.Sprintf("%s:%d:%d:", d.Path, d.Range.Start.Line+1, d.Range.Start.Character+1),
			sev.Sprintf("%s[%s]:", strings.ToLower(d.Severity.String()), d.Code.ID()),
			d.Message)
		if len(d.Replacements) > 0 {
			quoted := make([]string, len(d.Replacements))
			for i, r := range d.Replacements {
				quoted[i] = fmt.Sprintf("%q", r)
			}
			fmt.Fprintf(w, "    %s %s\n", fixColor.Sprint("help: replace with"), strings.Join(quoted, ", "))
		}
	}
}

// flatten returns the diagnostics of view whose source is src, ordered by
// path and position.
func flatten(view map[string][]diag.Located, src string) []diag.Located {
	var out []diag.Located
	for _, list := range view {
		for _, d := range list {
			if src == "" || d.Source == src {
				out = append(out, d)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Range.Start.Line != b.Range.Start.Line {
			return a.Range.Start.Line < b.Range.Start.Line
		}
		return a.Range.Start.Character < b.Range.Start.Character
	})
	return out
}

func countErrors(list []diag.Located) int {
	n := 0
	for _, d := range list {
		if d.Severity == diag.SevError {
			n++
		}
	}
	return n
}
