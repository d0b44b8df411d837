package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"tinymist/internal/diag"
	"tinymist/internal/fix"
	"tinymist/internal/format"
	"tinymist/internal/source"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectMarkupFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.typ"), "a")
	writeFile(t, filepath.Join(dir, "sub", "b.TYP"), "b")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, ".cache", "c.typ"), "hidden")
	single := filepath.Join(t.TempDir(), "single.md")
	writeFile(t, single, "explicit files are kept")

	files, err := collectMarkupFiles([]string{dir, single})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.typ"),
		filepath.Join(dir, "sub", "b.TYP"),
		single,
	}, files)

	_, err = collectMarkupFiles([]string{filepath.Join(dir, "missing.typ")})
	require.Error(t, err)
}

func TestFormatPaths(t *testing.T) {
	dir := t.TempDir()
	messy := filepath.Join(dir, "messy.typ")
	clean := filepath.Join(dir, "clean.typ")
	writeFile(t, messy, "=   Title\n")
	writeFile(t, clean, "= Title\n")

	results := formatPaths([]string{messy, clean}, format.Options{Width: 80}, true)
	require.Len(t, results, 2)
	require.True(t, results[0].Changed)
	require.False(t, results[1].Changed)
	require.Equal(t, "= Title\n", string(results[0].Formatted))

	// dry run leaves the file alone
	data, err := os.ReadFile(messy)
	require.NoError(t, err)
	require.Equal(t, "=   Title\n", string(data))

	results = formatPaths([]string{messy, filepath.Join(dir, "gone.typ")}, format.Options{Width: 80}, false)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	data, err = os.ReadFile(messy)
	require.NoError(t, err)
	require.Equal(t, "= Title\n", string(data))
}

func TestFlattenAndPrint(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	at := func(line, char int) diag.Range {
		return diag.Range{Start: source.Position{Line: line, Character: char}, End: source.Position{Line: line, Character: char + 3}}
	}
	view := map[string][]diag.Located{
		"/w/b.typ": {{Path: "/w/b.typ", Range: at(0, 0), Severity: diag.SevError, Code: diag.SynUnclosedDelimiter, Source: "tinymist", Message: "unclosed"}},
		"/w/a.typ": {
			{Path: "/w/a.typ", Range: at(2, 1), Severity: diag.SevWarning, Code: diag.GrmSuggestion, Source: "grammar", Message: "spelling", Replacements: []string{"The"}},
			{Path: "/w/a.typ", Range: at(1, 4), Severity: diag.SevError, Code: diag.SynUnknownFunction, Source: "tinymist", Message: "unknown"},
		},
	}

	all := flatten(view, "")
	require.Len(t, all, 3)
	require.Equal(t, "unknown", all[0].Message)
	require.Equal(t, "spelling", all[1].Message)
	require.Equal(t, "unclosed", all[2].Message)

	compileOnly := flatten(view, "tinymist")
	require.Len(t, compileOnly, 2)
	require.Equal(t, 2, countErrors(compileOnly))

	var buf bytes.Buffer
	printLocated(&buf, all[1:2])
	require.Equal(t, "/w/a.typ:3:2: warning[GRM6001]: spelling\n    help: replace with \"The\"\n", buf.String())
}

func TestCheckPayload(t *testing.T) {
	list := []diag.Located{{
		Path:     "/w/a.typ",
		Range:    diag.Range{Start: source.Position{Line: 1}, End: source.Position{Line: 1, Character: 3}},
		Severity: diag.SevWarning,
		Code:     diag.GrmSuggestion,
		Message:  "Possible spelling mistake found.",
	}}
	out := checkPayload(list)
	require.Equal(t, checkResult{
		Path: "/w/a.typ", Line: 2, Column: 1, EndLine: 2, EndColumn: 4,
		Code: "GRM6001", Message: "Possible spelling mistake found.",
	}, out[0])
}

func TestCollectBuildInfo(t *testing.T) {
	short := collectBuildInfo(false)
	require.Equal(t, "tinymist", short.Tool)
	require.NotEmpty(t, short.Version)
	require.Empty(t, short.Commit)

	full := collectBuildInfo(true)
	require.NotEmpty(t, full.Commit)
	require.Equal(t, []string{"html", "txt"}, full.Formats)

	color.NoColor = true
	var buf bytes.Buffer
	printBuildInfo(&buf, full)
	require.Contains(t, buf.String(), "exports:  html, txt\n")
}

func TestFixModeFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("fix", false, "")
	cmd.Flags().Bool("fix-once", false, "")

	_, ok, err := fixMode(cmd)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cmd.Flags().Set("fix-once", "true"))
	mode, ok, err := fixMode(cmd)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, fix.ApplyModeOnce, mode)

	require.NoError(t, cmd.Flags().Set("fix", "true"))
	_, _, err = fixMode(cmd)
	require.Error(t, err)
}
