package fix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tinymist/internal/diag"
	"tinymist/internal/source"
)

func suggestion(id source.FileID, start, end uint32, repl string) diag.Diagnostic {
	span := source.Span{File: id, Start: start, End: end}
	return diag.NewWarning(diag.GrmSuggestion, span, "suggestion").
		WithFix("Replace with \""+repl+"\"", diag.FixEdit{Span: span, NewText: repl})
}

func writeTemp(t *testing.T, content string) (*source.FileSet, source.FileID, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.typ")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	fs := source.NewFileSet()
	id, err := fs.Load(path)
	require.NoError(t, err)
	return fs, id, path
}

func TestApplyAllRewritesFile(t *testing.T) {
	fs, id, path := writeTemp(t, "teh cat is is here\n")
	diags := []diag.Diagnostic{
		suggestion(id, 8, 13, "is"),
		suggestion(id, 0, 3, "the"),
	}

	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeAll})
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)
	require.Empty(t, res.Skipped)
	require.Len(t, res.FileChanges, 1)
	require.Equal(t, 2, res.FileChanges[0].EditCount)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "the cat is here\n", string(got))
}

func TestApplyOnceTakesFirstInSourceOrder(t *testing.T) {
	fs, id, path := writeTemp(t, "teh cat is is here\n")
	diags := []diag.Diagnostic{
		suggestion(id, 8, 13, "is"),
		suggestion(id, 0, 3, "the"),
	}

	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeOnce})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	require.Equal(t, path, res.Applied[0].Path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "the cat is is here\n", string(got))
}

func TestApplySkipsConflicts(t *testing.T) {
	fs, id, _ := writeTemp(t, "a an apple\n")
	diags := []diag.Diagnostic{
		suggestion(id, 0, 4, "an"),
		suggestion(id, 2, 4, ""),
	}

	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeAll, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "conflicts with previously applied edits", res.Skipped[0].Reason)
	require.Equal(t, "an apple\n", string(res.FileChanges[0].Content))
}

func TestApplyDryRunLeavesFile(t *testing.T) {
	fs, id, path := writeTemp(t, "teh\n")
	res, err := Apply(fs, []diag.Diagnostic{suggestion(id, 0, 3, "the")}, ApplyOptions{Mode: ApplyModeAll, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, "the\n", string(res.FileChanges[0].Content))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "teh\n", string(got))
}

func TestApplyWithoutFixes(t *testing.T) {
	fs, id, _ := writeTemp(t, "fine\n")
	d := diag.NewWarning(diag.GrmSuggestion, source.Span{File: id, Start: 0, End: 4}, "no fix")

	_, err := Apply(fs, []diag.Diagnostic{d}, ApplyOptions{Mode: ApplyModeAll})
	require.ErrorIs(t, err, ErrNoFixes)
}

func TestApplyDetachedEditSkipped(t *testing.T) {
	fs, _, _ := writeTemp(t, "teh\n")
	d := suggestion(source.NoFile, 0, 0, "the")

	res, err := Apply(fs, []diag.Diagnostic{d}, ApplyOptions{Mode: ApplyModeAll})
	require.ErrorIs(t, err, ErrNoFixes)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "edit has no location", res.Skipped[0].Reason)
}

func TestSpansConflict(t *testing.T) {
	require.False(t, spansConflict(source.Span{Start: 3, End: 3}, source.Span{Start: 3, End: 3}))
	require.True(t, spansConflict(source.Span{Start: 2, End: 5}, source.Span{Start: 3, End: 3}))
	require.False(t, spansConflict(source.Span{Start: 2, End: 5}, source.Span{Start: 5, End: 5}))
	require.True(t, spansConflict(source.Span{Start: 0, End: 4}, source.Span{Start: 3, End: 6}))
	require.False(t, spansConflict(source.Span{Start: 0, End: 3}, source.Span{Start: 3, End: 6}))
}
