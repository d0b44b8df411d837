package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tinymist/internal/diag"
	"tinymist/internal/fix"
	"tinymist/internal/fonts"
	"tinymist/internal/grammar"
	"tinymist/internal/markup"
	"tinymist/internal/snapshot"
	"tinymist/internal/source"
	"tinymist/internal/world"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file>",
	Short: "Report grammar suggestions for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("format", "text", "output format (text|json)")
	checkCmd.Flags().Bool("fix", false, "apply the first replacement of every suggestion")
	checkCmd.Flags().Bool("fix-once", false, "apply only the first suggestion in source order")
	checkCmd.Flags().Bool("dry-run", false, "with --fix, report the fixes without writing files")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	outputFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("check: unsupported output format %q", outputFormat)
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	root := cfg.Root
	if root == "" {
		root = filepath.Dir(path)
	}

	w, err := world.Builder{}.Build(snapshot.ActiveEntry(root, path), fonts.NewBook(nil), cfg.Inputs)
	if err != nil {
		return err
	}
	var mc markup.Compiler
	doc, diags, err := mc.Compile(cmd.Context(), w)
	if err != nil {
		return err
	}
	// позиции в символах, как их видит человек
	conv := diag.Converter{Files: doc.Files, Encoding: source.EncodingUTF32, Source: "tinymist", Fallback: path}
	if diag.HasErrors(diags) {
		located, err := conv.Convert(diags)
		if err != nil {
			return err
		}
		printLocated(cmd.ErrOrStderr(), located)
		return fmt.Errorf("check %s: document does not compile", args[0])
	}

	suggestions, err := grammar.CheckDocument(doc)
	if err != nil {
		return err
	}
	grammarDiags := grammar.DiagsFromSuggestions(suggestions)
	if mode, ok, err := fixMode(cmd); err != nil {
		return err
	} else if ok {
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return err
		}
		return runFix(cmd, doc, grammarDiags, fix.ApplyOptions{Mode: mode, DryRun: dryRun})
	}

	conv.Source = "grammar"
	located, err := conv.Convert(grammarDiags)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(checkPayload(located)); err != nil {
			return err
		}
	} else {
		printLocated(cmd.OutOrStdout(), located)
	}
	if len(located) > 0 {
		return fmt.Errorf("check %s: %d suggestion(s)", args[0], len(located))
	}
	return nil
}

type checkResult struct {
	Path         string   `json:"path"`
	Line         int      `json:"line"`
	Column       int      `json:"column"`
	EndLine      int      `json:"end_line"`
	EndColumn    int      `json:"end_column"`
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Replacements []string `json:"replacements,omitempty"`
}

func checkPayload(list []diag.Located) []checkResult {
	out := make([]checkResult, 0, len(list))
	for _, d := range list {
		out = append(out, checkResult{
			Path:         d.Path,
			Line:         d.Range.Start.Line + 1,
			Column:       d.Range.Start.Character + 1,
			EndLine:      d.Range.End.Line + 1,
			EndColumn:    d.Range.End.Character + 1,
			Code:         d.Code.ID(),
			Message:      d.Message,
			Replacements: d.Replacements,
		})
	}
	return out
}

func fixMode(cmd *cobra.Command) (fix.ApplyMode, bool, error) {
	all, err := cmd.Flags().GetBool("fix")
	if err != nil {
		return 0, false, err
	}
	once, err := cmd.Flags().GetBool("fix-once")
	if err != nil {
		return 0, false, err
	}
	switch {
	case all && once:
		return 0, false, errors.New("check: --fix and --fix-once are mutually exclusive")
	case once:
		return fix.ApplyModeOnce, true, nil
	case all:
		return fix.ApplyModeAll, true, nil
	}
	return 0, false, nil
}

func runFix(cmd *cobra.Command, doc *markup.Document, diags []diag.Diagnostic, opts fix.ApplyOptions) error {
	res, err := fix.Apply(doc.Files, diags, opts)
	if errors.Is(err, fix.ErrNoFixes) {
		fmt.Fprintln(cmd.OutOrStdout(), "no fixes to apply")
		err = nil
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, a := range res.Applied {
		fmt.Fprintf(out, "%s: %s: %s\n", a.Path, a.Code.ID(), a.Title)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "%s: skipped %s (%s)\n", s.Path, s.Title, s.Reason)
	}
	verb := "fixed"
	if opts.DryRun {
		verb = "would fix"
	}
	for _, ch := range res.FileChanges {
		fmt.Fprintf(out, "%s %d edit(s) in %s\n", verb, ch.EditCount, ch.Path)
	}
	return nil
}
