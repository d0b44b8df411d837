package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tinymist/internal/format"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [flags] <path> [path...]",
	Short: "Format markup source files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFmt,
}

func init() {
	fmtCmd.Flags().Bool("check", false, "check if files are properly formatted")
	fmtCmd.Flags().String("format", "text", "output format (text|json)")
	fmtCmd.Flags().Bool("stdout", false, "print formatted code to stdout instead of rewriting files")
	fmtCmd.Flags().Int("width", 0, "maximum line width (default: formatter_print_width)")
}

type fmtResult struct {
	Path      string
	Changed   bool
	Formatted []byte
	Err       error
}

func runFmt(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return err
	}
	outputFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writeToStdout, err := cmd.Flags().GetBool("stdout")
	if err != nil {
		return err
	}
	width, err := cmd.Flags().GetInt("width")
	if err != nil {
		return err
	}
	if writeToStdout && check {
		return fmt.Errorf("fmt: --stdout cannot be used with --check")
	}
	if writeToStdout && outputFormat != "text" {
		return fmt.Errorf("fmt: --stdout is only supported with text output")
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	if width <= 0 {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fcfg, err := cfg.Formatter()
		if err != nil {
			return err
		}
		width = fcfg.Width
	}

	files, err := collectMarkupFiles(args)
	if err != nil {
		return err
	}
	results := formatPaths(files, format.Options{Width: width}, check || writeToStdout)

	var hasErrors bool
	var hasChanges bool

	switch outputFormat {
	case "text":
		if writeToStdout {
			renderFmtStdout(cmd, results, &hasErrors)
			if hasErrors {
				return fmt.Errorf("fmt: failed to format some files")
			}
			return nil
		}
		renderFmtText(cmd, results, check, quiet, &hasErrors, &hasChanges)
	case "json":
		if err := renderFmtJSON(cmd, results, check); err != nil {
			return err
		}
		for _, res := range results {
			hasErrors = hasErrors || res.Err != nil
			hasChanges = hasChanges || res.Changed
		}
	default:
		return fmt.Errorf("fmt: unsupported output format %q", outputFormat)
	}

	if hasErrors {
		return fmt.Errorf("fmt: failed to format some files")
	}
	if check && hasChanges {
		return fmt.Errorf("fmt: formatting changes required")
	}
	return nil
}

// collectMarkupFiles expands directories into the .typ files they contain.
func collectMarkupFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != arg && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".typ") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// formatPaths formats every file in parallel. Unless dryRun, changed files
// are rewritten in place. Results keep the order of files.
func formatPaths(files []string, opt format.Options, dryRun bool) []fmtResult {
	results := make([]fmtResult, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			results[i] = formatFile(path, opt, dryRun)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func formatFile(path string, opt format.Options, dryRun bool) fmtResult {
	res := fmtResult{Path: path}
	// #nosec G304 -- path comes from the command line
	src, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Formatted = []byte(format.Source(string(src), opt))
	res.Changed = !bytes.Equal(src, res.Formatted)
	if res.Changed && !dryRun {
		info, err := os.Stat(path)
		if err != nil {
			res.Err = err
			return res
		}
		res.Err = os.WriteFile(path, res.Formatted, info.Mode().Perm())
	}
	return res
}

func renderFmtStdout(cmd *cobra.Command, results []fmtResult, hasErrors *bool) {
	for _, res := range results {
		if res.Err != nil {
			*hasErrors = true
			fmt.Fprintf(cmd.ErrOrStderr(), "fmt: %s: %v\n", res.Path, res.Err)
			continue
		}
		_, _ = cmd.OutOrStdout().Write(res.Formatted)
	}
}

func renderFmtText(cmd *cobra.Command, results []fmtResult, check, quiet bool, hasErrors, hasChanges *bool) {
	out := cmd.OutOrStdout()
	for _, res := range results {
		if res.Err != nil {
			*hasErrors = true
			fmt.Fprintf(cmd.ErrOrStderr(), "fmt: %s: %v\n", res.Path, res.Err)
			continue
		}
		if check {
			if res.Changed {
				*hasChanges = true
				if !quiet {
					fmt.Fprintln(out, res.Path)
				}
			}
			continue
		}
		if res.Changed && !quiet {
			fmt.Fprintf(out, "reformatted %s\n", res.Path)
		}
	}
}

func renderFmtJSON(cmd *cobra.Command, results []fmtResult, check bool) error {
	type jsonResult struct {
		Path     string `json:"path"`
		Changed  bool   `json:"changed"`
		Error    string `json:"error,omitempty"`
		CheckRun bool   `json:"check"`
	}

	payload := make([]jsonResult, 0, len(results))
	for _, res := range results {
		jr := jsonResult{Path: res.Path, Changed: res.Changed, CheckRun: check}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		payload = append(payload, jr)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
