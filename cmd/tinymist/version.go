package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"tinymist/internal/render"
	"tinymist/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("full", false, "include commit, build date, Go runtime and export formats")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

// buildInfo is what `version` reports; the optional fields are filled by
// --full only.
type buildInfo struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	Commit    string   `json:"commit,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
	Go        string   `json:"go,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	Formats   []string `json:"export_formats,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return err
	}
	outFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	info := collectBuildInfo(full)
	switch strings.ToLower(outFormat) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "pretty":
		printBuildInfo(cmd.OutOrStdout(), info)
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", outFormat)
}

func collectBuildInfo(full bool) buildInfo {
	info := buildInfo{Tool: "tinymist", Version: strings.TrimSpace(version.Version)}
	if info.Version == "" {
		info.Version = "dev"
	}
	if !full {
		return info
	}
	info.Commit = orUnknown(version.Commit())
	info.BuildDate = orUnknown(strings.TrimSpace(version.BuildDate))
	info.Go = runtime.Version()
	info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	info.Formats = slices.Sorted(maps.Keys(render.Renderers("")))
	return info
}

func printBuildInfo(out io.Writer, info buildInfo) {
	fmt.Fprintf(out, "tinymist %s\n", version.Colored(info.Version))
	if info.Commit == "" {
		return
	}
	fmt.Fprintf(out, "commit:   %s\n", info.Commit)
	fmt.Fprintf(out, "built:    %s\n", info.BuildDate)
	fmt.Fprintf(out, "go:       %s (%s)\n", info.Go, info.Platform)
	fmt.Fprintf(out, "exports:  %s\n", strings.Join(info.Formats, ", "))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
