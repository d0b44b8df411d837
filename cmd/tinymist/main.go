package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tinymist/internal/logging"
	"tinymist/internal/version"
)

var rootCmd = &cobra.Command{
	Use:               "tinymist",
	Short:             "Markup language server and toolchain",
	Long:              `tinymist compiles, checks, formats and exports markup documents and serves them to editors over LSP`,
	PersistentPreRunE: setupGlobals,
}

// main registers subcommands and persistent flags, then executes the root
// command. A failing command exits with status 1.
func main() {
	// версия для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("config", "", "path to tinymist.toml (default: searched upwards from the working directory)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text|json)")
	rootCmd.PersistentFlags().String("trace", "", "write trace events to this file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept by the ring tracer")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")

	err := rootCmd.Execute()
	if stopErr := profiler.Stop(); stopErr != nil {
		fmt.Fprintf(os.Stderr, "failed to write profiles: %v\n", stopErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// setupGlobals configures logging and colours before any subcommand runs.
func setupGlobals(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	levelStr, err := flags.GetString("log-level")
	if err != nil {
		return err
	}
	formatStr, err := flags.GetString("log-format")
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	// stdout занят протоколом LSP
	logging.Init(level, format, os.Stderr)

	mode, err := flags.GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected: auto|on|off)", mode)
	}
	return setupProfiling(cmd)
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
