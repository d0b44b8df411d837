package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tinymist/internal/prof"
)

// profiler is stopped by main after the command returns, also on failure.
var profiler *prof.Profiler

// setupProfiling reads the persistent profiling flags and starts the
// requested profilers.
func setupProfiling(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Mem, err = flags.GetString("mem-profile"); err != nil {
		return fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !opts.Enabled() {
		return nil
	}
	p, err := prof.Start(opts)
	if err != nil {
		return err
	}
	profiler = p
	return nil
}
