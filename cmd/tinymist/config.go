package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tinymist/internal/config"
)

// loadConfig reads --config, or the nearest tinymist.toml from the working
// directory, or falls back to the defaults rooted at the working directory.
// found reports whether a file was read.
func loadConfig(cmd *cobra.Command) (cfg config.Config, found bool, err error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, false, err
	}
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, false, fmt.Errorf("load %s: %w", path, err)
		}
		return cfg, true, nil
	}
	cfg, path, err = config.Discover(".")
	if err != nil {
		return config.Config{}, false, err
	}
	return cfg, path != "", nil
}
