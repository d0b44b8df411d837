// Package config loads tinymist.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"tinymist/internal/format"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/source"
)

// FileName is the name of the configuration file searched for upwards from
// the working directory.
const FileName = "tinymist.toml"

// Config is the user configuration of a session.
type Config struct {
	// Root of the project; relative to the configuration file.
	Root string `toml:"root"`
	// Main pins the entry file; relative to Root.
	Main string `toml:"main"`
	// OutputPath is the export path pattern ($root, $dir, $name).
	OutputPath string `toml:"output_path"`
	// ExportPDF is the export mode: never|onSave|onType|onDocumentHasTitle.
	ExportPDF           string            `toml:"export_pdf"`
	ExportFormat        string            `toml:"export_format"`
	FormatterMode       string            `toml:"formatter_mode"`
	FormatterPrintWidth int               `toml:"formatter_print_width"`
	FontPaths           []string          `toml:"font_paths"`
	FontFamily          string            `toml:"font_family"`
	PositionEncoding    string            `toml:"position_encoding"`
	Inputs              map[string]string `toml:"inputs"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ExportPDF:           render.ExportNever.String(),
		ExportFormat:        "html",
		FormatterMode:       format.ModeDisable.String(),
		FormatterPrintWidth: format.DefaultWidth,
		PositionEncoding:    source.EncodingUTF16.String(),
		Inputs:              map[string]string{},
	}
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path on top of Default and validates the result. Unknown keys
// are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("formatter_print_width") && cfg.FormatterPrintWidth <= 0 {
		return Config{}, fmt.Errorf("%s: formatter_print_width must be positive", path)
	}

	base := filepath.Dir(path)
	if cfg.Root == "" {
		cfg.Root = base
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(base, filepath.FromSlash(cfg.Root))
	}
	for i, p := range cfg.FontPaths {
		if !filepath.IsAbs(p) {
			cfg.FontPaths[i] = filepath.Join(base, filepath.FromSlash(p))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover finds and loads the configuration for startDir. Without a file
// it returns Default rooted at startDir and an empty path.
func Discover(startDir string) (Config, string, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		cfg := Default()
		root, err := filepath.Abs(startDir)
		if err != nil {
			return Config{}, "", err
		}
		cfg.Root = root
		return cfg, "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.ExportMode(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := render.Renderers("")[c.ExportFormat]; !ok {
		errs = append(errs, fmt.Errorf("invalid export_format: %q (expected: txt|html)", c.ExportFormat))
	}
	if _, err := c.Formatter(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Encoding(); err != nil {
		errs = append(errs, err)
	}
	if c.FormatterPrintWidth < 0 {
		errs = append(errs, fmt.Errorf("formatter_print_width must be positive"))
	}
	return errors.Join(errs...)
}

// ExportMode parses ExportPDF.
func (c Config) ExportMode() (render.ExportMode, error) {
	return render.ParseExportMode(c.ExportPDF)
}

// Formatter returns the formatter configuration.
func (c Config) Formatter() (format.Config, error) {
	mode, err := format.ParseMode(c.FormatterMode)
	if err != nil {
		return format.Config{}, err
	}
	width := c.FormatterPrintWidth
	if width <= 0 {
		width = format.DefaultWidth
	}
	return format.Config{Mode: mode, Width: width}, nil
}

// Encoding parses PositionEncoding.
func (c Config) Encoding() (source.Encoding, error) {
	return source.ParseEncoding(c.PositionEncoding)
}

// Entry returns the pinned entry, detached when Main is empty.
func (c Config) Entry() snapshot.EntryState {
	if c.Main == "" {
		return snapshot.DetachedEntry(c.Root)
	}
	return snapshot.ActiveEntry(c.Root, c.Main)
}

// ExportConfig builds the export settings of a unit with the given entry.
func (c Config) ExportConfig(entry snapshot.EntryState) (render.ExportConfig, error) {
	mode, err := c.ExportMode()
	if err != nil {
		return render.ExportConfig{}, err
	}
	return render.ExportConfig{
		SubstitutePattern: c.OutputPath,
		Entry:             entry,
		Mode:              mode,
		Format:            c.ExportFormat,
	}, nil
}
