package lsp

import (
	"os"
	"path/filepath"
	"strings"

	"tinymist/internal/config"
)

type rootMode uint8

const (
	modeWorkspace rootMode = iota
	modeProjectRoot
	modeFileDir
)

// detectRoot picks the compile root for file when none is configured: the
// workspace folder containing it, the directory of the nearest
// tinymist.toml, or the directory of the file itself.
func detectRoot(workspaceRoot, file string) (string, rootMode) {
	if workspaceRoot != "" && within(workspaceRoot, file) {
		return workspaceRoot, modeWorkspace
	}
	if dir := resolveStartDir(file); dir != "" {
		if found, ok, err := config.Find(dir); err == nil && ok {
			return filepath.Dir(found), modeProjectRoot
		}
		return dir, modeFileDir
	}
	return workspaceRoot, modeWorkspace
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveStartDir(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
