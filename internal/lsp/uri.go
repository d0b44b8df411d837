package lsp

import (
	"net/url"
	"path/filepath"
	"strings"
)

func uriToPath(uri string) string {
	if uri == "" {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && parsed.Scheme != "file" {
		return ""
	}
	path := parsed.Path
	if parsed.Scheme == "" {
		path = uri
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	path = filepath.FromSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func pathToURI(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// canonicalURI round-trips a file URI through its path so that the same
// file is always keyed the same way. Non-file URIs are rejected.
func canonicalURI(uri string) string {
	path := uriToPath(uri)
	if path == "" {
		return ""
	}
	return pathToURI(path)
}

// isMarkupFile reports whether path can be an entry file.
func isMarkupFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".typ")
}
