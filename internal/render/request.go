// Package render turns published documents into files on disk.
//
// The export actor listens to the render request broadcast of a compilation
// unit and reads documents from the unit's latest-document feed.
package render

import (
	"tinymist/internal/snapshot"
)

// Request is a message on a unit's render broadcast. Every subscriber gets
// every request and acts on the variants it cares about.
type Request interface {
	isRequest()
}

// Rendered announces that a new document was published with Version.
type Rendered struct {
	Version uint64
}

// Saved announces that the user saved Path.
type Saved struct {
	Path string
}

// ChangeConfig replaces the export settings.
type ChangeConfig struct {
	Config ExportConfig
}

// ChangeExportPath re-targets the export to a new entry. The output path is
// derived from the entry through the substitution pattern.
type ChangeExportPath struct {
	Entry snapshot.EntryState
}

func (Rendered) isRequest()         {}
func (Saved) isRequest()            {}
func (ChangeConfig) isRequest()     {}
func (ChangeExportPath) isRequest() {}

// Kind names a request for logs.
func Kind(r Request) string {
	switch r.(type) {
	case Rendered:
		return "rendered"
	case Saved:
		return "saved"
	case ChangeConfig:
		return "change-config"
	case ChangeExportPath:
		return "change-export-path"
	}
	return "unknown"
}
