// Package diag defines the diagnostic model shared by the markup compiler,
// the prose checker and the language server.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity: Info, Warning or Error (severity.go).
//   - Code: compact numeric identifier with a stable string form (codes.go).
//   - Message: short, actionable text.
//   - Primary: the source.Span pointing at the issue, possibly detached.
//   - Notes: optional secondary spans.
//   - Fixes: replacement edits. The prose checker emits one fix per
//     suggested replacement.
//
// Diagnostics reference files by FileID and are only meaningful together with
// the source.FileSet of the compilation that produced them. Converter turns
// them into Located values (path + positions in the negotiated encoding) which
// outlive the FileSet and can be published to clients.
//
// # Merging
//
// Several producers (the compiler and the grammar checker) contribute
// diagnostics for the same files. Merger keeps one contribution per group and
// builds the combined view; pushing a group replaces only that group.
package diag
