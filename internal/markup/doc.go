// Package markup compiles the small markup language edited through the
// language server.
//
// Block syntax (one construct per line):
//
//	= Heading            (level = number of '=')
//	- list item
//	```lang              fenced raw block, closed by a line starting with ```
//	// comment
//	#include "other.typ"
//
// Any other non-blank line continues the current paragraph; a blank line ends
// it. Inline markup: *strong*, _emph_, `raw`, backslash escapes, trailing
// // comments and function calls #input("key") and #title("text").
//
// Compile never fails on bad input: problems are reported as diagnostics
// next to a best-effort document.
package markup
