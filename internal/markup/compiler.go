package markup

import (
	"context"

	"tinymist/internal/diag"
	"tinymist/internal/source"
)

// Source gives the compiler access to files and inputs.
type Source interface {
	// MainPath is the absolute path of the entry file.
	MainPath() string
	// ReadFile returns the current content of path, in-memory edits first.
	ReadFile(path string) ([]byte, error)
	// Input returns a named input value.
	Input(key string) (string, bool)
}

// Compiler turns a Source into a Document.
type Compiler struct {
	// MaxErrors stops recording errors after this many; 0 means no limit.
	MaxErrors uint
	// MaxDiagnostics caps the diagnostic bag; 0 uses the bag default.
	MaxDiagnostics int
}

// Compile parses the entry file and everything it includes. The returned
// document is never nil unless ctx is done; whether the compilation
// succeeded is decided by diag.HasErrors on the diagnostics.
func (c *Compiler) Compile(ctx context.Context, src Source) (*Document, []diag.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	bag := diag.NewBag(c.MaxDiagnostics)
	doc := &Document{Files: source.NewFileSet(), Main: source.NoFile}
	p := &parser{
		src:   src,
		files: doc.Files,
		doc:   doc,
		opts:  Options{MaxErrors: c.MaxErrors, Reporter: diag.BagReporter{Bag: bag}},
	}
	doc.Blocks, doc.Main = p.parseFile(src.MainPath(), source.Detached())
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	bag.Sort()
	bag.Dedup()
	return doc, bag.Items(), nil
}
