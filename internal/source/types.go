package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32
	// FileFlags encodes metadata about a source file.
	FileFlags uint8
)

// NoFile marks a span that is not attached to any file.
const NoFile FileID = ^FileID(0)

const (
	// FileVirtual indicates the file came from the in-memory overlay rather than disk.
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File captures metadata and content for a single source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based, in bytes
}

// Position is a zero-based line/character pair whose character unit depends
// on the negotiated Encoding.
type Position struct {
	Line      int
	Character int
}
