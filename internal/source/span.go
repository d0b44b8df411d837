package source

import (
	"fmt"
)

type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

// Detached returns a span that points nowhere.
func Detached() Span {
	return Span{File: NoFile}
}

// IsDetached reports whether the span has no location.
func (s Span) IsDetached() bool {
	return s.File == NoFile
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	if s.IsDetached() {
		return "detached"
	}
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover returns the smallest span containing both spans of the same file.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Sub narrows the span to [from, to) relative to its start, clamped to its length.
func (s Span) Sub(from, to uint32) Span {
	n := s.Len()
	if from > n {
		from = n
	}
	if to > n {
		to = n
	}
	if to < from {
		to = from
	}
	return Span{File: s.File, Start: s.Start + from, End: s.Start + to}
}

// ShiftRight moves the span forward by n bytes.
func (s Span) ShiftRight(n uint32) Span {
	return Span{
		File:  s.File,
		Start: s.Start + n,
		End:   s.End + n,
	}
}
