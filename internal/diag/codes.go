package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Markup syntax
	SynInfo              Code = 2000
	SynUnclosedDelimiter Code = 2001
	SynUnterminatedRaw   Code = 2002
	SynUnknownFunction   Code = 2003
	SynBadArgument       Code = 2004
	SynEmptyHeading      Code = 2005

	// File access
	IOInfo            Code = 4000
	IOFileNotFound    Code = 4001
	IOIncludeCycle    Code = 4002
	IOEntryNotFound   Code = 4003
	IOMissingInput    Code = 4004
	IOIncludeTooDeep  Code = 4005
	IOInvalidEncoding Code = 4006

	// Prose checks
	GrmInfo       Code = 6000
	GrmSuggestion Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:          "Unknown error",
	SynInfo:              "Syntax information",
	SynUnclosedDelimiter: "Unclosed delimiter",
	SynUnterminatedRaw:   "Unterminated raw block",
	SynUnknownFunction:   "Unknown function",
	SynBadArgument:       "Invalid function argument",
	SynEmptyHeading:      "Heading without text",
	IOInfo:               "File information",
	IOFileNotFound:       "File not found",
	IOIncludeCycle:       "Cyclic include",
	IOEntryNotFound:      "Entry file not found",
	IOMissingInput:       "Missing input value",
	IOIncludeTooDeep:     "Include nesting too deep",
	IOInvalidEncoding:    "File is not valid UTF-8",
	GrmInfo:              "Prose information",
	GrmSuggestion:        "Grammar suggestion",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("GRM%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
