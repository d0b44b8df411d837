package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // only heartbeats; errors go to the log
	LevelPhase        // session, unit and compile spans
	LevelDetail       // plus actor iterations
	LevelDebug        // everything
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag value to a Level. An empty value is off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// maxScope is the finest scope emitted at each level.
var maxScope = [...]Scope{
	LevelOff:    0,
	LevelError:  0,
	LevelPhase:  ScopeCompile,
	LevelDetail: ScopeActor,
	LevelDebug:  ^Scope(0),
}

// ShouldEmit reports whether events of scope pass this level.
func (l Level) ShouldEmit(scope Scope) bool {
	if int(l) >= len(maxScope) {
		return false
	}
	return scope != 0 && scope <= maxScope[l]
}
