package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope indicates the granularity of the event. Lower values are coarser.
type Scope uint8

const (
	ScopeSession Scope = iota + 1 // process-wide operations
	ScopeUnit                     // lifetime of one compile unit
	ScopeCompile                  // a single compilation
	ScopeActor                    // one iteration of an actor loop
)

var scopeNames = [...]string{
	ScopeSession: "session",
	ScopeUnit:    "unit",
	ScopeCompile: "compile",
	ScopeActor:   "actor",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is a single trace record. Seq is assigned by the tracer that
// stores the event.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Unit     string // compile unit the event belongs to, "" for the session
	Name     string
	Detail   string
	Extra    map[string]string
}
