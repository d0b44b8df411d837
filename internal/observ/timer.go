// Package observ records wall-clock phases of a single command run.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase records the duration and metadata of one step.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks the phases of a run. It is safe for concurrent use.
type Timer struct {
	mu     sync.Mutex
	now    func() time.Time
	phases []Phase
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{now: time.Now, phases: make([]Phase, 0, 4)} }

// Begin starts a new phase and returns a function that ends it with an
// optional note. Calling the function twice keeps the first result.
func (t *Timer) Begin(name string) func(note string) {
	if t == nil {
		return func(string) {}
	}
	t.mu.Lock()
	t.phases = append(t.phases, Phase{Name: name, Start: t.now(), Dur: -1})
	idx := len(t.phases) - 1
	t.mu.Unlock()

	return func(note string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		p := &t.phases[idx]
		if p.Dur >= 0 {
			return
		}
		p.Dur = t.now().Sub(p.Start)
		p.Note = note
	}
}

// PhaseReport is the serialisable form of a phase. Unfinished phases have
// Done false.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
	Done       bool    `json:"done"`
}

// Report aggregates the phases.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report returns the finished and unfinished phases in start order.
func (t *Timer) Report() Report {
	if t == nil {
		return Report{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	report := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	for i, p := range t.phases {
		pr := PhaseReport{Name: p.Name, Note: p.Note, Done: p.Dur >= 0}
		if pr.Done {
			total += p.Dur
			pr.DurationMS = millis(p.Dur)
		}
		report.Phases[i] = pr
	}
	report.TotalMS = millis(total)
	return report
}

// Summary renders the report as an aligned table.
func (t *Timer) Summary() string {
	report := t.Report()
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range report.Phases {
		if !p.Done {
			fmt.Fprintf(&b, "  %-12s %10s", p.Name, "unfinished")
		} else {
			fmt.Fprintf(&b, "  %-12s %7.2f ms", p.Name, p.DurationMS)
		}
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-12s %7.2f ms\n", "total", report.TotalMS)
	return b.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
