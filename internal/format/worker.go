package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tinymist/internal/feed"
	"tinymist/internal/source"
	"tinymist/internal/trace"
)

// Mode selects whether formatting requests are served.
type Mode uint8

const (
	ModeDisable Mode = iota
	ModeEnable
)

func (m Mode) String() string {
	if m == ModeEnable {
		return "enable"
	}
	return "disable"
}

// ParseMode accepts "disable" and "enable"; the names of the upstream
// formatters are accepted as "enable".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disable":
		return ModeDisable, nil
	case "enable", "typstyle", "typstfmt":
		return ModeEnable, nil
	default:
		return ModeDisable, fmt.Errorf("unknown formatter mode %q", s)
	}
}

// Config is the formatter configuration of a session.
type Config struct {
	Mode  Mode
	Width int
}

// DefaultConfig returns a disabled formatter with the default width.
func DefaultConfig() Config {
	return Config{Mode: ModeDisable, Width: DefaultWidth}
}

// Job is a message to the format worker.
type Job interface {
	isJob()
}

// Request asks for the edits formatting Source. Respond is called exactly
// once, on the worker goroutine.
type Request struct {
	URI      string
	Source   string
	Width    int
	Encoding source.Encoding
	Respond  func([]TextEdit, error)
}

// ChangeConfig replaces the worker configuration.
type ChangeConfig struct {
	Config Config
}

func (Request) isJob()      {}
func (ChangeConfig) isJob() {}

// Worker serves formatting jobs one at a time.
type Worker struct {
	cfg Config
	log *slog.Logger
}

// NewWorker creates a worker with the given configuration.
func NewWorker(cfg Config, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{cfg: cfg, log: log.With("actor", "format")}
}

// Run serves jobs until the mailbox is closed and drained or ctx is done.
func (w *Worker) Run(ctx context.Context, jobs *feed.Mailbox[Job]) {
	for {
		job, err := jobs.Recv(ctx)
		if err != nil {
			if !errors.Is(err, feed.ErrClosed) {
				w.log.Info("format worker cancelled", "error", err)
			}
			return
		}
		_, span := trace.Start(ctx, trace.ScopeActor, "format")
		w.Handle(job)
		span.End("")
	}
}

// Handle serves a single job.
func (w *Worker) Handle(job Job) {
	switch j := job.(type) {
	case ChangeConfig:
		w.cfg = j.Config
		w.log.Info("formatter config changed", "mode", j.Config.Mode.String(), "width", j.Config.Width)
	case Request:
		edits, err := w.format(j)
		if err != nil {
			w.log.Error("formatting failed", "uri", j.URI, "error", err)
		}
		if j.Respond != nil {
			j.Respond(edits, err)
		}
	}
}

func (w *Worker) format(req Request) (edits []TextEdit, err error) {
	if w.cfg.Mode == ModeDisable {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			edits, err = nil, fmt.Errorf("formatter panicked: %v", r)
		}
	}()
	width := req.Width
	if width <= 0 {
		width = w.cfg.Width
	}
	formatted := Source(req.Source, Options{Width: width})
	return Edits(req.Source, formatted, req.Encoding), nil
}
