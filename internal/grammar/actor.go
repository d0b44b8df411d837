package grammar

import (
	"context"
	"errors"
	"log/slog"

	"tinymist/internal/feed"
	"tinymist/internal/markup"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/trace"
)

// Actor checks the latest document on every render request and sends the
// result to the orchestrator.
type Actor struct {
	reqs  *feed.Subscription[render.Request]
	doc   *feed.WatchReceiver[*snapshot.VersionedDocument]
	out   *feed.Queue[VersionedSuggestions]
	check func(*markup.Document) ([]Suggestion, error)
	log   *slog.Logger

	lastChecked uint64
	checked     bool
}

// NewActor creates an actor. reqs must already be subscribed.
func NewActor(
	reqs *feed.Subscription[render.Request],
	doc *feed.WatchReceiver[*snapshot.VersionedDocument],
	out *feed.Queue[VersionedSuggestions],
	log *slog.Logger,
) *Actor {
	if log == nil {
		log = slog.Default()
	}
	return &Actor{
		reqs:  reqs,
		doc:   doc,
		out:   out,
		check: CheckDocument,
		log:   log.With("actor", "grammar"),
	}
}

// WithChecker replaces the checking function. Used by tests.
func (a *Actor) WithChecker(fn func(*markup.Document) ([]Suggestion, error)) *Actor {
	a.check = fn
	return a
}

// Run loops until the broadcast closes or the consumer of the suggestion
// queue is gone. Cancelling ctx does not stop the actor.
func (a *Actor) Run(ctx context.Context) {
	recvCtx := context.WithoutCancel(ctx)
	defer a.out.Close()
	for {
		req, err := a.reqs.Recv(recvCtx)
		switch {
		case errors.Is(err, feed.ErrClosed):
			a.log.Info("channel closed, grammar actor stopped")
			return
		case feed.IsLagged(err):
			a.log.Info("render channel lagged", "error", err)
			continue
		case err != nil:
			a.log.Error("render channel failed", "error", err)
			return
		}

		switch req.(type) {
		case render.ChangeConfig, render.ChangeExportPath:
			continue
		}

		vdoc := a.doc.Borrow()
		if vdoc == nil || vdoc.Document == nil {
			continue
		}
		if a.checked && vdoc.Version == a.lastChecked {
			continue
		}

		_, span := trace.Start(ctx, trace.ScopeActor, "grammar:check")
		result := a.run(vdoc)
		span.End("")
		a.checked, a.lastChecked = true, vdoc.Version

		if err := a.out.Send(recvCtx, result); err != nil {
			if errors.Is(err, feed.ErrReceiverGone) || errors.Is(err, feed.ErrClosed) {
				a.log.Info("suggestion receiver gone, grammar actor stopped")
				return
			}
			a.log.Error("failed to send suggestions", "error", err)
			return
		}
	}
}

func (a *Actor) run(vdoc *snapshot.VersionedDocument) VersionedSuggestions {
	suggestions, err := a.check(vdoc.Document)
	if err != nil {
		a.log.Warn("grammar check failed", "version", vdoc.Version, "error", err)
		return VersionedSuggestions{Version: vdoc.Version}
	}
	return VersionedSuggestions{Version: vdoc.Version, Suggestions: suggestions, Checked: true}
}
