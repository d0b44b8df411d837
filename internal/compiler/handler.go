package compiler

import (
	"log/slog"
	"sync"

	"tinymist/internal/diag"
	"tinymist/internal/feed"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
)

// Handler publishes compiled documents and keeps the merged diagnostics of
// a unit. PushDiagnostics may be called from any goroutine.
type Handler struct {
	unit  string
	docTx *feed.WatchSender[*snapshot.VersionedDocument]
	reqs  *feed.Broadcast[render.Request]
	sink  DiagnosticsSink
	log   *slog.Logger

	mu       sync.Mutex
	detached bool
	main     string
	merger   *diag.Merger
	view     map[string][]diag.Located
}

// NewHandler creates a handler writing to the given channels. sink may be
// nil.
func NewHandler(
	unit string,
	docTx *feed.WatchSender[*snapshot.VersionedDocument],
	reqs *feed.Broadcast[render.Request],
	sink DiagnosticsSink,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		unit:   unit,
		docTx:  docTx,
		reqs:   reqs,
		sink:   sink,
		log:    log,
		merger: diag.NewMerger(),
		view:   map[string][]diag.Located{},
	}
}

// Publish updates the document feed and then announces the new version.
func (h *Handler) Publish(vdoc *snapshot.VersionedDocument) {
	h.docTx.Send(vdoc)
	n := h.reqs.Send(render.Rendered{Version: vdoc.Version})
	h.log.Debug("document published", "version", vdoc.Version, "subscribers", n)
}

// Broadcast sends a request to the actors of the unit.
func (h *Handler) Broadcast(req render.Request) {
	h.reqs.Send(req)
}

// SetEntry records whether the unit is detached. Detaching clears every
// group; switching to another main file clears the grammar group.
func (h *Handler) SetEntry(entry snapshot.EntryState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.main
	h.main = entry.MainPath()
	h.detached = entry.IsInactive()
	if h.detached {
		h.merger.Clear()
		h.publishLocked(map[string][]diag.Located{})
		return
	}
	if prev != "" && prev != h.main {
		h.merger.Set(GroupGrammar, nil, false)
		h.publishLocked(h.merger.View())
	}
}

// PushDiagnostics replaces the contribution of group, or clears it when
// present is false. While detached any push clears all groups.
func (h *Handler) PushDiagnostics(group string, diags []diag.Located, present bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detached {
		h.merger.Clear()
		h.publishLocked(map[string][]diag.Located{})
		return
	}
	h.merger.Set(group, diags, present)
	h.publishLocked(h.merger.View())
}

func (h *Handler) publishLocked(view map[string][]diag.Located) {
	h.view = view
	if h.sink != nil {
		h.sink.PublishDiagnostics(h.unit, view)
	}
}

// View returns the last published view.
func (h *Handler) View() map[string][]diag.Located {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]diag.Located, len(h.view))
	for k, v := range h.view {
		out[k] = append([]diag.Located(nil), v...)
	}
	return out
}

// Close ends the document feed and the broadcast so every actor stops.
func (h *Handler) Close() {
	h.docTx.Close()
	h.reqs.Close()
}

// Groups returns the groups currently contributing diagnostics.
func (h *Handler) Groups() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.merger.Groups()
}
