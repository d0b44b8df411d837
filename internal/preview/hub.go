// Package preview streams compiled documents to websocket clients.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tinymist/internal/feed"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
	"tinymist/internal/textexport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendQueue  = 16
)

// Message is sent to every client after a successful compilation.
type Message struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans documents of one unit out to websocket clients.
type Hub struct {
	reqs     *feed.Subscription[render.Request]
	doc      *feed.WatchReceiver[*snapshot.VersionedDocument]
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

// NewHub creates a hub. reqs must be subscribed before the unit compiles
// for the first time.
func NewHub(
	reqs *feed.Subscription[render.Request],
	doc *feed.WatchReceiver[*snapshot.VersionedDocument],
	log *slog.Logger,
) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		reqs: reqs,
		doc:  doc,
		log:  log.With("actor", "preview"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkLocalOrigin,
		},
		clients: make(map[*client]struct{}),
	}
}

// checkLocalOrigin accepts clients without an Origin header and pages
// served from the local machine.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Run forwards render notices until the broadcast closes, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	recvCtx := context.WithoutCancel(ctx)
	defer h.shutdown()
	for {
		req, err := h.reqs.Recv(recvCtx)
		switch {
		case errors.Is(err, feed.ErrClosed):
			h.log.Info("channel closed, preview stopped")
			return
		case feed.IsLagged(err):
			h.log.Info("render channel lagged", "error", err)
			continue
		case err != nil:
			h.log.Error("render channel failed", "error", err)
			return
		}
		if _, ok := req.(render.Rendered); !ok {
			continue
		}
		vdoc := h.doc.Borrow()
		if vdoc == nil || vdoc.Document == nil {
			continue
		}
		msg, err := encode(vdoc)
		if err != nil {
			h.log.Warn("failed to encode preview", "version", vdoc.Version, "error", err)
			continue
		}
		h.broadcast(msg)
	}
}

func encode(vdoc *snapshot.VersionedDocument) ([]byte, error) {
	ann, err := textexport.Annotate(vdoc.Document)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:    "render",
		Version: vdoc.Version,
		Title:   vdoc.Document.Title,
		Text:    ann.Text,
	})
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// клиент не успевает читать
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams documents to it. A new
// client first receives the latest document, if any.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "preview stopped"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("preview client connected", "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c)
		h.mu.Unlock()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("preview client closed", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
