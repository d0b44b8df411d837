// Package lsp serves the language server protocol over stdio on top of a
// session. Every open document is mirrored into the primary compile unit,
// whose merged diagnostics are published back to the client.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"tinymist/internal/compiler"
	"tinymist/internal/config"
	"tinymist/internal/fonts"
	"tinymist/internal/logging"
	"tinymist/internal/render"
	"tinymist/internal/session"
	"tinymist/internal/snapshot"
	"tinymist/internal/source"
	"tinymist/internal/trace"
	"tinymist/internal/world"
)

// PrimaryUnit is the unit compiling the focused or pinned document.
const PrimaryUnit = "primary"

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// Config is the configuration found on disk; client settings are
	// applied on top of it.
	Config    config.Config
	Compiler  compiler.Compiler
	Builder   world.Builder
	FontCache *fonts.DiskCache
	Preview   bool
	OnExport  func(unit string, e render.Exported)
	Tracer    trace.Tracer
	Log       *slog.Logger
	// Version is reported in serverInfo.
	Version string
}

// Server handles stdio JSON-RPC for the tinymist LSP.
type Server struct {
	in      *bufio.Reader
	out     *bufio.Writer
	sendMu  sync.Mutex
	mu      sync.Mutex
	sess    *session.Session
	log     *slog.Logger
	version string

	openDocs    map[string]string
	versions    map[string]int
	lastTouched string
	pinned      string
	entry       snapshot.EntryState
	published   map[string]map[string]struct{}

	workspaceRoot     string
	encoding          source.Encoding
	initialized       bool
	shutdownRequested bool
	traceLSP          bool
	baseCtx           context.Context
}

// NewServer constructs a new LSP server and its session.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	log := opts.Log
	if log == nil {
		log = logging.With("lsp")
	}
	s := &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		log:       log,
		version:   opts.Version,
		openDocs:  make(map[string]string),
		versions:  make(map[string]int),
		published: make(map[string]map[string]struct{}),
		baseCtx:   context.Background(),
	}
	s.sess = session.New(session.Options{
		Config:    opts.Config,
		Sink:      s,
		Snapshot:  s.memorySnapshot,
		Compiler:  opts.Compiler,
		Builder:   opts.Builder,
		FontCache: opts.FontCache,
		Preview:   opts.Preview,
		OnExport:  opts.OnExport,
		Tracer:    opts.Tracer,
		Log:       log,
	})
	return s
}

// Session returns the session driving the compile units.
func (s *Server) Session() *session.Session {
	return s.sess
}

// Run serves LSP requests until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	defer s.sess.Close()
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "exit":
		if s.shutdownRequested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	}
	if !s.initialized {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32002, "server not initialized")
		}
		return nil
	}
	if s.shutdownRequested {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32600, "server is shutting down")
		}
		return nil
	}
	switch msg.Method {
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/formatting":
		return s.handleFormatting(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	cfg := s.sess.Config()
	if cfg.Root == "" {
		cfg.Root = root
	}
	if len(params.InitializationOptions) > 0 {
		settings, err := decodeSettings(params.InitializationOptions)
		if err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid initializationOptions")
		}
		cfg = settings.apply(cfg, root)
		if settings.Trace != nil {
			s.traceLSP = *settings.Trace
		}
	}
	enc := negotiateEncoding(cfg.PositionEncoding, params.Capabilities.General.PositionEncodings)
	cfg.PositionEncoding = enc.String()
	if err := s.sess.UpdateConfig(cfg); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}

	s.mu.Lock()
	s.workspaceRoot = root
	s.encoding = enc
	s.pinned = cfg.Entry().MainPath()
	s.initialized = true
	s.mu.Unlock()

	if err := s.sess.RunFormatWorker(); err != nil {
		s.log.Error("format worker not started", "error", err)
	}
	result := initializeResult{
		Capabilities: serverCapabilities{
			PositionEncoding: enc.String(),
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: true,
				},
			},
			DocumentFormattingProvider: true,
			ExecuteCommandProvider: &executeCommandOptions{
				Commands: []string{commandPinMain, commandExportPDF},
			},
		},
		ServerInfo: &serverInfo{Name: "tinymist", Version: s.version},
	}
	if err := s.sendResponse(msg.ID, result); err != nil {
		return err
	}
	if _, err := s.primary(); err != nil {
		s.log.Error("primary unit not started", "error", err)
	}
	return nil
}

// negotiateEncoding picks the configured encoding when the client offers
// it, and UTF-16 otherwise.
func negotiateEncoding(preferred string, offered []string) source.Encoding {
	want, err := source.ParseEncoding(preferred)
	if err != nil {
		want = source.EncodingUTF16
	}
	for _, o := range offered {
		if enc, err := source.ParseEncoding(o); err == nil && enc == want {
			return want
		}
	}
	return source.EncodingUTF16
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.sess.Close()
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = params.TextDocument.Text
	s.versions[uri] = params.TextDocument.Version
	s.touchLocked(uri)
	s.mu.Unlock()
	s.submit(snapshot.MemoryChangeSet{}.Insert(uriToPath(uri), params.TextDocument.Text))
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	oldVersion := s.versions[uri]
	text := applyChanges(s.openDocs[uri], params.ContentChanges, s.encoding)
	s.openDocs[uri] = text
	s.versions[uri] = params.TextDocument.Version
	s.touchLocked(uri)
	trace := s.traceLSP
	s.mu.Unlock()
	if trace {
		s.logf("didChange: uri=%s version=%d->%d changes=%d", uri, oldVersion, params.TextDocument.Version, len(params.ContentChanges))
	}
	s.submit(snapshot.MemoryChangeSet{}.Insert(uriToPath(uri), text))
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	path := uriToPath(uri)
	s.mu.Lock()
	if params.Text != nil {
		s.openDocs[uri] = *params.Text
	}
	version := s.versions[uri]
	trace := s.traceLSP
	s.mu.Unlock()
	if trace {
		s.logf("didSave: uri=%s version=%d", uri, version)
	}
	client, err := s.primary()
	if err != nil {
		s.log.Error("save not forwarded", "uri", uri, "error", err)
		return nil
	}
	if params.Text != nil {
		client.SubmitChange(snapshot.MemoryChangeSet{}.Insert(path, *params.Text))
	}
	client.OnSaved(path)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.openDocs, uri)
	delete(s.versions, uri)
	if s.lastTouched == uri {
		s.lastTouched = ""
	}
	s.mu.Unlock()
	// entry не меняется, файл дальше читается с диска
	s.submit(snapshot.MemoryChangeSet{}.Remove(uriToPath(uri)))
	return nil
}

func (s *Server) touchLocked(uri string) {
	if isMarkupFile(uriToPath(uri)) {
		s.lastTouched = uri
	}
}

// submit sends cs to the primary unit and re-targets it to the current
// entry.
func (s *Server) submit(cs snapshot.MemoryChangeSet) {
	client, err := s.primary()
	if err != nil {
		s.log.Error("changes not forwarded", "error", err)
		return
	}
	if !client.SubmitChange(cs) {
		s.log.Warn("primary unit stopped, changes dropped")
		return
	}
	s.retarget(client)
}

// retarget moves the primary unit to the current entry if it changed.
func (s *Server) retarget(client *compiler.Client) {
	root := s.sess.Config().Root
	s.mu.Lock()
	entry := s.currentEntryLocked(root)
	changed := entry != s.entry
	if changed {
		s.entry = entry
	}
	s.mu.Unlock()
	if changed {
		client.ChangeEntry(entry)
	}
}

// currentEntryLocked is the pinned main file if any, the focused markup
// file otherwise. root is the configured project root.
func (s *Server) currentEntryLocked(root string) snapshot.EntryState {
	main := s.pinned
	if main == "" && s.lastTouched != "" {
		main = uriToPath(s.lastTouched)
	}
	if main == "" {
		if root == "" {
			root = s.workspaceRoot
		}
		return snapshot.DetachedEntry(root)
	}
	if root == "" {
		root, _ = detectRoot(s.workspaceRoot, main)
	}
	return snapshot.ActiveEntry(root, main)
}

// primary returns the client of the primary unit, starting it when it is
// not running.
func (s *Server) primary() (*compiler.Client, error) {
	if client, ok := s.sess.Client(PrimaryUnit); ok {
		select {
		case <-client.Unit().Done():
		default:
			return client, nil
		}
	}
	root := s.sess.Config().Root
	s.mu.Lock()
	entry := s.currentEntryLocked(root)
	s.entry = entry
	s.mu.Unlock()
	return s.sess.Server(PrimaryUnit, entry, nil)
}

// memorySnapshot returns every open document; a restarted unit starts
// from it.
func (s *Server) memorySnapshot() snapshot.MemoryChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cs snapshot.MemoryChangeSet
	for uri, text := range s.openDocs {
		cs = cs.Insert(uriToPath(uri), text)
	}
	return cs
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	s.log.Info(fmt.Sprintf(format, args...))
}
