package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tinymist/internal/config"
	"tinymist/internal/diag"
	"tinymist/internal/source"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) messages(t *testing.T) []rpcMessage {
	t.Helper()
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	reader := bufio.NewReader(bytes.NewReader(data))
	var out []rpcMessage
	for {
		payload, err := readMessage(reader)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		var msg rpcMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		out = append(out, msg)
	}
}

func (b *syncBuffer) publishes(t *testing.T, uri string) []publishDiagnosticsParams {
	t.Helper()
	var out []publishDiagnosticsParams
	for _, msg := range b.messages(t) {
		if msg.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var params publishDiagnosticsParams
		require.NoError(t, json.Unmarshal(msg.Params, &params))
		if params.URI == uri {
			out = append(out, params)
		}
	}
	return out
}

func (b *syncBuffer) response(t *testing.T, id int) (rpcMessage, bool) {
	t.Helper()
	want := []byte(strings.TrimSpace(string(mustJSON(t, id))))
	for _, msg := range b.messages(t) {
		if msg.Method == "" && bytes.Equal(msg.ID, want) {
			return msg, true
		}
	}
	return rpcMessage{}, false
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newTestServer(t *testing.T) (*Server, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	s := NewServer(bytes.NewReader(nil), out, ServerOptions{Config: config.Default()})
	t.Cleanup(s.sess.Close)
	return s, out
}

func call(t *testing.T, s *Server, id int, method string, params any) {
	t.Helper()
	msg := &rpcMessage{JSONRPC: "2.0", Method: method}
	if id > 0 {
		msg.ID = mustJSON(t, id)
	}
	if params != nil {
		msg.Params = mustJSON(t, params)
	}
	require.NoError(t, s.handleMessage(msg))
}

func initialize(t *testing.T, s *Server, root string, options map[string]any) {
	t.Helper()
	params := map[string]any{
		"rootUri": pathToURI(root),
		"capabilities": map[string]any{
			"general": map[string]any{"positionEncodings": []string{"utf-8", "utf-16"}},
		},
	}
	if options != nil {
		params["initializationOptions"] = options
	}
	call(t, s, 1, "initialize", params)
	call(t, s, 0, "initialized", map[string]any{})
}

func TestRequestsBeforeInitialize(t *testing.T) {
	s, out := newTestServer(t)
	call(t, s, 7, "textDocument/formatting", documentFormattingParams{})

	msg, ok := out.response(t, 7)
	require.True(t, ok)
	require.NotNil(t, msg.Error)
	require.Equal(t, -32002, msg.Error.Code)
}

func TestInitializeNegotiatesEncoding(t *testing.T) {
	s, out := newTestServer(t)
	initialize(t, s, t.TempDir(), map[string]any{"formatterMode": "enable"})

	msg, ok := out.response(t, 1)
	require.True(t, ok)
	var result initializeResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	// utf-16 is configured and offered
	require.Equal(t, "utf-16", result.Capabilities.PositionEncoding)
	require.True(t, result.Capabilities.DocumentFormattingProvider)
	require.Equal(t, []string{commandPinMain, commandExportPDF}, result.Capabilities.ExecuteCommandProvider.Commands)
	require.Equal(t, "enable", s.sess.Config().FormatterMode)
}

func TestNegotiateEncoding(t *testing.T) {
	require.Equal(t, source.EncodingUTF8, negotiateEncoding("utf-8", []string{"utf-8", "utf-16"}))
	require.Equal(t, source.EncodingUTF16, negotiateEncoding("utf-8", []string{"utf-16"}))
	require.Equal(t, source.EncodingUTF16, negotiateEncoding("utf-32", nil))
	require.Equal(t, source.EncodingUTF16, negotiateEncoding("bogus", []string{"utf-8"}))
}

func TestDiagnosticsFollowEdits(t *testing.T) {
	root := t.TempDir()
	s, out := newTestServer(t)
	initialize(t, s, root, nil)

	path := filepath.Join(root, "main.typ")
	uri := pathToURI(path)
	call(t, s, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: uri, Version: 1, Text: "= Title\nTeh cat sat."},
	})

	require.Eventually(t, func() bool {
		for _, p := range out.publishes(t, uri) {
			for _, d := range p.Diagnostics {
				if d.Code == diag.GrmSuggestion.ID() {
					return d.Range.Start == position{Line: 1, Character: 0} &&
						d.Range.End == position{Line: 1, Character: 3} &&
						d.Severity == 2 &&
						d.Data != nil && d.Data.Replacements[0] == "The"
				}
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	call(t, s, 0, "textDocument/didChange", didChangeTextDocumentParams{
		TextDocument: versionedTextDocumentIdentifier{URI: uri, Version: 2},
		ContentChanges: []textDocumentContentChangeEvent{{
			Range: &lspRange{Start: position{Line: 1, Character: 0}, End: position{Line: 1, Character: 3}},
			Text:  "The",
		}},
	})

	require.Eventually(t, func() bool {
		list := out.publishes(t, uri)
		return len(list) > 0 && len(list[len(list)-1].Diagnostics) == 0
	}, 5*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	require.Equal(t, "= Title\nThe cat sat.", s.openDocs[uri])
	require.Equal(t, 2, s.versions[uri])
	s.mu.Unlock()
}

func TestCompileErrorsArePublished(t *testing.T) {
	root := t.TempDir()
	s, out := newTestServer(t)
	initialize(t, s, root, nil)

	uri := pathToURI(filepath.Join(root, "broken.typ"))
	call(t, s, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: uri, Version: 1, Text: "some *bold"},
	})

	require.Eventually(t, func() bool {
		for _, p := range out.publishes(t, uri) {
			for _, d := range p.Diagnostics {
				if d.Code == diag.SynUnclosedDelimiter.ID() && d.Severity == 1 {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFormatting(t *testing.T) {
	root := t.TempDir()
	s, out := newTestServer(t)
	initialize(t, s, root, map[string]any{"tinymist": map[string]any{"formatterMode": "enable"}})

	uri := pathToURI(filepath.Join(root, "main.typ"))
	call(t, s, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: uri, Version: 1, Text: "=   Title\n"},
	})
	call(t, s, 5, "textDocument/formatting", documentFormattingParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})

	var msg rpcMessage
	require.Eventually(t, func() bool {
		var ok bool
		msg, ok = out.response(t, 5)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Nil(t, msg.Error)
	var edits []textEdit
	require.NoError(t, json.Unmarshal(msg.Result, &edits))
	require.Len(t, edits, 1)
	require.Equal(t, "= Title\n", edits[0].NewText)
	require.Equal(t, position{Line: 1, Character: 0}, edits[0].Range.End)

	// unknown documents format to null
	call(t, s, 6, "textDocument/formatting", documentFormattingParams{
		TextDocument: textDocumentIdentifier{URI: pathToURI(filepath.Join(root, "other.typ"))},
	})
	msg, ok := out.response(t, 6)
	require.True(t, ok)
	require.Equal(t, "null", string(msg.Result))
}

func TestPinMainAndExport(t *testing.T) {
	root := t.TempDir()
	s, out := newTestServer(t)
	initialize(t, s, root, map[string]any{"exportFormat": "txt"})

	mainPath := filepath.Join(root, "main.typ")
	otherPath := filepath.Join(root, "other.typ")
	call(t, s, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: pathToURI(mainPath), Version: 1, Text: "= Main\nBody."},
	})
	call(t, s, 2, "workspace/executeCommand", executeCommandParams{
		Command:   commandPinMain,
		Arguments: []json.RawMessage{mustJSON(t, pathToURI(mainPath))},
	})
	_, ok := out.response(t, 2)
	require.True(t, ok)

	// focusing another file keeps the pinned entry
	call(t, s, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: pathToURI(otherPath), Version: 1, Text: "= Other"},
	})
	s.mu.Lock()
	require.Equal(t, mainPath, s.entry.MainPath())
	s.mu.Unlock()

	call(t, s, 3, "workspace/executeCommand", executeCommandParams{Command: commandExportPDF})
	var msg rpcMessage
	require.Eventually(t, func() bool {
		msg, ok = out.response(t, 3)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Nil(t, msg.Error)
	var written string
	require.NoError(t, json.Unmarshal(msg.Result, &written))
	require.Equal(t, filepath.Join(root, "main.txt"), written)
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	require.Contains(t, string(data), "Main")

	// unpinning moves the entry to the focused document
	call(t, s, 4, "workspace/executeCommand", executeCommandParams{
		Command:   commandPinMain,
		Arguments: []json.RawMessage{json.RawMessage("null")},
	})
	s.mu.Lock()
	require.Equal(t, otherPath, s.entry.MainPath())
	s.mu.Unlock()

	call(t, s, 8, "workspace/executeCommand", executeCommandParams{Command: "tinymist.unknown"})
	msg, ok = out.response(t, 8)
	require.True(t, ok)
	require.NotNil(t, msg.Error)
	require.Equal(t, codeInvalidParams, msg.Error.Code)
}

func TestDidChangeConfiguration(t *testing.T) {
	s, _ := newTestServer(t)
	initialize(t, s, t.TempDir(), nil)

	call(t, s, 0, "workspace/didChangeConfiguration", didChangeConfigurationParams{
		Settings: mustJSON(t, map[string]any{"exportPdf": "onSave", "formatterPrintWidth": 80, "trace": true}),
	})
	cfg := s.sess.Config()
	require.Equal(t, "onSave", cfg.ExportPDF)
	require.Equal(t, 80, cfg.FormatterPrintWidth)
	s.mu.Lock()
	require.True(t, s.traceLSP)
	s.mu.Unlock()

	// invalid settings leave the configuration alone
	call(t, s, 0, "workspace/didChangeConfiguration", didChangeConfigurationParams{
		Settings: mustJSON(t, map[string]any{"exportPdf": "sometimes"}),
	})
	require.Equal(t, "onSave", s.sess.Config().ExportPDF)
}

func TestPublishDiagnosticsClearsStale(t *testing.T) {
	s, out := newTestServer(t)
	a, b := filepath.Join(t.TempDir(), "a.typ"), filepath.Join(t.TempDir(), "b.typ")

	s.PublishDiagnostics("u", map[string][]diag.Located{
		a: {{Path: a, Severity: diag.SevError, Code: diag.SynUnknownFunction, Message: "boom"}},
		b: {{Path: b, Severity: diag.SevWarning, Code: diag.GrmSuggestion, Source: "grammar", Message: "hm"}},
	})
	s.PublishDiagnostics("u", map[string][]diag.Located{
		a: {{Path: a, Severity: diag.SevError, Code: diag.SynUnknownFunction, Message: "boom"}},
	})

	listA := out.publishes(t, pathToURI(a))
	listB := out.publishes(t, pathToURI(b))
	require.Len(t, listA, 2)
	require.Len(t, listB, 2)
	require.Equal(t, "tinymist", listA[0].Diagnostics[0].Source)
	require.Equal(t, "grammar", listB[0].Diagnostics[0].Source)
	require.Empty(t, listB[1].Diagnostics)

	s.clearPublishedDiagnostics()
	listA = out.publishes(t, pathToURI(a))
	require.Len(t, listA, 3)
	require.Empty(t, listA[2].Diagnostics)
}

func TestShutdownAndExit(t *testing.T) {
	s, out := newTestServer(t)
	initialize(t, s, t.TempDir(), nil)
	call(t, s, 9, "shutdown", nil)
	_, ok := out.response(t, 9)
	require.True(t, ok)

	call(t, s, 10, "textDocument/formatting", documentFormattingParams{})
	msg, ok := out.response(t, 10)
	require.True(t, ok)
	require.Equal(t, -32600, msg.Error.Code)

	require.ErrorIs(t, s.handleMessage(&rpcMessage{Method: "exit"}), ErrExit)

	fresh, _ := newTestServer(t)
	require.ErrorIs(t, fresh.handleMessage(&rpcMessage{Method: "exit"}), ErrExitWithoutShutdown)
}
