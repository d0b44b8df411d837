package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tinymist/internal/compiler"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
)

const (
	commandPinMain   = "tinymist.pinMain"
	commandExportPDF = "tinymist.exportPdf"
)

// exportTimeout bounds how long an export waits for pending compilations.
const exportTimeout = 30 * time.Second

var errNoDocument = errors.New("no compiled document")

func (s *Server) handleExecuteCommand(msg *rpcMessage) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	switch params.Command {
	case commandPinMain:
		return s.pinMain(msg.ID, params.Arguments)
	case commandExportPDF:
		return s.exportPDF(msg.ID, params.Arguments)
	default:
		return s.sendError(msg.ID, codeInvalidParams, fmt.Sprintf("unknown command %q", params.Command))
	}
}

// uriArgument decodes the first argument as a document URI. A missing or
// null argument gives "".
func uriArgument(args []json.RawMessage) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	var uri *string
	if err := json.Unmarshal(args[0], &uri); err != nil {
		return "", err
	}
	if uri == nil || *uri == "" {
		return "", nil
	}
	path := uriToPath(*uri)
	if path == "" {
		return "", fmt.Errorf("not a file uri: %q", *uri)
	}
	return path, nil
}

// pinMain fixes the entry to the given file; null unpins it and the focused
// document becomes the entry again.
func (s *Server) pinMain(id json.RawMessage, args []json.RawMessage) error {
	path, err := uriArgument(args)
	if err != nil {
		return s.sendError(id, codeInvalidParams, err.Error())
	}
	s.mu.Lock()
	s.pinned = path
	s.mu.Unlock()
	s.log.Info("main file pinned", "path", path)

	client, err := s.primary()
	if err != nil {
		return s.sendError(id, codeRequestFailed, err.Error())
	}
	s.retarget(client)
	return s.sendResponse(id, nil)
}

// exportPDF writes the current document of the primary unit once, whatever
// the export mode. The reply carries the written path.
func (s *Server) exportPDF(id json.RawMessage, args []json.RawMessage) error {
	path, err := uriArgument(args)
	if err != nil {
		return s.sendError(id, codeInvalidParams, err.Error())
	}
	client, err := s.primary()
	if err != nil {
		return s.sendError(id, codeRequestFailed, err.Error())
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, exportTimeout)
		defer cancel()
		out, err := s.exportCurrent(ctx, client, path)
		if err != nil {
			s.log.Error("export failed", "error", err)
			err = s.sendError(id, codeRequestFailed, err.Error())
		} else {
			err = s.sendResponse(id, out)
		}
		if err != nil {
			s.log.Error("failed to send export result", "error", err)
		}
	}()
	return nil
}

func (s *Server) exportCurrent(ctx context.Context, client *compiler.Client, want string) (string, error) {
	// steal обслуживается после накопленных правок
	entry, err := compiler.StealValueAsync(ctx, client, func(d *compiler.Driver) snapshot.EntryState {
		return d.Entry()
	})
	if err != nil {
		return "", err
	}
	if entry.IsInactive() {
		return "", fmt.Errorf("%w: no main file", errNoDocument)
	}
	if want != "" && snapshot.ActiveEntry(entry.Root, want).MainPath() != entry.MainPath() {
		return "", fmt.Errorf("%s is not the main file %s", want, entry.MainPath())
	}
	vdoc := client.Document().Borrow()
	if vdoc == nil || vdoc.Document == nil {
		return "", errNoDocument
	}

	cfg := s.sess.Config()
	exportCfg, err := cfg.ExportConfig(entry)
	if err != nil {
		return "", err
	}
	out, r, err := render.Target(exportCfg, render.Renderers(cfg.FontFamily))
	if err != nil {
		return "", err
	}
	if err := render.WriteDocument(out, r, vdoc.Document); err != nil {
		return "", err
	}
	s.log.Info("exported on request", "path", out, "version", vdoc.Version)
	return out, nil
}
