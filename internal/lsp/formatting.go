package lsp

import (
	"encoding/json"

	"tinymist/internal/format"
)

// handleFormatting queues the document on the format worker. The response
// is sent from the worker once the edits are ready.
func (s *Server) handleFormatting(msg *rpcMessage) error {
	var params documentFormattingParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	s.mu.Lock()
	text, ok := s.openDocs[uri]
	enc := s.encoding
	s.mu.Unlock()
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}

	id := msg.ID
	queued := s.sess.Format(format.Request{
		URI:      uri,
		Source:   text,
		Encoding: enc,
		Respond: func(edits []format.TextEdit, err error) {
			var sendErr error
			if err != nil {
				sendErr = s.sendError(id, codeRequestFailed, err.Error())
			} else {
				sendErr = s.sendResponse(id, toLSPEdits(edits))
			}
			if sendErr != nil {
				s.log.Error("failed to send formatting result", "uri", uri, "error", sendErr)
			}
		},
	})
	if !queued {
		return s.sendError(msg.ID, codeRequestFailed, "formatter stopped")
	}
	return nil
}

// toLSPEdits returns nil for no edits, which the protocol sends as null.
func toLSPEdits(edits []format.TextEdit) []textEdit {
	if len(edits) == 0 {
		return nil
	}
	out := make([]textEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, textEdit{
			Range: lspRange{
				Start: toLSPPosition(e.Range.Start),
				End:   toLSPPosition(e.Range.End),
			},
			NewText: e.NewText,
		})
	}
	return out
}
