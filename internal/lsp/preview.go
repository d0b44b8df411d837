package lsp

import "net/http"

// PreviewHandler serves the live preview of the primary unit. It answers
// 503 until the unit runs with preview enabled.
func (s *Server) PreviewHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := s.sess.Preview(PrimaryUnit)
		if hub == nil {
			http.Error(w, "preview not available", http.StatusServiceUnavailable)
			return
		}
		hub.ServeHTTP(w, r)
	})
}
