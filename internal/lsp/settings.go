package lsp

import (
	"encoding/json"
	"path/filepath"

	"tinymist/internal/config"
)

// lspSettings is the client configuration. Clients send it either flat or
// nested under "tinymist".
type lspSettings struct {
	RootPath            *string           `json:"rootPath,omitempty"`
	OutputPath          *string           `json:"outputPath,omitempty"`
	ExportPDF           *string           `json:"exportPdf,omitempty"`
	ExportFormat        *string           `json:"exportFormat,omitempty"`
	FormatterMode       *string           `json:"formatterMode,omitempty"`
	FormatterPrintWidth *int              `json:"formatterPrintWidth,omitempty"`
	FontFamily          *string           `json:"fontFamily,omitempty"`
	Inputs              map[string]string `json:"inputs,omitempty"`
	Trace               *bool             `json:"trace,omitempty"`
}

func decodeSettings(raw json.RawMessage) (lspSettings, error) {
	var settings lspSettings
	if len(raw) == 0 || string(raw) == "null" {
		return settings, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return settings, err
	}
	if nested, ok := wrapper["tinymist"]; ok {
		raw = nested
	}
	err := json.Unmarshal(raw, &settings)
	return settings, err
}

// apply returns cfg with the fields present in the settings replaced.
// A relative root is resolved against base.
func (st lspSettings) apply(cfg config.Config, base string) config.Config {
	if st.RootPath != nil {
		root := *st.RootPath
		if root != "" && !filepath.IsAbs(root) && base != "" {
			root = filepath.Join(base, root)
		}
		cfg.Root = root
	}
	if st.OutputPath != nil {
		cfg.OutputPath = *st.OutputPath
	}
	if st.ExportPDF != nil {
		cfg.ExportPDF = *st.ExportPDF
	}
	if st.ExportFormat != nil {
		cfg.ExportFormat = *st.ExportFormat
	}
	if st.FormatterMode != nil {
		cfg.FormatterMode = *st.FormatterMode
	}
	if st.FormatterPrintWidth != nil {
		cfg.FormatterPrintWidth = *st.FormatterPrintWidth
	}
	if st.FontFamily != nil {
		cfg.FontFamily = *st.FontFamily
	}
	if st.Inputs != nil {
		inputs := make(map[string]string, len(st.Inputs))
		for k, v := range st.Inputs {
			inputs[k] = v
		}
		cfg.Inputs = inputs
	}
	return cfg
}

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.applySettings(params.Settings)
	return nil
}

func (s *Server) applySettings(raw json.RawMessage) {
	settings, err := decodeSettings(raw)
	if err != nil {
		s.log.Warn("invalid settings ignored", "error", err)
		return
	}
	s.mu.Lock()
	if settings.Trace != nil {
		s.traceLSP = *settings.Trace
	}
	root := s.workspaceRoot
	s.mu.Unlock()

	cfg := settings.apply(s.sess.Config(), root)
	if err := s.sess.UpdateConfig(cfg); err != nil {
		s.log.Error("configuration rejected", "error", err)
		return
	}
	s.logf("configuration updated: export=%s formatter=%s", cfg.ExportPDF, cfg.FormatterMode)
}
