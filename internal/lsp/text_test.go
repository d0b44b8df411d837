package lsp

import (
	"testing"

	"tinymist/internal/config"
	"tinymist/internal/source"
)

func TestApplyChanges(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		enc     source.Encoding
		changes []textDocumentContentChangeEvent
		want    string
	}{
		{
			name:    "full replace",
			text:    "old",
			changes: []textDocumentContentChangeEvent{{Text: "new"}},
			want:    "new",
		},
		{
			name: "insert in second line",
			text: "one\ntwo",
			changes: []textDocumentContentChangeEvent{{
				Range: &lspRange{Start: position{Line: 1, Character: 1}, End: position{Line: 1, Character: 1}},
				Text:  "X",
			}},
			want: "one\ntXwo",
		},
		{
			name: "utf-16 surrogate pair",
			text: "a😀b",
			enc:  source.EncodingUTF16,
			changes: []textDocumentContentChangeEvent{{
				Range: &lspRange{Start: position{Line: 0, Character: 3}, End: position{Line: 0, Character: 4}},
				Text:  "c",
			}},
			want: "a😀c",
		},
		{
			name: "utf-8 bytes",
			text: "é!",
			enc:  source.EncodingUTF8,
			changes: []textDocumentContentChangeEvent{{
				Range: &lspRange{Start: position{Line: 0, Character: 2}, End: position{Line: 0, Character: 3}},
				Text:  "?",
			}},
			want: "é?",
		},
		{
			name: "past the end clamps",
			text: "ab\ncd",
			changes: []textDocumentContentChangeEvent{{
				Range: &lspRange{Start: position{Line: 0, Character: 10}, End: position{Line: 9, Character: 0}},
				Text:  "!",
			}},
			want: "ab!",
		},
		{
			name: "sequential edits",
			text: "abc",
			changes: []textDocumentContentChangeEvent{
				{Range: &lspRange{Start: position{Character: 0}, End: position{Character: 1}}, Text: ""},
				{Range: &lspRange{Start: position{Character: 2}, End: position{Character: 2}}, Text: "d"},
			},
			want: "bcd",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := applyChanges(tc.text, tc.changes, tc.enc); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeSettings(t *testing.T) {
	nested, err := decodeSettings([]byte(`{"tinymist":{"outputPath":"out/$name","formatterPrintWidth":80}}`))
	if err != nil {
		t.Fatalf("decode nested: %v", err)
	}
	flat, err := decodeSettings([]byte(`{"outputPath":"out/$name","formatterPrintWidth":80}`))
	if err != nil {
		t.Fatalf("decode flat: %v", err)
	}
	if *nested.OutputPath != *flat.OutputPath || *nested.FormatterPrintWidth != 80 {
		t.Fatalf("nested and flat settings differ: %+v %+v", nested, flat)
	}

	var st lspSettings
	root := "docs"
	st.RootPath = &root
	cfg := st.apply(config.Default(), "/w")
	if cfg.Root != "/w/docs" {
		t.Fatalf("relative root not resolved: %q", cfg.Root)
	}
	if cfg.ExportPDF != config.Default().ExportPDF {
		t.Fatalf("absent settings must not change the config")
	}
	if _, err := decodeSettings([]byte(`[1]`)); err == nil {
		t.Fatalf("expected an error for a non-object")
	}
}
