package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestInitJSONAndContext(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, FormatJSON, &buf)
	t.Cleanup(func() { Init(LevelInfo, FormatText, nil) })

	ctx := WithUnit(context.Background(), "primary", "abc")
	FromContext(ctx).Info("compiled", "version", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["unit"] != "primary" || rec["instance"] != "abc" || rec["msg"] != "compiled" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, FormatText, &buf)
	t.Cleanup(func() { Init(LevelInfo, FormatText, nil) })

	With("export").Info("hidden")
	Error(With("export"), "export failed", errors.New("disk full"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered: %q", out)
	}
	if !strings.Contains(out, "disk full") || !strings.Contains(out, "component=export") {
		t.Fatalf("missing error record: %q", out)
	}
}

func TestParse(t *testing.T) {
	if l, err := ParseLevel("WARNING"); err != nil || l != LevelWarn {
		t.Fatalf("ParseLevel: %v %v", l, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("expected error")
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Fatalf("ParseFormat: %v %v", f, err)
	}
}
