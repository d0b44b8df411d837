package source

import "testing"

func TestPositionEncodings(t *testing.T) {
	fs := NewFileSet()
	// "é" is 2 bytes, "🙂" is 4 bytes / 2 UTF-16 units.
	file := fs.Get(fs.AddVirtual("main.typ", []byte("ab\né🙂x\n")))
	offset := uint32(len("ab\né🙂"))

	tests := []struct {
		enc  Encoding
		want Position
	}{
		{EncodingUTF8, Position{Line: 1, Character: 6}},
		{EncodingUTF16, Position{Line: 1, Character: 3}},
		{EncodingUTF32, Position{Line: 1, Character: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.enc.String(), func(t *testing.T) {
			got := file.Position(offset, tt.enc)
			if got != tt.want {
				t.Fatalf("Position() = %+v, want %+v", got, tt.want)
			}
			if back := file.Offset(got, tt.enc); back != offset {
				t.Fatalf("Offset() = %d, want %d", back, offset)
			}
		})
	}
}

func TestOffsetClampsToLineEnd(t *testing.T) {
	fs := NewFileSet()
	file := fs.Get(fs.AddVirtual("main.typ", []byte("ab\ncd")))
	if got := file.Offset(Position{Line: 0, Character: 99}, EncodingUTF16); got != 2 {
		t.Fatalf("expected clamp to 2, got %d", got)
	}
	if got := file.Offset(Position{Line: 9, Character: 0}, EncodingUTF16); got != 5 {
		t.Fatalf("expected clamp to content end, got %d", got)
	}
}

func TestEndPosition(t *testing.T) {
	got := EndPosition("one\ntwo🙂", EncodingUTF16)
	if got != (Position{Line: 1, Character: 5}) {
		t.Fatalf("unexpected end position %+v", got)
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{"": EncodingUTF16, "utf-8": EncodingUTF8, "UTF-32": EncodingUTF32} {
		got, err := ParseEncoding(in)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseEncoding("latin1"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}
