package source

import (
	"testing"
)

func TestSpan_Sub(t *testing.T) {
	tests := []struct {
		name     string
		span     Span
		from, to uint32
		expected Span
	}{
		{
			name:     "inner range",
			span:     Span{File: 1, Start: 10, End: 20},
			from:     2,
			to:       5,
			expected: Span{File: 1, Start: 12, End: 15},
		},
		{
			name:     "clamped to length",
			span:     Span{File: 1, Start: 10, End: 20},
			from:     8,
			to:       50,
			expected: Span{File: 1, Start: 18, End: 20},
		},
		{
			name:     "inverted range collapses",
			span:     Span{File: 2, Start: 0, End: 10},
			from:     6,
			to:       3,
			expected: Span{File: 2, Start: 6, End: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.span.Sub(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("Sub() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestSpan_Cover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 2, End: 6}
	if got := a.Cover(b); got != (Span{File: 1, Start: 2, End: 8}) {
		t.Fatalf("Cover() = %+v", got)
	}
	other := Span{File: 2, Start: 0, End: 100}
	if got := a.Cover(other); got != a {
		t.Fatalf("Cover() across files = %+v, want %+v", got, a)
	}
}

func TestSpan_Detached(t *testing.T) {
	sp := Detached()
	if !sp.IsDetached() {
		t.Fatal("expected detached span")
	}
	if sp.String() != "detached" {
		t.Fatalf("unexpected string %q", sp.String())
	}
	if (Span{File: 0, Start: 1, End: 2}).IsDetached() {
		t.Fatal("file 0 is a real file")
	}
}
