package fonts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		in, family, style string
	}{
		{"NotoSans-BoldItalic", "Noto Sans", "bold italic"},
		{"LinLibertine_R", "Lin Libertine R", "regular"},
		{"Inter-Regular", "Inter", "regular"},
		{"FiraCode", "Fira Code", "regular"},
		{"Roboto-LightItalic", "Roboto", "light italic"},
	}
	for _, tc := range cases {
		family, style := ParseName(tc.in)
		if family != tc.family || style != tc.style {
			t.Fatalf("%s: got (%q, %q), want (%q, %q)", tc.in, family, style, tc.family, tc.style)
		}
	}
}

func writeFont(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveAndCache(t *testing.T) {
	dir := t.TempDir()
	writeFont(t, dir, "NotoSans-Regular.ttf", "a")
	writeFont(t, dir, "NotoSans-Bold.ttf", "b")
	writeFont(t, dir, "readme.txt", "not a font")

	cache, err := NewDiskCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	r := &Resolver{Dirs: []string{dir, filepath.Join(dir, "missing")}, Cache: cache, Jobs: 2}
	book, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if book.Len() != 2 {
		t.Fatalf("want 2 fonts, got %d", book.Len())
	}
	if fams := book.Families(); len(fams) != 1 || fams[0] != "Noto Sans" {
		t.Fatalf("families %v", fams)
	}
	if got := book.Lookup("noto sans"); len(got) != 2 || got[0].Hash == (Digest{}) {
		t.Fatalf("lookup %+v", got)
	}

	key := listingKey(mustScan(t, r))
	cached, ok, err := cache.Get(key)
	if err != nil || !ok || len(cached) != 2 {
		t.Fatalf("cache miss: %v %v %d", err, ok, len(cached))
	}
	if cached[0].Hash != book.Fonts()[0].Hash {
		t.Fatalf("cached hash differs")
	}

	again, err := r.Resolve(context.Background())
	if err != nil || again.Len() != 2 {
		t.Fatalf("cached resolve: %v", err)
	}
}

func mustScan(t *testing.T, r *Resolver) []listing {
	t.Helper()
	files, err := r.scan()
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestResolveEmpty(t *testing.T) {
	r := &Resolver{}
	book, err := r.Resolve(context.Background())
	if err != nil || book.Len() != 0 {
		t.Fatalf("empty resolve: %v %d", err, book.Len())
	}
}
