package format

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tinymist/internal/feed"
	"tinymist/internal/markup"
	"tinymist/internal/source"
)

func TestSource(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{
			name: "headings lists and blanks",
			in:   "\n\n  =   Title  \n\n\n\nSome   text   here.\n-   item\n-\n",
			want: "= Title\n\nSome text here.\n- item\n-\n",
		},
		{
			name:  "reflow",
			in:    "one two three four five six seven eight",
			width: 20,
			want:  "one two three four\nfive six seven eight\n",
		},
		{
			name:  "join short lines",
			in:    "one\ntwo\nthree",
			width: 20,
			want:  "one two three\n",
		},
		{
			name: "raw block verbatim",
			in:   "```\n  a   b  \n\n\n```\n",
			want: "```\n  a   b  \n\n\n```\n",
		},
		{
			name:  "atoms are not split",
			in:    "*bold text* `raw code` #input(\"a b\") end",
			width: 10,
			want:  "*bold text*\n`raw code`\n#input(\"a b\")\nend\n",
		},
		{
			name: "comment lines stay",
			in:   "a // note\nb   c",
			want: "a // note\nb c\n",
		},
		{
			name:  "no break before block markers",
			in:    "text - more",
			width: 5,
			want:  "text -\nmore\n",
		},
		{
			name: "crlf",
			in:   "a\r\nb\r\n",
			want: "a b\n",
		},
		{
			name: "empty",
			in:   "\n\n  \n",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Source(tc.in, Options{Width: tc.width})
			require.Equal(t, tc.want, got)
			require.Equal(t, got, Source(got, Options{Width: tc.width}), "not idempotent")
		})
	}
}

type memSource string

func (memSource) MainPath() string { return "/w/main.typ" }

func (m memSource) ReadFile(path string) ([]byte, error) {
	if path != "/w/main.typ" {
		return nil, os.ErrNotExist
	}
	return []byte(m), nil
}

func (memSource) Input(string) (string, bool) { return "a b", true }

func TestSourceKeepsMeaning(t *testing.T) {
	in := "= Head\n" +
		"The *quick brown* fox jumps over the lazy dog and keeps running\n" +
		"  across the field #input(\"k\").\n\n" +
		"- item one\n" +
		"```go\nx  :=  1\n```\n" +
		"Tail `a b` text.\n"
	out := Source(in, Options{Width: 20})

	var c markup.Compiler
	before, _, err := c.Compile(context.Background(), memSource(in))
	require.NoError(t, err)
	after, diags, err := c.Compile(context.Background(), memSource(out))
	require.NoError(t, err)
	require.Empty(t, diags)

	require.Len(t, after.Blocks, len(before.Blocks))
	for i := range before.Blocks {
		require.Equal(t, before.Blocks[i].Kind, after.Blocks[i].Kind)
		require.Equal(t, before.Blocks[i].PlainText(), after.Blocks[i].PlainText())
	}
}

func TestEdits(t *testing.T) {
	require.Nil(t, Edits("a\n", "a\n", source.EncodingUTF16))

	edits := Edits("a  b\nцвет 😀", "x\n", source.EncodingUTF16)
	require.Len(t, edits, 1)
	require.Equal(t, source.Position{}, edits[0].Range.Start)
	require.Equal(t, source.Position{Line: 1, Character: 7}, edits[0].Range.End)
	require.Equal(t, "x\n", edits[0].NewText)

	edits = Edits("цвет", "", source.EncodingUTF8)
	require.Equal(t, source.Position{Character: 8}, edits[0].Range.End)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeDisable, "disable": ModeDisable, "enable": ModeEnable, "typstyle": ModeEnable} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseMode("black")
	require.Error(t, err)
}

func TestWorker(t *testing.T) {
	jobs := feed.NewMailbox[Job]()
	w := NewWorker(DefaultConfig(), nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background(), jobs)
	}()

	type reply struct {
		edits []TextEdit
		err   error
	}
	ask := func(src string) reply {
		out := make(chan reply, 1)
		jobs.Send(Request{URI: "file:///w/main.typ", Source: src, Encoding: source.EncodingUTF16,
			Respond: func(e []TextEdit, err error) { out <- reply{e, err} }})
		select {
		case r := <-out:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("no reply")
			return reply{}
		}
	}

	r := ask("a   b")
	require.NoError(t, r.err)
	require.Nil(t, r.edits, "disabled formatter returns no edits")

	jobs.Send(ChangeConfig{Config: Config{Mode: ModeEnable, Width: 80}})
	r = ask("a   b")
	require.NoError(t, r.err)
	require.Len(t, r.edits, 1)
	require.Equal(t, "a b\n", r.edits[0].NewText)

	r = ask("a b\n")
	require.NoError(t, r.err)
	require.Empty(t, r.edits)

	jobs.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
