package grammar

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tinymist/internal/diag"
	"tinymist/internal/feed"
	"tinymist/internal/markup"
	"tinymist/internal/render"
	"tinymist/internal/snapshot"
)

type memSource map[string]string

func (m memSource) MainPath() string { return "/w/main.typ" }

func (m memSource) ReadFile(path string) ([]byte, error) {
	if s, ok := m[path]; ok {
		return []byte(s), nil
	}
	return nil, os.ErrNotExist
}

func (memSource) Input(string) (string, bool) { return "", false }

func compileDoc(t *testing.T, src string) *markup.Document {
	t.Helper()
	var c markup.Compiler
	doc, diags, err := c.Compile(context.Background(), memSource{"/w/main.typ": src})
	require.NoError(t, err)
	require.False(t, diag.HasErrors(diags))
	return doc
}

func mustRules(t *testing.T) *Rules {
	t.Helper()
	r, err := LoadRules()
	require.NoError(t, err)
	return r
}

func TestCheckRules(t *testing.T) {
	r := mustRules(t)
	cases := []struct {
		name string
		text string
		rule string
		rng  [2]int
		repl string
	}{
		{"spelling title case", "Teh cat", RuleSpelling, [2]int{0, 3}, "The"},
		{"spelling lower", "see teh cat", RuleSpelling, [2]int{4, 7}, "the"},
		{"spelling upper", "TEH END", RuleSpelling, [2]int{0, 3}, "THE"},
		{"repeated", "the the cat", RuleRepeatedWord, [2]int{0, 7}, "the"},
		{"space before comma", "yes , no", RuleSpaceBeforePunct, [2]int{3, 5}, ","},
		{"a before vowel", "a apple", RuleArticle, [2]int{0, 1}, "an"},
		{"an before consonant", "An cat", RuleArticle, [2]int{0, 2}, "A"},
		{"an hour", "a hour", RuleArticle, [2]int{0, 1}, "an"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ms := r.Check(tc.text)
			require.Len(t, ms, 1, "%+v", ms)
			require.Equal(t, tc.rule, ms[0].Rule)
			require.Equal(t, tc.rng[0], ms[0].Range.Start)
			require.Equal(t, tc.rng[1], ms[0].Range.End)
			require.Equal(t, []string{tc.repl}, ms[0].Replacements)
		})
	}
}

func TestCheckCleanText(t *testing.T) {
	r := mustRules(t)
	for _, text := range []string{
		"The cat sat on the mat.",
		"a university and an owl",
		"Version 1 1 is fine",
		"line one\n, starts with a comma",
		"",
	} {
		require.Empty(t, r.Check(text), text)
	}
}

func TestCheckDocumentMapsToSource(t *testing.T) {
	src := "= Title\nTeh cat sat."
	doc := compileDoc(t, src)

	got, err := CheckDocument(doc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	s := got[0]
	require.Equal(t, RuleSpelling, s.Source)
	require.Equal(t, []string{"The"}, s.Replacements)
	require.NotNil(t, s.Span)
	require.Equal(t, "Teh", src[s.Span.Span.Start:s.Span.Span.End])
}

func TestCheckDocumentNil(t *testing.T) {
	_, err := CheckDocument(nil)
	require.Error(t, err)
}

func TestDiagFromSuggestion(t *testing.T) {
	src := "Teh end"
	doc := compileDoc(t, src)
	got, err := CheckDocument(doc)
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := DiagFromSuggestion(got[0])
	require.Equal(t, diag.SevWarning, d.Severity)
	require.Equal(t, diag.GrmSuggestion, d.Code)
	require.Len(t, d.Fixes, 1)
	require.Equal(t, "The", d.Fixes[0].Edits[0].NewText)
	require.Equal(t, got[0].Span.Span, d.Primary)

	unmapped := DiagFromSuggestion(Suggestion{Message: "x", Replacements: []string{"a", "b"}})
	require.True(t, unmapped.Primary.IsDetached())
	require.Len(t, unmapped.Fixes, 2)
}

type actorHarness struct {
	docTx *feed.WatchSender[*snapshot.VersionedDocument]
	reqs  *feed.Broadcast[render.Request]
	out   *feed.Queue[VersionedSuggestions]
	done  chan struct{}
}

func startActor(t *testing.T, check func(*markup.Document) ([]Suggestion, error)) *actorHarness {
	t.Helper()
	docTx, docRx := feed.NewWatch[*snapshot.VersionedDocument](nil)
	h := &actorHarness{
		docTx: docTx,
		reqs:  feed.NewBroadcast[render.Request](10),
		out:   feed.NewQueue[VersionedSuggestions](10),
		done:  make(chan struct{}),
	}
	a := NewActor(h.reqs.Subscribe(), docRx, h.out, nil)
	if check != nil {
		a.WithChecker(check)
	}
	go func() {
		defer close(h.done)
		a.Run(context.Background())
	}()
	t.Cleanup(func() {
		h.reqs.Close()
		<-h.done
	})
	return h
}

func (h *actorHarness) recv(t *testing.T) VersionedSuggestions {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := h.out.Recv(ctx)
	require.NoError(t, err)
	return v
}

func TestActorChecksRenderedDocument(t *testing.T) {
	h := startActor(t, nil)
	doc := compileDoc(t, "= Title\nTeh cat sat.")
	h.docTx.Send(&snapshot.VersionedDocument{Version: 1, Document: doc})
	h.reqs.Send(render.Rendered{Version: 1})

	got := h.recv(t)
	require.Equal(t, uint64(1), got.Version)
	require.True(t, got.Checked)
	require.Len(t, got.Suggestions, 1)
}

func TestActorSkipsWithoutDocumentAndConfigRequests(t *testing.T) {
	h := startActor(t, nil)
	h.reqs.Send(render.Rendered{Version: 1})
	h.reqs.Send(render.ChangeConfig{})

	doc := compileDoc(t, "fine text")
	h.docTx.Send(&snapshot.VersionedDocument{Version: 2, Document: doc})
	h.reqs.Send(render.ChangeExportPath{})
	h.reqs.Send(render.Rendered{Version: 2})
	// same version again
	h.reqs.Send(render.Saved{Path: "/w/main.typ"})

	got := h.recv(t)
	require.Equal(t, uint64(2), got.Version)
	require.True(t, got.Checked)
	require.Empty(t, got.Suggestions)
	require.Never(t, func() bool { return h.out.Len() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestActorReportsFailure(t *testing.T) {
	h := startActor(t, func(*markup.Document) ([]Suggestion, error) {
		return nil, errors.New("boom")
	})
	h.docTx.Send(&snapshot.VersionedDocument{Version: 3, Document: &markup.Document{}})
	h.reqs.Send(render.Rendered{Version: 3})

	got := h.recv(t)
	require.Equal(t, uint64(3), got.Version)
	require.False(t, got.Checked)
	require.Nil(t, got.Suggestions)
}

func TestActorBlocksOnFullQueue(t *testing.T) {
	checked := make(chan struct{}, 16)
	h := startActor(t, func(*markup.Document) ([]Suggestion, error) {
		checked <- struct{}{}
		return nil, nil
	})
	publish := func(v uint64) {
		h.docTx.Send(&snapshot.VersionedDocument{Version: v, Document: &markup.Document{}})
		h.reqs.Send(render.Rendered{Version: v})
		select {
		case <-checked:
		case <-time.After(2 * time.Second):
			t.Fatalf("version %d was not checked", v)
		}
	}

	for v := uint64(1); v <= 10; v++ {
		publish(v)
		require.Eventually(t, func() bool { return h.out.Len() == int(v) }, time.Second, 5*time.Millisecond)
	}

	// 11-я версия проверена, но очередь полна
	publish(11)
	require.Never(t, func() bool {
		select {
		case <-h.done:
			return true
		default:
			return h.out.Len() != 10
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	for v := uint64(1); v <= 11; v++ {
		got := h.recv(t)
		require.Equal(t, v, got.Version)
		require.True(t, got.Checked)
	}
	require.Zero(t, h.out.Len())

	// the actor keeps serving after the queue drains
	publish(12)
	require.Equal(t, uint64(12), h.recv(t).Version)
}

func TestActorStopsWhenReceiverGone(t *testing.T) {
	h := startActor(t, nil)
	h.out.CloseReceiver()
	h.docTx.Send(&snapshot.VersionedDocument{Version: 1, Document: compileDoc(t, "x")})
	h.reqs.Send(render.Rendered{Version: 1})

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not stop")
	}
}
