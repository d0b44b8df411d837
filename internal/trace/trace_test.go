package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":       LevelOff,
		"off":    LevelOff,
		"Phase":  LevelPhase,
		"detail": LevelDetail,
		"DEBUG":  LevelDebug,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.ErrorContains(t, err, "off|error|phase|detail|debug")
}

func TestLevelScopes(t *testing.T) {
	require.True(t, LevelPhase.ShouldEmit(ScopeCompile))
	require.False(t, LevelPhase.ShouldEmit(ScopeActor))
	require.True(t, LevelDetail.ShouldEmit(ScopeActor))
	require.False(t, LevelError.ShouldEmit(ScopeSession))
	require.False(t, LevelOff.ShouldEmit(ScopeSession))
}

func TestSpansNestThroughContext(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatNDJSON)
	ctx := WithUnit(WithTracer(context.Background(), tr), "primary")

	unitCtx, unit := Start(ctx, ScopeUnit, "unit")
	compileCtx, compile := Start(unitCtx, ScopeCompile, "compile")
	_, actor := Start(compileCtx, ScopeActor, "export")
	actor.End("")
	compile.Set("status", "failed").End("ok")
	compile.End("twice")
	unit.End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var events []jsonEvent
	for _, line := range lines {
		var ev jsonEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	require.Equal(t, "begin", events[0].Kind)
	require.Equal(t, "primary", events[0].Unit)
	require.Zero(t, events[0].ParentID)
	require.Equal(t, events[0].SpanID, events[1].ParentID)
	require.Equal(t, "end", events[2].Kind)
	require.Equal(t, "ok", events[2].Detail)
	require.Equal(t, map[string]string{"status": "failed"}, events[2].Extra)
	require.Equal(t, "unit", events[3].Name)
}

func TestStartWithoutTracer(t *testing.T) {
	ctx := context.Background()
	got, span := Start(ctx, ScopeCompile, "compile")
	require.Equal(t, ctx, got)
	require.Zero(t, span.ID())
	require.Zero(t, span.Set("k", "v").End(""))
}

func TestRingTracerWraps(t *testing.T) {
	tr := NewRingTracer(3, LevelDebug)
	ctx := WithTracer(context.Background(), tr)
	for range 5 {
		Point(ctx, ScopeActor, "tick", "")
	}
	events := tr.Snapshot()
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	var buf bytes.Buffer
	require.NoError(t, tr.Dump(&buf, FormatText))
	require.Equal(t, 3, strings.Count(buf.String(), "• tick"))
}

func TestMultiAndContext(t *testing.T) {
	a := NewRingTracer(8, LevelDebug)
	b := NewRingTracer(8, LevelDebug)
	ctx := WithTracer(context.Background(), NewMultiTracer(LevelDebug, a, b))
	Point(ctx, ScopeSession, "start", "")
	require.Len(t, a.Snapshot(), 1)
	require.Len(t, b.Snapshot(), 1)
	require.Equal(t, Nop, FromContext(context.Background()))
}

func TestFormatText(t *testing.T) {
	ev := &Event{
		Time:     time.Date(2024, 1, 1, 10, 20, 30, 0, time.UTC),
		Kind:     KindSpanEnd,
		Scope:    ScopeCompile,
		ParentID: 1,
		Unit:     "primary",
		Name:     "compile",
		Detail:   "ok",
		Extra:    map[string]string{"b": "2", "a": "1"},
	}
	require.Equal(t, "10:20:30.000 [compile@primary]   ← compile (ok) {a=1, b=2}\n", string(FormatEvent(ev, FormatText)))
}

func TestHeartbeat(t *testing.T) {
	tr := NewRingTracer(16, LevelError)
	h := StartHeartbeat(tr, time.Millisecond)
	require.NotNil(t, h)
	require.Eventually(t, func() bool { return len(tr.Snapshot()) >= 2 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()
	require.Nil(t, StartHeartbeat(Nop, time.Millisecond))
}

func TestNew(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	require.NoError(t, err)
	require.Equal(t, Nop, tr)

	var buf bytes.Buffer
	tr, err = New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &buf})
	require.NoError(t, err)
	ctx := WithTracer(context.Background(), tr)
	Point(ctx, ScopeSession, "ready", "")
	require.Contains(t, buf.String(), "• ready")
	require.NoError(t, tr.Close())

	_, err = ParseMode("disk")
	require.Error(t, err)
}
