package logparser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRoundTrip(t *testing.T) {
	items := []LogItem{
		{Kind: KindLine, Line: "configure: checking for gcc... yes"},
		{Kind: KindProgress, Progress: 0},
		{Kind: KindProgress, Progress: 100},
		{Kind: KindPhase, Phase: "build"},
		{Kind: KindState, StateOK: true, StateDetail: "done"},
		{Kind: KindState, StateOK: false, StateDetail: "compile error"},
	}
	for _, want := range items {
		got, err := Parse(want.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", want.String(), err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch for %q (-want +got):\n%s", want.String(), diff)
		}
	}
}

func TestParseRejectsMalformedSentinels(t *testing.T) {
	cases := []string{
		"#BUTIDO:PROGRESS:not-a-number",
		"#BUTIDO:PROGRESS:256",
		"#BUTIDO:PROGRESS:-1",
	}
	for _, line := range cases {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", line)
		}
	}
}

func TestParseOrdinaryLinesPassThrough(t *testing.T) {
	got, err := Parse("hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := LogItem{Kind: KindLine, Line: "hello world"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferSplitAcrossWrites(t *testing.T) {
	var buf LineBuffer

	items, err := buf.Write([]byte("hello wo"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no complete lines yet, got %v", items)
	}

	items, err = buf.Write([]byte("rld\n#BUTIDO:PROGRESS:5"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []LogItem{{Kind: KindLine, Line: "hello world"}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	items, err = buf.Write([]byte("0\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want = []LogItem{{Kind: KindProgress, Progress: 50}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	final, err := buf.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if final != nil {
		t.Errorf("expected no trailing tail, got %v", final)
	}
}

func TestLineBufferFlushesUnterminatedTailOnClose(t *testing.T) {
	var buf LineBuffer
	if _, err := buf.Write([]byte("no trailing newline")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	final, err := buf.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if final == nil {
		t.Fatal("expected a flushed tail item")
	}
	want := LogItem{Kind: KindLine, Line: "no trailing newline"}
	if diff := cmp.Diff(want, *final); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
