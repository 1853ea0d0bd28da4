package log

import (
	"strings"
	"testing"
)

func TestRing_KeepsNewest(t *testing.T) {
	r := newRing(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		r.push(Entry{Message: m})
	}

	got := r.snapshot(false)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, got[i].Message, want)
		}
	}
}

func TestRing_DrainClears(t *testing.T) {
	r := newRing(4)
	r.push(Entry{Message: "x"})
	if n := len(r.snapshot(true)); n != 1 {
		t.Fatalf("drained %d, want 1", n)
	}
	if n := len(r.snapshot(false)); n != 0 {
		t.Errorf("after drain %d entries remain", n)
	}
	r.push(Entry{Message: "y"})
	if got := r.snapshot(false); len(got) != 1 || got[0].Message != "y" {
		t.Errorf("after refill got %+v", got)
	}
}

func TestNew_CapturesRecords(t *testing.T) {
	Drain()
	l := New(Options{Level: "debug"}).With("component", "test")
	l.Info("hello", "n", 3)

	entries := Recent()
	if len(entries) == 0 {
		t.Fatal("no entries captured")
	}
	last := entries[len(entries)-1]
	if last.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", last.Level)
	}
	for _, want := range []string{"hello", "component=test", "n=3"} {
		if !strings.Contains(last.Message, want) {
			t.Errorf("Message %q missing %q", last.Message, want)
		}
	}
}

func TestNew_None(t *testing.T) {
	Drain()
	New(Options{Level: "none"}).Error("dropped")
	if n := len(Recent()); n != 0 {
		t.Errorf("none level captured %d entries", n)
	}
}

func TestNew_LevelFilter(t *testing.T) {
	Drain()
	l := New(Options{Level: "warn"})
	l.Info("skip")
	l.Warn("keep")

	entries := Recent()
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Message, "keep") {
		t.Errorf("entries = %+v, want only keep", entries)
	}
}
