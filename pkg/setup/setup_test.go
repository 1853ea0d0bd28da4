package setup

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

type recorder struct {
	lines []string
}

func (r *recorder) Emit(m protocol.Message) {
	r.lines = append(r.lines, m.String())
}

func TestFinish_Clean(t *testing.T) {
	r := New(nil)
	r.Record("storage", nil)
	out := &recorder{}
	light := &robot.SimLight{}

	if !r.Finish(out, light) {
		t.Fatal("Finish() = false, want true")
	}
	if len(out.lines) != 1 || out.lines[0] != "msg s/1" {
		t.Errorf("emitted %v, want [msg s/1]", out.lines)
	}
	if light.Mode() != robot.LightSuccess {
		t.Errorf("light = %v, want success", light.Mode())
	}
}

func TestFinish_WithErrors(t *testing.T) {
	errCard := errors.New("no card")
	r := New(nil)
	r.Record("storage", errCard)
	r.Record("gauge", errors.New("no ack"))
	out := &recorder{}
	light := &robot.SimLight{}

	if r.Finish(out, light) {
		t.Fatal("Finish() = true, want false")
	}
	if len(out.lines) != 0 {
		t.Errorf("emitted %v, want nothing", out.lines)
	}
	if light.Mode() != robot.LightError {
		t.Errorf("light = %v, want error", light.Mode())
	}
	if n := len(r.Errors()); n != 2 {
		t.Errorf("Errors() has %d entries, want 2", n)
	}
	if !errors.Is(r.Err(), errCard) {
		t.Error("Err() does not wrap the storage failure")
	}
}

func TestFinish_NilLight(t *testing.T) {
	out := &recorder{}
	if !New(nil).Finish(out, nil) {
		t.Fatal("Finish() = false")
	}
}
