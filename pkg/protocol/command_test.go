package protocol

import (
	"errors"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{"empty", "", Command{Kind: CmdUnknown}},
		{"stop", "x", Command{Kind: CmdStopAnimation}},
		{"stop with newline", "x\r\n", Command{Kind: CmdStopAnimation}},
		{"battery", "b", Command{Kind: CmdRequestBattery}},
		{"sensors", "d", Command{Kind: CmdRequestSensors}},
		{"verify", "v", Command{Kind: CmdVerifyLink}},
		{"animation", "a/clips/wave.txt", Command{Kind: CmdStartAnimation, Path: "clips/wave.txt"}},
		{"animation trailing crlf", "a/dance.txt\r\n", Command{Kind: CmdStartAnimation, Path: "dance.txt"}},
		{"animation embedded nul", "a/one.txt\x00junk", Command{Kind: CmdStartAnimation, Path: "one.txt"}},
		{"rotate clockwise", "t/2/1", Command{Kind: CmdRotate, Turns: 2, Direction: 1}},
		{"rotate counter", "t/3/-1\n", Command{Kind: CmdRotate, Turns: 3, Direction: -1}},
		{"rotate zero direction", "t/1/0", Command{Kind: CmdRotate, Turns: 1, Direction: -1}},
		{"rotate zero turns", "t/0/1", Command{Kind: CmdRotate, Turns: 0, Direction: 1}},
		{"rotate negative turns", "t/-2/1", Command{Kind: CmdRotate, Turns: -2, Direction: 1}},
		{"passthrough", "c/anything/at/all", Command{Kind: CmdPassthrough}},
		{"passthrough looks like command", "c/a/x", Command{Kind: CmdPassthrough}},
		{"c without slash is unknown", "cx", Command{Kind: CmdUnknown}},
		{"unknown letter", "z/1/2", Command{Kind: CmdUnknown}},
		{"unknown binary", "\xff\x00", Command{Kind: CmdUnknown}},
		{"uppercase is unknown", "A/file", Command{Kind: CmdUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, input := range []string{"a", "a/", "a/\n", "t", "t/2", "t/2\n"} {
		t.Run(input, func(t *testing.T) {
			_, err := Decode([]byte(input))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformed", input, err)
			}
		})
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"42", 42},
		{"  7/1", 7},
		{"-13abc", -13},
		{"+5", 5},
		{"abc", 0},
		{"-", 0},
		{"99999999999999", math.MaxInt32},
	}
	for _, tt := range tests {
		if got := LeadingInt([]byte(tt.in)); got != tt.want {
			t.Errorf("LeadingInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCommandKind_String(t *testing.T) {
	if CmdRotate.String() != "rotate" {
		t.Errorf("CmdRotate = %q", CmdRotate.String())
	}
	if CommandKind(99).String() != "CommandKind(99)" {
		t.Errorf("unexpected %q", CommandKind(99).String())
	}
}
