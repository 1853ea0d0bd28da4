package animation

import (
	"errors"
	"strings"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		line string
		want Frame
		err  error
	}{
		{"12/1500/100/-100", Frame{Index: 12, Head: 1500, Right: "100", Left: "-100"}, nil},
		{"0/0/0/0", Frame{Right: "0", Left: "0"}, nil},
		{"3/x/1.5/2.5", Frame{Index: 3, Right: "1.5", Left: "2.5"}, nil},
		{"1/1500/100/5/extra", Frame{Index: 1, Head: 1500, Right: "100", Left: "5/extra"}, nil},
		{"", Frame{}, ErrIncompleteFrame},
		{"1", Frame{}, ErrIncompleteFrame},
		{"1/1500", Frame{}, ErrIncompleteFrame},
		{"1/1500/100", Frame{}, ErrIncompleteFrame},
		{"1/1500//100", Frame{}, ErrIncompleteFrame},
		{"1/1500/100/", Frame{}, ErrIncompleteFrame},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.line))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseFrame() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuffer_FillAndNext(t *testing.T) {
	b := NewBuffer(4)
	r := strings.NewReader("abcdef")

	if n, err := b.Fill(r); n != 4 || err != nil {
		t.Fatalf("Fill = %d, %v", n, err)
	}
	var got []byte
	for {
		c, ok := b.Next()
		if !ok {
			break
		}
		got = append(got, c)
	}
	if string(got) != "abcd" {
		t.Errorf("got %q", got)
	}
	b.Fill(r)
	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}
	if n, err := b.Fill(r); n != 0 || err != nil {
		t.Errorf("Fill at EOF = %d, %v; want 0, nil", n, err)
	}
}

func TestLineBuffer_Capacity(t *testing.T) {
	l := NewLineBuffer(3)
	for _, c := range []byte("abcd") {
		l.Append(c)
	}
	if string(l.Bytes()) != "abc" || !l.Full() {
		t.Errorf("Bytes = %q, Full = %v", l.Bytes(), l.Full())
	}
	if l.Append('z') {
		t.Error("Append on full buffer should report false")
	}
	l.Reset()
	if l.Len() != 0 {
		t.Error("Reset did not empty the line")
	}
}
