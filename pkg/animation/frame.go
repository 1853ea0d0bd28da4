package animation

import (
	"bytes"
	"errors"

	"github.com/teslashibe/go-playbot/pkg/protocol"
)

// ErrIncompleteFrame is returned for a line missing one of its four fields.
var ErrIncompleteFrame = errors.New("animation: incomplete frame")

// Frame is one line of an animation file:
// index/headPositionMicroseconds/rightWheelToken/leftWheelToken
type Frame struct {
	Index int
	Head  int
	Right string
	Left  string
}

// ParseFrame parses a line. Wheel tokens are kept verbatim.
func ParseFrame(line []byte) (Frame, error) {
	var fields [4][]byte
	rest := line
	for i := 0; i < 3; i++ {
		j := bytes.IndexByte(rest, '/')
		if j < 0 {
			return Frame{}, ErrIncompleteFrame
		}
		fields[i] = rest[:j]
		rest = rest[j+1:]
	}
	fields[3] = rest

	if len(fields[2]) == 0 || len(fields[3]) == 0 {
		return Frame{}, ErrIncompleteFrame
	}

	return Frame{
		Index: protocol.LeadingInt(fields[0]),
		Head:  protocol.LeadingInt(fields[1]),
		Right: string(fields[2]),
		Left:  string(fields[3]),
	}, nil
}
