package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for a recognised command whose payload cannot be used.
var ErrMalformed = errors.New("protocol: malformed command")

// CommandKind identifies an inbound command
type CommandKind int

const (
	CmdUnknown        CommandKind = iota // Unrecognised leading byte, ignored
	CmdStartAnimation                    // a/<path>
	CmdStopAnimation                     // x
	CmdRequestBattery                    // b
	CmdRequestSensors                    // d
	CmdVerifyLink                        // v
	CmdRotate                            // t/<turns>/<direction>
	CmdPassthrough                       // c/... handled by another subsystem
)

var kindNames = map[CommandKind]string{
	CmdUnknown:        "unknown",
	CmdStartAnimation: "start_animation",
	CmdStopAnimation:  "stop_animation",
	CmdRequestBattery: "request_battery",
	CmdRequestSensors: "request_sensors",
	CmdVerifyLink:     "verify_link",
	CmdRotate:         "rotate",
	CmdPassthrough:    "passthrough",
}

func (k CommandKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is one decoded inbound command.
type Command struct {
	Kind CommandKind

	// Path is set for CmdStartAnimation.
	Path string

	// Turns and Direction are set for CmdRotate. Direction is +1 or -1.
	Turns     int
	Direction int
}

// PassthroughPrefix marks frames owned by another subsystem.
var PassthroughPrefix = []byte("c/")

// Decode decodes the command at the start of chunk. Bytes after the command
// are ignored. Unknown leading bytes decode to CmdUnknown without error.
func Decode(chunk []byte) (Command, error) {
	if len(chunk) == 0 {
		return Command{Kind: CmdUnknown}, nil
	}
	if bytes.HasPrefix(chunk, PassthroughPrefix) {
		return Command{Kind: CmdPassthrough}, nil
	}

	switch chunk[0] {
	case 'a':
		return decodeAnimation(chunk)
	case 'x':
		return Command{Kind: CmdStopAnimation}, nil
	case 'b':
		return Command{Kind: CmdRequestBattery}, nil
	case 'd':
		return Command{Kind: CmdRequestSensors}, nil
	case 'v':
		return Command{Kind: CmdVerifyLink}, nil
	case 't':
		return decodeRotate(chunk)
	default:
		return Command{Kind: CmdUnknown}, nil
	}
}

func decodeAnimation(chunk []byte) (Command, error) {
	i := bytes.IndexByte(chunk, '/')
	if i < 0 {
		return Command{}, fmt.Errorf("%w: animation without path", ErrMalformed)
	}
	path := chunk[i+1:]
	for j, c := range path {
		if !printable(c) {
			path = path[:j]
			break
		}
	}
	if len(path) == 0 {
		return Command{}, fmt.Errorf("%w: empty animation path", ErrMalformed)
	}
	return Command{Kind: CmdStartAnimation, Path: string(path)}, nil
}

func decodeRotate(chunk []byte) (Command, error) {
	i := bytes.IndexByte(chunk, '/')
	if i < 0 {
		return Command{}, fmt.Errorf("%w: rotation without turns", ErrMalformed)
	}
	rest := chunk[i+1:]
	j := bytes.IndexByte(rest, '/')
	if j < 0 {
		return Command{}, fmt.Errorf("%w: rotation without direction", ErrMalformed)
	}

	cmd := Command{
		Kind:      CmdRotate,
		Turns:     LeadingInt(rest),
		Direction: -1,
	}
	if LeadingInt(rest[j+1:]) > 0 {
		cmd.Direction = 1
	}
	return cmd, nil
}

func printable(c byte) bool {
	return c >= 0x20 && c < 0x7f
}

// LeadingInt parses an optionally signed decimal integer at the start of b,
// after any leading spaces or tabs, and stops at the first non-digit.
// It returns 0 when no digits are present and saturates at math.MaxInt32.
func LeadingInt(b []byte) int {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		neg = b[i] == '-'
		i++
	}
	var n int64
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + int64(b[i]-'0')
		if n > math.MaxInt32 {
			n = math.MaxInt32
		}
	}
	if neg {
		return -int(n)
	}
	return int(n)
}
