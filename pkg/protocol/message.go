// Package protocol defines the line protocol spoken with the companion device.
//
// Inbound commands are a single type byte optionally followed by
// '/'-separated fields. Outbound messages are newline-terminated lines of the
// form "msg <type>/<field>/<field>...".
package protocol

import (
	"strings"
)

// MessageType identifies an outbound message
type MessageType byte

const (
	TypeBattery   MessageType = 'b' // Battery status
	TypePower     MessageType = 'p' // Charger plugged/unplugged
	TypeStatus    MessageType = 's' // Link ack and setup success
	TypeSensors   MessageType = 'd' // Sensor bundle
	TypeRotation  MessageType = 'r' // Rotation complete
	TypeEdge      MessageType = 'e' // Table edge detected
	TypeCollision MessageType = 'w' // Front collision latched
	TypeLight     MessageType = 'l' // Darkness transition
)

// Marker starts every outbound line.
const Marker = "msg "

// String returns the single-letter wire name.
func (t MessageType) String() string {
	return string(rune(t))
}

// Message is one outbound status or event line.
type Message struct {
	Type   MessageType
	Fields []string
}

// String renders the message without the trailing newline.
func (m Message) String() string {
	var b strings.Builder
	b.Grow(len(Marker) + 2 + 8*len(m.Fields))
	b.WriteString(Marker)
	b.WriteByte(byte(m.Type))
	b.WriteByte('/')
	b.WriteString(strings.Join(m.Fields, "/"))
	return b.String()
}

// Bytes renders the message as a newline-terminated line.
func (m Message) Bytes() []byte {
	return []byte(m.String() + "\n")
}

// Emitter accepts outbound messages.
type Emitter interface {
	Emit(m Message)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Message)

// Emit calls f(m).
func (f EmitterFunc) Emit(m Message) { f(m) }

// Fanout emits every message to each of its emitters in order.
type Fanout []Emitter

// Emit forwards m to every non-nil emitter.
func (f Fanout) Emit(m Message) {
	for _, e := range f {
		if e != nil {
			e.Emit(m)
		}
	}
}
