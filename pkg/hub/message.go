// Package hub fans telemetry events out to websocket subscribers. Each
// subscriber may restrict itself to some event kinds, and new subscribers
// first receive the most recent events they would have seen.
package hub

// Message is one encoded event.
type Message struct {
	Kind string
	Data []byte
}
