package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RecentCapacity is the number of records kept for Recent and Drain.
const RecentCapacity = 50

var recent = newRing(RecentCapacity)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// String renders the entry like the firmware debug console did.
func (e Entry) String() string {
	return fmt.Sprintf("DEBUG [%s]: %s", e.Level, e.Message)
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]Entry, capacity)}
}

func (r *ring) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % len(r.entries)
	r.entries[idx] = e
	if r.count < len(r.entries) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.entries)
	}
}

func (r *ring) snapshot(clear bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%len(r.entries)])
	}
	if clear {
		r.start, r.count = 0, 0
	}
	return out
}

// Recent returns the buffered records, oldest first.
func Recent() []Entry {
	return recent.snapshot(false)
}

// Drain returns the buffered records and empties the ring.
func Drain() []Entry {
	return recent.snapshot(true)
}

// ringHandler copies every record into the ring before delegating.
type ringHandler struct {
	slog.Handler
	ring  *ring
	attrs []slog.Attr
}

func (h *ringHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	h.ring.push(Entry{Time: r.Time, Level: r.Level.String(), Message: b.String()})
	return h.Handler.Handle(ctx, r)
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ringHandler{Handler: h.Handler.WithAttrs(attrs), ring: h.ring, attrs: merged}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	return &ringHandler{Handler: h.Handler.WithGroup(name), ring: h.ring, attrs: h.attrs}
}
