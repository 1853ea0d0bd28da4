package animation

import (
	"errors"
	"io"
)

// Buffer is a fixed-capacity read-ahead buffer over a stream.
type Buffer struct {
	data []byte
	pos  int
	n    int
}

// NewBuffer allocates a buffer of size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// Cap returns the capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return b.n - b.pos
}

// Fill replaces the contents with at most Cap bytes read from r in a single
// call. It returns the number of bytes now available. io.EOF with zero bytes
// is reported as (0, nil).
func (b *Buffer) Fill(r io.Reader) (int, error) {
	n, err := r.Read(b.data)
	if n < 0 {
		n = 0
	}
	b.pos, b.n = 0, n
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Next returns the next unread byte.
func (b *Buffer) Next() (byte, bool) {
	if b.pos >= b.n {
		return 0, false
	}
	c := b.data[b.pos]
	b.pos++
	return c, true
}

// Reset discards all content.
func (b *Buffer) Reset() {
	b.pos, b.n = 0, 0
}

// LineBuffer accumulates one line up to a fixed capacity.
type LineBuffer struct {
	data []byte
	n    int
}

// NewLineBuffer allocates room for size bytes.
func NewLineBuffer(size int) *LineBuffer {
	return &LineBuffer{data: make([]byte, size)}
}

// Append adds c and reports false if the buffer was already full.
func (l *LineBuffer) Append(c byte) bool {
	if l.n >= len(l.data) {
		return false
	}
	l.data[l.n] = c
	l.n++
	return true
}

// Full reports whether no more bytes fit.
func (l *LineBuffer) Full() bool {
	return l.n >= len(l.data)
}

// Len returns the number of buffered bytes.
func (l *LineBuffer) Len() int {
	return l.n
}

// Bytes returns the buffered line. The slice is valid until the next Reset.
func (l *LineBuffer) Bytes() []byte {
	return l.data[:l.n]
}

// Reset empties the line.
func (l *LineBuffer) Reset() {
	l.n = 0
}
