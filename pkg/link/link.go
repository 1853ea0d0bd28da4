// Package link manages the serial connection to the companion device.
//
// A read pump goroutine moves received bytes into a bounded pending buffer.
// The control loop takes at most one newline-terminated command of up to
// MaxRead bytes per Poll so a burst of input cannot starve the other
// components, and it writes outbound messages with Emit. Baud renegotiation is detected by polling a BaudSource and reopens
// the port at the new rate.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"

	"github.com/teslashibe/go-playbot/pkg/protocol"
)

// Link defaults
const (
	DefaultMaxRead   = 80
	PendingLimit     = 512
	DefaultFrameIdle = 50 * time.Millisecond

	// RequestedQuirkBaud cannot be generated exactly by the USB bridge;
	// SubstituteBaud is used in its place.
	RequestedQuirkBaud = 57600
	SubstituteBaud     = 58824
)

// ErrClosed is returned when writing to a closed or unopened link.
var ErrClosed = errors.New("link: not open")

// Opener opens the underlying port at a given baud rate.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// SerialOpener opens a real serial device, 8N1.
func SerialOpener(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", name, err)
	}
	return port, nil
}

// BaudSource reports the baud rate currently requested by the peer.
// A zero rate means "no request".
type BaudSource interface {
	Baud() (int, error)
}

// FileBaud reads the requested rate from a text file, such as a sysfs
// attribute exported by the USB gadget driver.
type FileBaud string

// Baud returns the integer in the file. A missing file reports no request.
func (f FileBaud) Baud() (int, error) {
	data, err := os.ReadFile(string(f))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// EffectiveBaud returns the rate the port is actually opened at for a
// requested rate.
func EffectiveBaud(requested int) int {
	if requested == RequestedQuirkBaud {
		return SubstituteBaud
	}
	return requested
}

// Options configures a Link.
type Options struct {
	Name    string
	Baud    int
	MaxRead int
	Opener  Opener

	// FrameIdle releases an unterminated fragment once no byte has
	// arrived for this long. Zero selects DefaultFrameIdle.
	FrameIdle time.Duration

	// Baud renegotiation; both optional.
	BaudSource   BaudSource
	BaudInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Link is the serial connection.
type Link struct {
	name    string
	maxRead int
	idle    time.Duration
	open    Opener
	src     BaudSource
	every   time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	baud     int
	lastPoll time.Time

	mu      sync.Mutex
	port    io.ReadWriteCloser
	pending []byte
	lastRx  time.Time
	discard bool // drop bytes through the next newline
	dropped int
	done    chan struct{}
}

// New creates a Link. Call Open before use.
func New(opts Options) *Link {
	if opts.MaxRead <= 0 {
		opts.MaxRead = DefaultMaxRead
	}
	if opts.FrameIdle <= 0 {
		opts.FrameIdle = DefaultFrameIdle
	}
	if opts.Opener == nil {
		opts.Opener = SerialOpener
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Link{
		name:    opts.Name,
		maxRead: opts.MaxRead,
		idle:    opts.FrameIdle,
		open:    opts.Opener,
		src:     opts.BaudSource,
		every:   opts.BaudInterval,
		clock:   opts.Clock,
		logger:  opts.Logger.With("component", "link"),
		baud:    opts.Baud,
		pending: make([]byte, 0, PendingLimit),
	}
}

// Open opens the port at the configured rate.
func (l *Link) Open() error {
	return l.reopen(l.baud)
}

// Baud returns the rate most recently requested.
func (l *Link) Baud() int {
	return l.baud
}

func (l *Link) reopen(requested int) error {
	l.closePort()

	effective := EffectiveBaud(requested)
	port, err := l.open(l.name, effective)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	l.mu.Lock()
	l.port = port
	l.done = done
	l.mu.Unlock()

	go l.readPump(port, done)
	l.logger.Info("link open", "port", l.name, "baud", effective)
	return nil
}

// readPump copies received bytes into the pending buffer until the port
// fails or is closed.
func (l *Link) readPump(port io.Reader, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 64)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			l.mu.Lock()
			room := PendingLimit - len(l.pending)
			if n > room {
				l.dropped += n - room
				n = room
			}
			l.pending = append(l.pending, buf[:n]...)
			l.lastRx = l.clock.Now()
			l.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debug("read pump stopped", "error", err)
			}
			return
		}
	}
}

// Poll moves the next command into dst and returns its length. A command
// ends at a newline, which is included. A line longer than MaxRead is
// returned truncated and its remainder discarded. A fragment without a
// newline is held until the line has been idle for FrameIdle. It never
// blocks.
func (l *Link) Poll(dst []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.discard {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			l.pending = l.pending[:0]
			return 0
		}
		l.consume(i + 1)
		l.discard = false
	}

	limit := min(l.maxRead, len(dst))
	if limit == 0 || len(l.pending) == 0 {
		return 0
	}
	window := l.pending[:min(len(l.pending), limit)]
	var n int
	switch i := bytes.IndexByte(window, '\n'); {
	case i >= 0:
		n = i + 1
	case len(l.pending) >= limit:
		n = limit
		l.discard = true
	case l.clock.Since(l.lastRx) >= l.idle:
		n = len(l.pending)
	default:
		return 0
	}
	copy(dst, l.pending[:n])
	l.consume(n)
	return n
}

// consume drops the first n pending bytes. Callers hold l.mu.
func (l *Link) consume(n int) {
	rest := copy(l.pending, l.pending[n:])
	l.pending = l.pending[:rest]
}

// Dropped returns how many received bytes were discarded because the
// pending buffer was full.
func (l *Link) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Write writes raw bytes to the port.
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return 0, ErrClosed
	}
	return port.Write(p)
}

// Emit writes one outbound message. Failures are logged and dropped.
func (l *Link) Emit(m protocol.Message) {
	if _, err := l.Write(m.Bytes()); err != nil {
		l.logger.Warn("emit failed", "message", m.String(), "error", err)
	}
}

// PollBaud checks the baud source at most once per BaudInterval and reopens
// the port when the peer requested a different non-zero rate.
func (l *Link) PollBaud() {
	if l.src == nil {
		return
	}
	now := l.clock.Now()
	if !l.lastPoll.IsZero() && now.Sub(l.lastPoll) < l.every {
		return
	}
	l.lastPoll = now

	cur, err := l.src.Baud()
	if err != nil {
		l.logger.Debug("baud poll failed", "error", err)
		return
	}
	if cur == 0 || cur == l.baud {
		return
	}

	l.logger.Info("baud rate changed", "from", l.baud, "to", cur)
	l.baud = cur
	if err := l.reopen(cur); err != nil {
		l.logger.Error("reopen failed", "baud", cur, "error", err)
	}
}

func (l *Link) closePort() {
	l.mu.Lock()
	port, done := l.port, l.done
	l.port, l.done = nil, nil
	l.pending = l.pending[:0]
	l.discard = false
	l.mu.Unlock()

	if port == nil {
		return
	}
	if err := port.Close(); err != nil {
		l.logger.Debug("close failed", "error", err)
	}
	<-done
}

// Close closes the port and waits for the read pump to exit.
func (l *Link) Close() error {
	l.closePort()
	return nil
}
