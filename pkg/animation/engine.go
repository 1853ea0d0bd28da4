// Package animation streams recorded motion files into actuator commands.
//
// An animation file is line oriented, one Frame per line. The Engine reads the
// file through a fixed-capacity read-ahead Buffer, assembles lines in a
// fixed-capacity LineBuffer and applies one frame per frame period: the head
// position goes straight to the servo, the wheel tokens go to the shared
// robot.State for the motor loop to pick up on its next tick.
package animation

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Defaults
const (
	DefaultFramePeriod = 33 * time.Millisecond
	DefaultBufferSize  = 512
	DefaultLineSize    = 64
	DefaultHeadMin     = 500
	DefaultHeadMax     = 2500
)

// PlaybackState is the engine state.
type PlaybackState int

const (
	// StateIdle means no animation is open.
	StateIdle PlaybackState = iota

	// StatePlaying means frames are being applied.
	StatePlaying
)

// String returns a human-readable state name.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Source opens animation files.
type Source interface {
	Open(name string) (io.ReadCloser, error)
}

// Options configures an Engine.
type Options struct {
	Source Source
	Head   robot.Servo
	Wheels robot.Wheels
	State  *robot.State
	Clock  clock.Clock
	Logger *slog.Logger

	FramePeriod time.Duration
	BufferSize  int
	// LineSize includes one byte of slack; lines keep at most LineSize-1 bytes.
	LineSize int
	HeadMin  int
	HeadMax  int
}

// Status describes the current session.
type Status struct {
	State   PlaybackState `json:"-"`
	Playing bool          `json:"playing"`
	Path    string        `json:"path,omitempty"`
	Session string        `json:"session,omitempty"`
	Frames  int           `json:"frames"`
	Dropped int           `json:"dropped"`
}

// Engine plays one animation at a time.
type Engine struct {
	source Source
	head   robot.Servo
	wheels robot.Wheels
	state  *robot.State
	clock  clock.Clock
	logger *slog.Logger

	period  time.Duration
	headMin int
	headMax int

	buf  *Buffer
	line *LineBuffer

	file      io.ReadCloser
	playing   bool
	skipping  bool
	path      string
	session   uuid.UUID
	lastFrame time.Time
	frames    int
	dropped   int
}

// NewEngine creates an idle engine.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FramePeriod <= 0 {
		opts.FramePeriod = DefaultFramePeriod
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.LineSize <= 1 {
		opts.LineSize = DefaultLineSize
	}
	if opts.HeadMin == 0 && opts.HeadMax == 0 {
		opts.HeadMin, opts.HeadMax = DefaultHeadMin, DefaultHeadMax
	}
	if opts.State == nil {
		opts.State = robot.NewState()
	}
	return &Engine{
		source:  opts.Source,
		head:    opts.Head,
		wheels:  opts.Wheels,
		state:   opts.State,
		clock:   opts.Clock,
		logger:  opts.Logger.With("component", "animation"),
		period:  opts.FramePeriod,
		headMin: opts.HeadMin,
		headMax: opts.HeadMax,
		buf:     NewBuffer(opts.BufferSize),
		line:    NewLineBuffer(opts.LineSize - 1),
	}
}

// Playing reports whether an animation is active.
func (e *Engine) Playing() bool {
	return e.playing
}

// Status returns a snapshot of the session.
func (e *Engine) Status() Status {
	s := Status{State: StateIdle, Frames: e.frames, Dropped: e.dropped}
	if e.playing {
		s.State = StatePlaying
		s.Playing = true
		s.Path = e.path
		s.Session = e.session.String()
	}
	return s
}

// Start opens path and begins playback. A session already playing is stopped
// first. An open failure is logged and leaves the engine idle.
func (e *Engine) Start(path string) error {
	if e.playing {
		e.Stop()
	}
	if e.source == nil {
		e.logger.Warn("failed to open animation", "path", path, "error", ErrNoSource)
		return ErrNoSource
	}

	f, err := e.source.Open(path)
	if err != nil {
		e.logger.Warn("failed to open animation", "path", path, "error", err)
		return fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}

	e.file = f
	e.playing = true
	e.skipping = false
	e.path = path
	e.session = uuid.New()
	e.lastFrame = time.Time{}
	e.frames, e.dropped = 0, 0
	e.buf.Reset()
	e.line.Reset()
	e.wheels.ZeroEncoders()

	if e.state.MotionEnabled && e.head != nil {
		if err := e.head.Attach(); err != nil {
			e.logger.Warn("head attach failed", "error", err)
		}
	}

	e.logger.Info("animation started", "path", path, "session", e.session)
	return nil
}

// Stop ends playback. It is a no-op when idle.
func (e *Engine) Stop() {
	if !e.playing {
		return
	}

	if e.head != nil {
		if err := e.head.Detach(); err != nil {
			e.logger.Warn("head detach failed", "error", err)
		}
	}
	if err := e.file.Close(); err != nil {
		e.logger.Debug("close failed", "path", e.path, "error", err)
	}
	e.file = nil
	e.wheels.ZeroEncoders()
	if err := e.wheels.Halt(); err != nil {
		e.logger.Warn("motor halt failed", "error", err)
	}

	e.playing = false
	e.state.Setpoints.Reset()
	e.buf.Reset()
	e.line.Reset()

	e.logger.Info("animation stopped", "path", e.path, "session", e.session, "frames", e.frames, "dropped", e.dropped)
}

// Tick applies the next frame once the frame period has elapsed. End of
// file stops playback.
func (e *Engine) Tick() {
	if !e.playing {
		return
	}

	now := e.clock.Now()
	if !e.lastFrame.IsZero() && now.Sub(e.lastFrame) < e.period {
		return
	}

	line, ok := e.readLine()
	if !ok {
		e.Stop()
		return
	}
	e.lastFrame = now

	frame, err := ParseFrame(line)
	if err != nil {
		e.dropped++
		e.logger.Debug("frame dropped", "line", string(line), "error", err)
		return
	}
	e.frames++
	e.apply(frame)
}

func (e *Engine) apply(f Frame) {
	if len(f.Right) <= robot.MaxTokenLen {
		e.state.Setpoints.Right = f.Right
	}
	if len(f.Left) <= robot.MaxTokenLen {
		e.state.Setpoints.Left = f.Left
	}

	if e.state.MotionEnabled && f.Head >= e.headMin && f.Head <= e.headMax && e.head != nil {
		if err := e.head.WriteMicroseconds(f.Head); err != nil {
			e.logger.Debug("head write failed", "error", err)
		}
	}
}

// next returns the next byte of the file, refilling the read-ahead buffer
// when it is exhausted. ok is false at end of file or on a read error.
func (e *Engine) next() (byte, bool) {
	if c, ok := e.buf.Next(); ok {
		return c, true
	}
	n, err := e.buf.Fill(e.file)
	if err != nil {
		e.logger.Warn("animation read failed", "path", e.path, "error", err)
		return 0, false
	}
	if n == 0 {
		return 0, false
	}
	return e.buf.Next()
}

// readLine assembles the next line without its terminator, dropping
// carriage returns. A line longer than the line buffer is cut and the rest of
// it is discarded before the following line. A final line without a newline
// is still returned.
func (e *Engine) readLine() ([]byte, bool) {
	for e.skipping {
		c, ok := e.next()
		if !ok {
			return nil, false
		}
		if c == '\n' {
			e.skipping = false
		}
	}

	e.line.Reset()
	for {
		c, ok := e.next()
		if !ok {
			if e.line.Len() > 0 {
				return e.line.Bytes(), true
			}
			return nil, false
		}
		switch c {
		case '\n':
			return e.line.Bytes(), true
		case '\r':
			continue
		}
		e.line.Append(c)
		if e.line.Full() {
			e.skipping = true
			return e.line.Bytes(), true
		}
	}
}
