// Package odometry accumulates the distance travelled by the wheels and
// persists it across power cycles.
package odometry

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Defaults
const (
	DefaultInterval    = 100 * time.Millisecond
	DefaultLogInterval = 10 * time.Second
	DefaultFile        = "distance.txt"
)

// Files is the persistent storage the tracker saves to.
type Files interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// Options configures a Tracker.
type Options struct {
	Right robot.Encoder
	Left  robot.Encoder

	// Files may be nil, in which case nothing is persisted.
	Files Files

	Clock  clock.Clock
	Logger *slog.Logger

	MMPerTick   float64
	Interval    time.Duration
	LogInterval time.Duration
	File        string
}

// Tracker integrates absolute encoder movement. Direction is ignored, so a
// wheel rocking back and forth still adds distance.
type Tracker struct {
	opts   Options
	logger *slog.Logger

	leftMM, rightMM float64
	lastLeft        int64
	lastRight       int64
	lastUpdate      time.Time
	lastLog         time.Time

	// meters mirrors the average for readers outside the control loop.
	meters atomic.Uint64
}

// New creates a Tracker. Call Load before the first Update.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = DefaultLogInterval
	}
	if opts.File == "" {
		opts.File = DefaultFile
	}
	now := opts.Clock.Now()
	return &Tracker{
		opts:       opts,
		logger:     opts.Logger.With("component", "odometry"),
		lastUpdate: now,
		lastLog:    now,
	}
}

// Load restores the saved total and rebases on the current encoder counts.
// A missing file starts from zero.
func (t *Tracker) Load() error {
	var err error
	if t.opts.Files != nil {
		err = t.load()
	}
	t.lastLeft = t.opts.Left.Read()
	t.lastRight = t.opts.Right.Read()
	t.lastUpdate = t.opts.Clock.Now()
	return err
}

func (t *Tracker) load() error {
	data, err := t.opts.Files.ReadFile(t.opts.File)
	if errors.Is(err, fs.ErrNotExist) {
		t.logger.Info("no saved distance", "file", t.opts.File)
		return nil
	}
	if err != nil {
		return err
	}
	line, _, _ := bytes.Cut(data, []byte("\n"))
	meters, perr := strconv.ParseFloat(string(bytes.TrimSpace(line)), 64)
	if perr != nil {
		t.logger.Warn("unreadable saved distance, starting from zero", "error", perr)
		meters = 0
	}
	t.leftMM = meters * 1000
	t.rightMM = meters * 1000
	t.publish()
	t.logger.Info("distance loaded", "meters", meters)
	return nil
}

// Update folds in encoder movement once per interval.
func (t *Tracker) Update() {
	now := t.opts.Clock.Now()
	if now.Sub(t.lastUpdate) < t.opts.Interval {
		return
	}
	t.fold()
	t.lastUpdate = now
}

// Rebase folds in movement since the last update, runs reset, and takes
// the counts after it as the new base, so a reset never reads as travel.
func (t *Tracker) Rebase(reset func()) {
	t.fold()
	reset()
	t.lastLeft = t.opts.Left.Read()
	t.lastRight = t.opts.Right.Read()
}

func (t *Tracker) fold() {
	left := t.opts.Left.Read()
	right := t.opts.Right.Read()

	t.leftMM += math.Abs(float64(left-t.lastLeft)) * t.opts.MMPerTick
	t.rightMM += math.Abs(float64(right-t.lastRight)) * t.opts.MMPerTick
	t.publish()

	t.lastLeft = left
	t.lastRight = right
}

func (t *Tracker) publish() {
	t.meters.Store(math.Float64bits((t.leftMM + t.rightMM) / 2 / 1000))
}

// DistanceMeters returns the average distance of both wheels in meters.
// It is safe to call from any goroutine.
func (t *Tracker) DistanceMeters() float64 {
	return math.Float64frombits(t.meters.Load())
}

// CheckAndSave persists the total once per log interval while no animation
// is playing.
func (t *Tracker) CheckAndSave(animating bool) {
	now := t.opts.Clock.Now()
	if animating || now.Sub(t.lastLog) < t.opts.LogInterval {
		return
	}
	t.lastLog = now
	if err := t.Save(); err != nil {
		t.logger.Warn("failed to save distance", "error", err)
		return
	}
	t.logger.Debug("distance auto-saved")
}

// Save writes the total in meters with two decimals.
func (t *Tracker) Save() error {
	if t.opts.Files == nil {
		return nil
	}
	m := t.DistanceMeters()
	if err := t.opts.Files.WriteFile(t.opts.File, []byte(strconv.FormatFloat(m, 'f', 2, 64))); err != nil {
		return err
	}
	t.logger.Info("distance saved", "meters", m)
	return nil
}
