// Package motor runs the closed-loop wheel control and the rotate-in-place
// maneuver.
//
// Each control tick the loop reads both encoders, picks up the animation's
// wheel tokens as PID setpoints, advances both PID loops and writes the
// outputs to the motor driver. A rotation is a polled state machine advanced
// on the same tick, so sensor checks keep running while the robot turns.
package motor

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/felixge/pidctrl"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Defaults
const (
	DefaultLimit         = 1023
	DefaultSample        = time.Millisecond
	DefaultRotationSpeed = 200
	DefaultTicksPerTurn  = 1854
)

var (
	// ErrInvalidTurns is returned for a rotation of zero or fewer turns.
	ErrInvalidTurns = errors.New("motor: turns must be positive")

	// ErrMotionDisabled is returned for a rotation requested while charging.
	ErrMotionDisabled = errors.New("motor: motion disabled")
)

// Gains are the PID tuning constants shared by both wheels.
type Gains struct {
	Kp, Ki, Kd float64
}

// Options configures a Controller.
type Options struct {
	Wheels  robot.Wheels
	State   *robot.State
	Emitter protocol.Emitter
	Clock   clock.Clock
	Logger  *slog.Logger

	Gains  Gains
	Limit  float64
	Sample time.Duration

	RotationSpeed      int
	TicksPerTurn       int
	Motor1Compensation float64
	Motor2Compensation float64
}

// loop is one wheel's PID state.
type loop struct {
	pid        *pidctrl.PIDController
	input      float64
	setpoint   float64
	output     float64
	lastSample time.Time
}

func newLoop(g Gains, limit float64) *loop {
	pid := pidctrl.NewPIDController(g.Kp, g.Ki, g.Kd)
	pid.SetOutputLimits(-limit, limit)
	return &loop{pid: pid}
}

// compute advances the PID once at least sample has elapsed since the last
// update; otherwise the previous output is kept.
func (l *loop) compute(now time.Time, sample time.Duration) {
	dt := sample
	if !l.lastSample.IsZero() {
		dt = now.Sub(l.lastSample)
		if dt < sample {
			return
		}
	}
	l.lastSample = now
	l.pid.Set(l.setpoint)
	l.output = l.pid.UpdateDuration(l.input, dt)
}

// Controller owns both wheel loops and the rotation task.
type Controller struct {
	wheels  robot.Wheels
	state   *robot.State
	emitter protocol.Emitter
	clock   clock.Clock
	logger  *slog.Logger

	sample time.Duration
	speed  int
	ticks  int
	comp1  float64
	comp2  float64

	right   *loop
	left    *loop
	playing bool

	rotation rotationTask
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.State == nil {
		opts.State = robot.NewState()
	}
	if opts.Emitter == nil {
		opts.Emitter = protocol.EmitterFunc(func(protocol.Message) {})
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Sample <= 0 {
		opts.Sample = DefaultSample
	}
	if opts.RotationSpeed == 0 {
		opts.RotationSpeed = DefaultRotationSpeed
	}
	if opts.TicksPerTurn <= 0 {
		opts.TicksPerTurn = DefaultTicksPerTurn
	}
	if opts.Motor1Compensation == 0 {
		opts.Motor1Compensation = 1
	}
	if opts.Motor2Compensation == 0 {
		opts.Motor2Compensation = 1
	}
	return &Controller{
		wheels:  opts.Wheels,
		state:   opts.State,
		emitter: opts.Emitter,
		clock:   opts.Clock,
		logger:  opts.Logger.With("component", "motor"),
		sample:  opts.Sample,
		speed:   opts.RotationSpeed,
		ticks:   opts.TicksPerTurn,
		comp1:   opts.Motor1Compensation,
		comp2:   opts.Motor2Compensation,
		right:   newLoop(opts.Gains, opts.Limit),
		left:    newLoop(opts.Gains, opts.Limit),
	}
}

// Tick runs one control cycle. While a rotation is in progress it owns the
// drivers and the PID outputs are not written. Losing motion permission
// cancels the rotation.
func (c *Controller) Tick(playing bool) {
	c.UpdateEncoders()
	c.ApplySetpoints(playing)
	c.ComputePID()
	if c.rotation.state == RotationRotating {
		if !c.state.MotionEnabled {
			c.CancelRotation()
			return
		}
		c.TickRotation()
		return
	}
	c.ApplyOutputs(playing)
}

// UpdateEncoders snapshots both encoder counts as PID inputs.
func (c *Controller) UpdateEncoders() {
	c.right.input = float64(c.wheels.Right.Read())
	c.left.input = float64(c.wheels.Left.Read())
}

// ApplySetpoints converts the wheel tokens to PID setpoints while an
// animation plays. The setpoints are zeroed once playback ends.
func (c *Controller) ApplySetpoints(playing bool) {
	if !playing {
		if c.playing {
			c.right.setpoint, c.left.setpoint = 0, 0
			c.playing = false
		}
		return
	}
	c.playing = true
	c.right.setpoint = TokenValue(c.state.Setpoints.Right)
	c.left.setpoint = TokenValue(c.state.Setpoints.Left)
}

// ComputePID advances both loops, each rate limited to the sample interval.
func (c *Controller) ComputePID() {
	now := c.clock.Now()
	c.right.compute(now, c.sample)
	c.left.compute(now, c.sample)
}

// ApplyOutputs writes the PID outputs to the drivers.
// Both setpoints at zero forces the drivers to zero. While playing with
// motion disabled the drivers are held at zero and the PID state is kept.
func (c *Controller) ApplyOutputs(playing bool) {
	if c.right.setpoint == 0 && c.left.setpoint == 0 {
		c.halt()
		return
	}
	if !playing {
		return
	}
	if !c.state.MotionEnabled {
		c.halt()
		return
	}
	c.drive(int(c.left.output*c.comp1), int(c.right.output*c.comp2))
}

// Outputs returns the latest PID outputs.
func (c *Controller) Outputs() (right, left float64) {
	return c.right.output, c.left.output
}

// Setpoints returns the current PID setpoints.
func (c *Controller) Setpoints() (right, left float64) {
	return c.right.setpoint, c.left.setpoint
}

func (c *Controller) drive(m1, m2 int) {
	if err := c.wheels.Motors.SetM1Speed(m1); err != nil {
		c.logger.Debug("M1 write failed", "error", err)
	}
	if err := c.wheels.Motors.SetM2Speed(m2); err != nil {
		c.logger.Debug("M2 write failed", "error", err)
	}
}

func (c *Controller) halt() {
	if err := c.wheels.Halt(); err != nil {
		c.logger.Debug("halt failed", "error", err)
	}
}

// TokenValue converts a wheel token to a number. Like the recorder that
// produced the files, it reads the longest leading decimal number and
// returns 0 when there is none.
func TokenValue(token string) float64 {
	end := 0
	if end < len(token) && (token[end] == '-' || token[end] == '+') {
		end++
	}
	digits := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
		digits++
	}
	if end < len(token) && token[end] == '.' {
		end++
		for end < len(token) && token[end] >= '0' && token[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(token[:end], 64)
	if err != nil {
		return 0
	}
	return v
}
