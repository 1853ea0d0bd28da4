// Package control assembles the robot's components and runs them from a
// single cooperative loop.
//
// Every component does a bounded amount of work per tick and nothing in the
// loop blocks. The order within a tick is fixed: baud poll, one inbound
// command, sensors, animation, motors, battery, odometry, then the log
// drain.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/teslashibe/go-playbot/internal/config"
	"github.com/teslashibe/go-playbot/internal/log"
	"github.com/teslashibe/go-playbot/pkg/animation"
	"github.com/teslashibe/go-playbot/pkg/battery"
	"github.com/teslashibe/go-playbot/pkg/dispatch"
	"github.com/teslashibe/go-playbot/pkg/motor"
	"github.com/teslashibe/go-playbot/pkg/odometry"
	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
	"github.com/teslashibe/go-playbot/pkg/sensors"
)

const (
	// InjectQueue bounds commands waiting to be injected.
	InjectQueue = 16

	// SnapshotInterval is how often the telemetry snapshot is refreshed.
	SnapshotInterval = 100 * time.Millisecond
)

var (
	// ErrMissingDependency is returned by New when a required dependency
	// is nil.
	ErrMissingDependency = errors.New("control: missing dependency")

	// ErrQueueFull is returned by Inject when the queue is full.
	ErrQueueFull = errors.New("control: inject queue full")
)

// Link is the serial connection to the companion device.
type Link interface {
	protocol.Emitter
	Poll(dst []byte) int
	PollBaud()
}

// Store holds animation files and the odometry log.
type Store interface {
	animation.Source
	odometry.Files
}

// LogSink receives drained log records.
type LogSink func([]log.Entry)

// Deps are the handles owned by the top-level assembly.
type Deps struct {
	Hardware *robot.Hardware
	Link     Link
	// Store may be nil; animations then fail to open and nothing persists.
	Store Store

	// Events also receives every outbound message. Optional.
	Events protocol.Emitter
	// Logs receives the log ring once per send interval. Optional.
	Logs LogSink
	// OnTick runs at the end of every tick. Optional.
	OnTick func()

	Clock  clock.Clock
	Logger *slog.Logger
}

// Snapshot is a copy of the loop state for readers on other goroutines.
type Snapshot struct {
	Time           time.Time            `json:"time"`
	Ticks          uint64               `json:"ticks"`
	MotionEnabled  bool                 `json:"motion_enabled"`
	Animation      animation.Status     `json:"animation"`
	Rotation       motor.RotationStatus `json:"rotation"`
	Outputs        Outputs              `json:"outputs"`
	Sensors        sensors.Snapshot     `json:"sensors"`
	Battery        battery.Status       `json:"battery"`
	DistanceMeters float64              `json:"distance_m"`
	Dispatch       dispatch.Stats       `json:"dispatch"`
}

// Outputs are the latest PID outputs.
type Outputs struct {
	Right float64 `json:"right"`
	Left  float64 `json:"left"`
}

// Loop is the control loop and the components it drives.
type Loop struct {
	Animation  *animation.Engine
	Motor      *motor.Controller
	Sensors    *sensors.Engine
	Battery    *battery.Monitor
	Odometry   *odometry.Tracker
	Dispatcher *dispatch.Dispatcher

	state   *robot.State
	hw      *robot.Hardware
	link    Link
	emitter protocol.Emitter
	logs    LogSink
	onTick  func()
	clock   clock.Clock
	logger  *slog.Logger

	period      time.Duration
	logInterval time.Duration

	chunk  []byte
	inject chan []byte

	ticks        uint64
	lastLogSend  time.Time
	lastSnapshot time.Time
	lastBattery  time.Time
	battery      battery.Status
	snapshot     atomic.Pointer[Snapshot]
}

// New wires every component from cfg.
func New(cfg config.Config, deps Deps) (*Loop, error) {
	if deps.Hardware == nil {
		return nil, fmt.Errorf("%w: hardware", ErrMissingDependency)
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("%w: link", ErrMissingDependency)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	hw := deps.Hardware
	l := &Loop{
		state:       robot.NewState(),
		hw:          hw,
		link:        deps.Link,
		emitter:     protocol.Fanout{deps.Link, deps.Events},
		logs:        deps.Logs,
		onTick:      deps.OnTick,
		clock:       deps.Clock,
		logger:      deps.Logger.With("component", "control"),
		period:      cfg.LoopPeriod,
		logInterval: cfg.Log.SendInterval,
		chunk:       make([]byte, cfg.Link.MaxRead),
		inject:      make(chan []byte, InjectQueue),
	}
	if l.period <= 0 {
		l.period = time.Millisecond
	}
	if l.logInterval <= 0 {
		l.logInterval = time.Second
	}
	if len(l.chunk) == 0 {
		l.chunk = make([]byte, 80)
	}

	var source animation.Source
	var files odometry.Files
	if deps.Store != nil {
		source, files = deps.Store, deps.Store
	}

	l.Odometry = odometry.New(odometry.Options{
		Right:       hw.Right,
		Left:        hw.Left,
		Files:       files,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		MMPerTick:   cfg.Geometry.MMPerTick(),
		Interval:    cfg.Odometry.Interval,
		LogInterval: cfg.Odometry.LogInterval,
		File:        cfg.Odometry.File,
	})

	wheels := hw.Wheels()
	wheels.Odometer = l.Odometry

	l.Animation = animation.NewEngine(animation.Options{
		Source:      source,
		Head:        hw.Head,
		Wheels:      wheels,
		State:       l.state,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		FramePeriod: cfg.Animation.FramePeriod,
		BufferSize:  cfg.Animation.BufferSize,
		LineSize:    cfg.Animation.LineSize,
		HeadMin:     cfg.Motion.HeadMinMicros,
		HeadMax:     cfg.Motion.HeadMaxMicros,
	})

	l.Motor = motor.New(motor.Options{
		Wheels:             wheels,
		State:              l.state,
		Emitter:            l.emitter,
		Clock:              deps.Clock,
		Logger:             deps.Logger,
		Gains:              motor.Gains{Kp: cfg.PID.Kp, Ki: cfg.PID.Ki, Kd: cfg.PID.Kd},
		Limit:              cfg.PID.Limit,
		Sample:             cfg.PID.Sample,
		RotationSpeed:      cfg.Motion.RotationSpeed,
		TicksPerTurn:       cfg.Motion.TicksPerTurn,
		Motor1Compensation: cfg.Motion.Motor1Compensation,
		Motor2Compensation: cfg.Motion.Motor2Compensation,
	})

	l.Battery = battery.New(battery.Options{
		USBDetect:       hw.USBDetect,
		Gauge:           hw.Gauge,
		Motors:          hw.Motors,
		Status:          hw.Status,
		State:           l.state,
		Playing:         l.Animation.Playing,
		Emitter:         l.emitter,
		Clock:           deps.Clock,
		Logger:          deps.Logger,
		Interval:        cfg.Battery.Interval,
		LowPercent:      cfg.Battery.LowPercent,
		CriticalPercent: cfg.Battery.CriticalPercent,
		USBThresholdV:   cfg.Battery.USBThresholdV,
	})

	l.Sensors = sensors.NewEngine(sensors.Options{
		IRLeft:   hw.IRLeft,
		IRRight:  hw.IRRight,
		Light:    hw.Light,
		Mux:      hw.Mux,
		Range:    hw.Range,
		Bus:      hw.Bus,
		Wheels:   wheels,
		Status:   hw.Status,
		Battery:  l.Battery,
		Distance: l.Odometry,
		OnEdge:   l.onEdge,
		Emitter:  l.emitter,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
		Settings: sensors.Settings{
			LightInterval:       cfg.Light.Interval,
			DarkThreshold:       cfg.Light.Threshold,
			DarkBrightness:      cfg.Light.DarkLevel,
			LitBrightness:       cfg.Light.LitLevel,
			IRInterval:          cfg.IR.Interval,
			IRLeftThreshold:     cfg.IR.LeftThreshold,
			IRRightThreshold:    cfg.IR.RightThreshold,
			IRWindow:            cfg.IR.Window,
			CollisionInterval:   cfg.Collision.Interval,
			CollisionThreshold:  cfg.Collision.ThresholdMM,
			CollisionMinValid:   cfg.Collision.MinValidMM,
			CollisionMaxValid:   cfg.Collision.MaxValidMM,
			CollisionSmoothing:  cfg.Collision.SmoothingFactor,
			CollisionValidation: cfg.Collision.Validation,
		},
	})

	l.Dispatcher = dispatch.New(dispatch.Options{
		Animation: l.Animation,
		Rotation:  l.Motor,
		Battery:   l.Battery,
		Sensors:   l.Sensors,
		Motors:    hw.Motors,
		Emitter:   l.emitter,
		Logger:    deps.Logger,
	})

	now := deps.Clock.Now()
	l.lastLogSend = now
	l.publish(now)
	return l, nil
}

// State returns the shared state.
func (l *Loop) State() *robot.State {
	return l.state
}

// Emitter returns the outbound message path.
func (l *Loop) Emitter() protocol.Emitter {
	return l.emitter
}

// onEdge preempts whatever is moving the robot.
func (l *Loop) onEdge() {
	l.Animation.Stop()
	if l.Motor.Rotating() {
		l.Motor.CancelRotation()
	}
}

// Inject queues an inbound command as if it had arrived on the link. It is
// safe to call from any goroutine.
func (l *Loop) Inject(line []byte) error {
	cmd := append([]byte(nil), line...)
	select {
	case l.inject <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Snapshot returns the most recently published state.
func (l *Loop) Snapshot() Snapshot {
	return *l.snapshot.Load()
}

// Tick runs one pass over every component.
func (l *Loop) Tick() {
	l.link.PollBaud()
	l.dispatchOne()

	l.Sensors.Tick()
	l.Animation.Tick()

	playing := l.Animation.Playing()
	l.Motor.Tick(playing)
	l.Battery.Tick()
	l.Odometry.Update()
	l.Odometry.CheckAndSave(playing)

	now := l.clock.Now()
	l.sendLogs(now)
	l.ticks++
	if now.Sub(l.lastSnapshot) >= SnapshotInterval {
		l.publish(now)
	}

	if l.onTick != nil {
		l.onTick()
	}
}

// dispatchOne handles at most one inbound chunk, serial input first.
func (l *Loop) dispatchOne() {
	var chunk []byte
	if n := l.link.Poll(l.chunk); n > 0 {
		chunk = l.chunk[:n]
	} else {
		select {
		case chunk = <-l.inject:
		default:
			return
		}
	}
	// Errors are logged by the dispatcher and its components.
	_ = l.Dispatcher.Dispatch(chunk)
}

func (l *Loop) sendLogs(now time.Time) {
	if l.logs == nil || now.Sub(l.lastLogSend) < l.logInterval {
		return
	}
	l.lastLogSend = now
	if entries := log.Drain(); len(entries) > 0 {
		l.logs(entries)
	}
}

func (l *Loop) publish(now time.Time) {
	l.lastSnapshot = now
	if l.lastBattery.IsZero() || now.Sub(l.lastBattery) >= l.logInterval {
		l.battery = l.Battery.Status()
		l.lastBattery = now
	}
	l.battery.Charging = l.Battery.Charging()

	right, left := l.Motor.Outputs()
	l.snapshot.Store(&Snapshot{
		Time:           now,
		Ticks:          l.ticks,
		MotionEnabled:  l.state.MotionEnabled,
		Animation:      l.Animation.Status(),
		Rotation:       l.Motor.Rotation(),
		Outputs:        Outputs{Right: right, Left: left},
		Sensors:        l.Sensors.Snapshot(),
		Battery:        l.battery,
		DistanceMeters: l.Odometry.DistanceMeters(),
		Dispatch:       l.Dispatcher.Stats(),
	})
}

// Run ticks every loop period until ctx is done, then brings the robot to
// rest.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()

	l.logger.Info("control loop started", "period", l.period)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopping")
			return l.Shutdown()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Shutdown stops every motion and saves the odometer.
func (l *Loop) Shutdown() error {
	l.Animation.Stop()
	if l.Motor.Rotating() {
		l.Motor.CancelRotation()
	}
	err := robot.Halt(l.hw.Motors)
	if l.hw.Head != nil {
		err = multierr.Append(err, l.hw.Head.Detach())
	}
	return multierr.Append(err, l.Odometry.Save())
}
