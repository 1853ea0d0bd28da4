// Package sensors fuses the IR, time-of-flight and ambient light readings
// into debounced edge, collision and darkness events.
//
// Each detector is polled at its own interval from the control loop and
// reports on transitions only.
package sensors

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/pkg/filter"
	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Settings holds detector intervals and thresholds.
type Settings struct {
	LightInterval  time.Duration
	DarkThreshold  int
	DarkBrightness uint8
	LitBrightness  uint8

	IRInterval       time.Duration
	IRLeftThreshold  int
	IRRightThreshold int
	IRWindow         int

	CollisionInterval   time.Duration
	CollisionThreshold  float64
	CollisionMinValid   float64
	CollisionMaxValid   float64
	CollisionSmoothing  float64
	CollisionValidation int
}

// DefaultSettings returns the values the robot ships with.
func DefaultSettings() Settings {
	return Settings{
		LightInterval:       200 * time.Millisecond,
		DarkThreshold:       10,
		DarkBrightness:      50,
		LitBrightness:       10,
		IRInterval:          8 * time.Millisecond,
		IRLeftThreshold:     15,
		IRRightThreshold:    15,
		IRWindow:            10,
		CollisionInterval:   4 * time.Millisecond,
		CollisionThreshold:  70,
		CollisionMinValid:   0,
		CollisionMaxValid:   1800,
		CollisionSmoothing:  2,
		CollisionValidation: 30,
	}
}

// BatteryInfo is the part of the battery monitor the sensor bundle reads.
type BatteryInfo interface {
	Voltage() float64
	Charging() bool
}

// DistanceInfo is the part of the odometer the sensor bundle reads.
type DistanceInfo interface {
	DistanceMeters() float64
}

// Options configures an Engine.
type Options struct {
	IRLeft  robot.AnalogInput
	IRRight robot.AnalogInput
	Light   robot.AnalogInput
	Mux     robot.ChannelMux
	Range   robot.RangeSensor
	Bus     robot.Bus
	Wheels  robot.Wheels
	Status  robot.StatusLight

	Battery  BatteryInfo
	Distance DistanceInfo

	// OnEdge is called when an edge is first detected, before the drivers
	// are zeroed and the event is sent.
	OnEdge func()

	Emitter  protocol.Emitter
	Clock    clock.Clock
	Logger   *slog.Logger
	Settings Settings
}

// Snapshot is the latest fused sensor state.
type Snapshot struct {
	IRLeft           int     `json:"ir_left"`
	IRRight          int     `json:"ir_right"`
	Edge             bool    `json:"edge"`
	TofFront         float64 `json:"tof_front"`
	TofBack          float64 `json:"tof_back"`
	SmoothedFront    float64 `json:"smoothed_front"`
	CollisionCount   int     `json:"collision_count"`
	CollisionLatched bool    `json:"collision_latched"`
	Light            int     `json:"light"`
	Dark             bool    `json:"dark"`
}

// Engine runs the detectors.
type Engine struct {
	opts   Options
	set    Settings
	clock  clock.Clock
	logger *slog.Logger

	// darkness
	lastLight  time.Time
	dark       filter.Debouncer
	lightValue int
	brightness int

	// edge
	lastIR  time.Time
	edge    filter.Debouncer
	irAvg   *filter.Average
	irLeft  int
	irRight int

	// collision
	lastCollision time.Time
	front         *filter.Exponential
	hits          int
	latched       bool

	tof map[uint8]float64
}

// NewEngine creates an Engine. Zero settings fields take their defaults.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = protocol.EmitterFunc(func(protocol.Message) {})
	}
	set := withDefaults(opts.Settings)
	return &Engine{
		opts:       opts,
		set:        set,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "sensors"),
		brightness: -1,
		irAvg:      filter.NewAverage(set.IRWindow),
		front:      filter.NewExponential(set.CollisionSmoothing),
		tof:        map[uint8]float64{robot.FrontChannel: 0, robot.BackChannel: 0},
	}
}

func withDefaults(s Settings) Settings {
	d := DefaultSettings()
	if s.LightInterval <= 0 {
		s.LightInterval = d.LightInterval
	}
	if s.DarkThreshold == 0 {
		s.DarkThreshold = d.DarkThreshold
	}
	if s.DarkBrightness == 0 && s.LitBrightness == 0 {
		s.DarkBrightness, s.LitBrightness = d.DarkBrightness, d.LitBrightness
	}
	if s.IRInterval <= 0 {
		s.IRInterval = d.IRInterval
	}
	if s.IRLeftThreshold == 0 {
		s.IRLeftThreshold = d.IRLeftThreshold
	}
	if s.IRRightThreshold == 0 {
		s.IRRightThreshold = d.IRRightThreshold
	}
	if s.IRWindow <= 0 {
		s.IRWindow = d.IRWindow
	}
	if s.CollisionInterval <= 0 {
		s.CollisionInterval = d.CollisionInterval
	}
	if s.CollisionThreshold == 0 {
		s.CollisionThreshold = d.CollisionThreshold
	}
	if s.CollisionMaxValid == 0 {
		s.CollisionMinValid, s.CollisionMaxValid = d.CollisionMinValid, d.CollisionMaxValid
	}
	if s.CollisionSmoothing == 0 {
		s.CollisionSmoothing = d.CollisionSmoothing
	}
	if s.CollisionValidation <= 0 {
		s.CollisionValidation = d.CollisionValidation
	}
	return s
}

// due reports whether every has elapsed since *last and, if so, records now.
func due(last *time.Time, every time.Duration, now time.Time) bool {
	if !last.IsZero() && now.Sub(*last) < every {
		return false
	}
	*last = now
	return true
}

// Tick runs every detector whose interval has elapsed.
func (e *Engine) Tick() {
	now := e.clock.Now()
	if due(&e.lastLight, e.set.LightInterval, now) {
		e.checkLight()
	}
	if due(&e.lastIR, e.set.IRInterval, now) {
		e.checkEdge()
	}
	if due(&e.lastCollision, e.set.CollisionInterval, now) {
		e.checkCollision()
	}
}

// Snapshot returns the current fused state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		IRLeft:           e.irLeft,
		IRRight:          e.irRight,
		Edge:             e.edge.State(),
		TofFront:         e.tof[robot.FrontChannel],
		TofBack:          e.tof[robot.BackChannel],
		SmoothedFront:    e.front.Value(),
		CollisionCount:   e.hits,
		CollisionLatched: e.latched,
		Light:            e.lightValue,
		Dark:             e.dark.State(),
	}
}
