// Package battery watches the charger and reports the fuel gauge.
package battery

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Defaults
const (
	DefaultInterval        = 250 * time.Millisecond
	DefaultLowPercent      = 15.0
	DefaultCriticalPercent = 5.0
	DefaultUSBThresholdV   = 1.5

	adcMax = 1023.0
	adcRef = 3.3
)

// Options configures a Monitor.
type Options struct {
	USBDetect robot.AnalogInput
	// Gauge is nil when the fuel gauge failed to initialise.
	Gauge  robot.Gauge
	Motors robot.MotorDriver
	Status robot.StatusLight
	State  *robot.State

	// Playing reports whether an animation is running.
	Playing func() bool

	Emitter protocol.Emitter
	Clock   clock.Clock
	Logger  *slog.Logger

	Interval        time.Duration
	LowPercent      float64
	CriticalPercent float64
	USBThresholdV   float64
}

// Status is the last known battery state.
type Status struct {
	Charging bool    `json:"charging"`
	Gauge    bool    `json:"gauge"`
	Voltage  float64 `json:"voltage"`
	Percent  float64 `json:"percent"`
	Alert    int     `json:"alert"`
}

// Monitor polls the USB detect line and formats battery reports.
type Monitor struct {
	opts      Options
	logger    *slog.Logger
	lastCheck time.Time
	charging  bool
}

// New creates a Monitor.
func New(opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = protocol.EmitterFunc(func(protocol.Message) {})
	}
	if opts.State == nil {
		opts.State = robot.NewState()
	}
	if opts.Playing == nil {
		opts.Playing = func() bool { return false }
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LowPercent == 0 && opts.CriticalPercent == 0 {
		opts.LowPercent, opts.CriticalPercent = DefaultLowPercent, DefaultCriticalPercent
	}
	if opts.USBThresholdV == 0 {
		opts.USBThresholdV = DefaultUSBThresholdV
	}
	return &Monitor{opts: opts, logger: opts.Logger.With("component", "battery")}
}

// Charging reports whether the charger is connected.
func (m *Monitor) Charging() bool {
	return m.charging
}

// Voltage returns the cell voltage, or 0 without a gauge.
func (m *Monitor) Voltage() float64 {
	if m.opts.Gauge == nil {
		return 0
	}
	v, err := m.opts.Gauge.CellVoltage()
	if err != nil {
		m.logger.Debug("gauge voltage read failed", "error", err)
		return 0
	}
	return v
}

// Tick polls the USB detect line once per interval. A charger transition
// toggles motion permission, switches the status light and is reported.
func (m *Monitor) Tick() {
	now := m.opts.Clock.Now()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.opts.Interval {
		return
	}
	m.lastCheck = now

	if m.opts.USBDetect == nil {
		return
	}
	raw, err := m.opts.USBDetect.Read()
	if err != nil {
		m.logger.Debug("USB detect read failed", "error", err)
		return
	}
	pinV := float64(raw) / adcMax * adcRef
	charging := pinV > m.opts.USBThresholdV
	if charging == m.charging {
		return
	}

	m.charging = charging
	m.opts.State.MotionEnabled = !charging

	mode := robot.LightIdle
	if charging {
		mode = robot.LightCharging
		if m.opts.Motors != nil {
			if err := robot.Halt(m.opts.Motors); err != nil {
				m.logger.Warn("motor halt failed", "error", err)
			}
		}
	}
	if m.opts.Status != nil {
		if err := m.opts.Status.SetMode(mode); err != nil {
			m.logger.Debug("status light write failed", "error", err)
		}
	}

	m.opts.Emitter.Emit(protocol.NewPowerMessage(charging))
	m.logger.Info("charging state changed", "charging", charging, "pin_v", pinV, "motion", !charging)
}

// AlertLevel maps a charge percentage to an alert level.
func (m *Monitor) AlertLevel(percent float64) int {
	switch {
	case percent <= m.opts.CriticalPercent:
		return protocol.AlertCritical
	case percent <= m.opts.LowPercent:
		return protocol.AlertLow
	default:
		return protocol.AlertNone
	}
}

// Status reads the gauge.
func (m *Monitor) Status() Status {
	s := Status{Charging: m.charging}
	if m.opts.Gauge == nil {
		return s
	}
	v, verr := m.opts.Gauge.CellVoltage()
	p, perr := m.opts.Gauge.CellPercent()
	if verr != nil || perr != nil {
		m.logger.Debug("gauge read failed", "voltage_err", verr, "percent_err", perr)
		return s
	}
	s.Gauge = true
	s.Voltage = v
	s.Percent = p
	s.Alert = m.AlertLevel(p)
	return s
}

// SendStatus answers a battery request. Nothing is sent while an animation
// plays; without a gauge the fields are reported as unavailable.
func (m *Monitor) SendStatus() {
	if m.opts.Playing() {
		m.logger.Debug("battery request ignored during animation")
		return
	}
	s := m.Status()
	if !s.Gauge {
		m.opts.Emitter.Emit(protocol.NewBatteryUnavailableMessage())
		m.logger.Warn("battery monitoring not available")
		return
	}
	m.opts.Emitter.Emit(protocol.NewBatteryMessage(s.Percent, s.Voltage, s.Charging, s.Alert))
	m.logger.Debug("battery", "voltage", s.Voltage, "percent", s.Percent, "charging", s.Charging, "alert", s.Alert)
}
