// Package hardware opens the PlayBot peripherals through periph.io: the I2C
// bus with its multiplexer, range finder and fuel gauge, the motor driver,
// wheel encoders, head servo and status light on GPIO, and the analog inputs
// exposed by the kernel IIO driver.
package hardware

import (
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/sysfs"

	"github.com/teslashibe/go-playbot/internal/config"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

var (
	// ErrGaugeUnavailable is returned alongside usable hardware when the fuel
	// gauge did not answer.
	ErrGaugeUnavailable = errors.New("hardware: fuel gauge unavailable")

	// ErrNoPin means a configured pin name is unknown to the host.
	ErrNoPin = errors.New("hardware: no such pin")
)

// Open initialises the host and every peripheral. When only the gauge fails
// the returned hardware is usable, Gauge is nil and the error wraps
// ErrGaugeUnavailable. Any other failure releases what was opened and returns
// nil hardware.
func Open(cfg config.Hardware, logger *slog.Logger) (*robot.Hardware, error) {
	logger = logger.With("component", "hardware")

	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("hardware: host init: %w", err)
	}
	logger.Debug("host initialised", "drivers", len(state.Loaded))

	var closers []func() error
	fail := func(err error) (*robot.Hardware, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
		return nil, err
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("hardware: open i2c %q: %w", cfg.I2CBus, err)
	}
	mux := NewMux(bus, cfg.MuxAddr, bus.Close)
	closers = append(closers, mux.Close)

	pins, err := lookupPins(cfg.Motor1PWM, cfg.Motor1Dir, cfg.Motor2PWM, cfg.Motor2Dir,
		cfg.RightEncA, cfg.RightEncB, cfg.LeftEncA, cfg.LeftEncB, cfg.ServoPin)
	if err != nil {
		return fail(err)
	}

	motors, err := NewDRV8835(
		MotorChannel{PWM: pins[cfg.Motor1PWM], Dir: pins[cfg.Motor1Dir], Flip: cfg.FlipM1},
		MotorChannel{PWM: pins[cfg.Motor2PWM], Dir: pins[cfg.Motor2Dir], Flip: cfg.FlipM2},
		physic.Frequency(cfg.MotorPWMHz)*physic.Hertz,
	)
	if err != nil {
		return fail(fmt.Errorf("hardware: motors: %w", err))
	}
	closers = append(closers, motors.Close)

	right, err := NewQuadrature(pins[cfg.RightEncA], pins[cfg.RightEncB])
	if err != nil {
		return fail(fmt.Errorf("hardware: right encoder: %w", err))
	}
	closers = append(closers, right.Close)

	left, err := NewQuadrature(pins[cfg.LeftEncA], pins[cfg.LeftEncB])
	if err != nil {
		return fail(fmt.Errorf("hardware: left encoder: %w", err))
	}
	closers = append(closers, left.Close)

	light, err := openStatusLight(cfg)
	if err != nil {
		return fail(fmt.Errorf("hardware: status light: %w", err))
	}

	hw := &robot.Hardware{
		Motors:    motors,
		Right:     right,
		Left:      left,
		Head:      NewServo(pins[cfg.ServoPin], physic.Frequency(cfg.ServoHz)*physic.Hertz),
		IRLeft:    NewIIOInput(cfg.IRLeftPath, cfg.ADCBits),
		IRRight:   NewIIOInput(cfg.IRRightPath, cfg.ADCBits),
		Light:     NewIIOInput(cfg.LightPath, cfg.ADCBits),
		USBDetect: NewIIOInput(cfg.USBPath, cfg.ADCBits),
		Mux:       mux,
		Range:     NewRangeFinder(bus, cfg.RangeAddr),
		Bus:       mux,
		Status:    light,
	}

	gauge, err := NewFuelGauge(bus, cfg.GaugeAddr)
	if err != nil {
		logger.Warn("fuel gauge unavailable", "addr", fmt.Sprintf("%#02x", cfg.GaugeAddr), "error", err)
		return hw, err
	}
	hw.Gauge = gauge

	logger.Info("hardware ready", "i2c", cfg.I2CBus)
	return hw, nil
}

func lookupPins(names ...string) (map[string]gpio.PinIO, error) {
	pins := make(map[string]gpio.PinIO, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoPin, name)
		}
		pins[name] = p
	}
	return pins, nil
}

func openStatusLight(cfg config.Hardware) (*RGBLight, error) {
	var leds [3]gpio.PinOut
	for i, name := range []string{cfg.StatusRed, cfg.StatusGreen, cfg.StatusBlue} {
		led, err := sysfs.LEDByName(name)
		if err != nil {
			return nil, err
		}
		leds[i] = led
	}
	return NewRGBLight(leds[0], leds[1], leds[2])
}
