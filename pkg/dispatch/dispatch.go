// Package dispatch routes inbound commands to the control components.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// Animator plays animation files.
type Animator interface {
	Start(path string) error
	Stop()
	Playing() bool
}

// Rotator turns the robot in place.
type Rotator interface {
	Rotate(turns, direction int) error
	CancelRotation()
	Rotating() bool
}

// BatteryReporter answers battery requests.
type BatteryReporter interface {
	SendStatus()
}

// SensorReporter answers sensor bundle requests.
type SensorReporter interface {
	SendBundle()
}

// Options wires a Dispatcher. Every field is required except Logger.
type Options struct {
	Animation Animator
	Rotation  Rotator
	Battery   BatteryReporter
	Sensors   SensorReporter
	Motors    robot.MotorDriver
	Emitter   protocol.Emitter
	Logger    *slog.Logger
}

// ErrRejected wraps a rotation the motor loop refused.
var ErrRejected = errors.New("dispatch: rotation rejected")

type handler func(cmd protocol.Command) error

// Stats counts dispatched chunks by outcome. Unrecognised bytes are not
// counted.
type Stats struct {
	Handled     uint64 `json:"handled"`
	Passthrough uint64 `json:"passthrough"`
	Malformed   uint64 `json:"malformed"`
}

// Dispatcher decodes one command per chunk and runs its handler.
type Dispatcher struct {
	opts     Options
	logger   *slog.Logger
	handlers map[protocol.CommandKind]handler
	stats    Stats
}

// New builds the command table.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{opts: opts, logger: opts.Logger.With("component", "dispatch")}
	d.handlers = map[protocol.CommandKind]handler{
		protocol.CmdStartAnimation: d.startAnimation,
		protocol.CmdStopAnimation:  d.stop,
		protocol.CmdRequestBattery: d.battery,
		protocol.CmdRequestSensors: d.sensors,
		protocol.CmdVerifyLink:     d.verify,
		protocol.CmdRotate:         d.rotate,
	}
	return d
}

// Stats returns the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Dispatch handles the command at the start of chunk. Unknown commands and
// passthrough frames change nothing and emit nothing.
func (d *Dispatcher) Dispatch(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	cmd, err := protocol.Decode(chunk)
	if err != nil {
		d.stats.Malformed++
		d.logger.Debug("malformed command", "chunk", string(chunk), "error", err)
		return err
	}
	h, ok := d.handlers[cmd.Kind]
	if !ok {
		if cmd.Kind == protocol.CmdPassthrough {
			d.stats.Passthrough++
		}
		d.logger.Debug("ignored command", "kind", cmd.Kind, "lead", chunk[0])
		return nil
	}
	d.stats.Handled++
	d.logger.Debug("command", "kind", cmd.Kind)
	return h(cmd)
}

func (d *Dispatcher) startAnimation(cmd protocol.Command) error {
	if d.opts.Rotation.Rotating() {
		d.opts.Rotation.CancelRotation()
	}
	return d.opts.Animation.Start(cmd.Path)
}

func (d *Dispatcher) stop(protocol.Command) error {
	d.opts.Animation.Stop()
	if d.opts.Rotation.Rotating() {
		d.opts.Rotation.CancelRotation()
	}
	err := robot.Halt(d.opts.Motors)
	d.logger.Info("stopped by companion")
	return err
}

func (d *Dispatcher) battery(protocol.Command) error {
	d.opts.Battery.SendStatus()
	return nil
}

func (d *Dispatcher) sensors(protocol.Command) error {
	d.opts.Sensors.SendBundle()
	return nil
}

func (d *Dispatcher) verify(protocol.Command) error {
	d.opts.Emitter.Emit(protocol.NewVerifyAck())
	return nil
}

func (d *Dispatcher) rotate(cmd protocol.Command) error {
	if cmd.Turns <= 0 {
		d.logger.Debug("rotation with no turns ignored", "turns", cmd.Turns)
		return nil
	}
	if d.opts.Animation.Playing() {
		d.opts.Animation.Stop()
	}
	if err := d.opts.Rotation.Rotate(cmd.Turns, cmd.Direction); err != nil {
		d.logger.Warn("rotation rejected", "turns", cmd.Turns, "direction", cmd.Direction, "error", err)
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	d.logger.Info("rotation started", "turns", cmd.Turns, "direction", cmd.Direction)
	return nil
}
