package robot

import (
	"io"

	"go.uber.org/multierr"
)

// Wheel channels on the range sensor multiplexer.
const (
	BackChannel  uint8 = 0
	FrontChannel uint8 = 1
)

// NeutralToken is the wheel command that means "no motion".
const NeutralToken = "0"

// MaxTokenLen bounds a wheel command token. Longer tokens are rejected.
const MaxTokenLen = 7

// WheelSetpoints carries the wheel commands of the current animation frame.
// Tokens are kept as text and converted by the motor loop.
type WheelSetpoints struct {
	Right string
	Left  string
}

// Reset returns both tokens to neutral.
func (w *WheelSetpoints) Reset() {
	w.Right = NeutralToken
	w.Left = NeutralToken
}

// State is the process-wide mutable state shared by the control components.
// It is only touched from the control loop goroutine.
type State struct {
	// MotionEnabled is false while the robot is charging.
	MotionEnabled bool

	Setpoints WheelSetpoints
}

// NewState returns the power-on state: motion enabled, neutral setpoints.
func NewState() *State {
	s := &State{MotionEnabled: true}
	s.Setpoints.Reset()
	return s
}

// Hardware groups every handle owned by the top-level assembly.
// Gauge may be nil when the fuel gauge failed to initialise.
type Hardware struct {
	Motors    MotorDriver
	Right     Encoder
	Left      Encoder
	Head      Servo
	IRLeft    AnalogInput
	IRRight   AnalogInput
	Light     AnalogInput
	USBDetect AnalogInput
	Mux       ChannelMux
	Range     RangeSensor
	Bus       Bus
	Gauge     Gauge
	Status    StatusLight
}

// Wheels returns the drive train view of the hardware.
func (h *Hardware) Wheels() Wheels {
	return Wheels{Motors: h.Motors, Right: h.Right, Left: h.Left}
}

// Close releases every handle that holds an OS resource.
func (h *Hardware) Close() error {
	var err error
	for _, v := range []any{h.Motors, h.Right, h.Left, h.Head, h.IRLeft, h.IRRight,
		h.Light, h.USBDetect, h.Mux, h.Range, h.Bus, h.Gauge, h.Status} {
		if c, ok := v.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Halt zeroes both outputs of a motor driver.
func Halt(m MotorDriver) error {
	return multierr.Append(m.SetM1Speed(0), m.SetM2Speed(0))
}
