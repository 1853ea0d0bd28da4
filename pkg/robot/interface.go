// Package robot provides the hardware interfaces and shared state of the PlayBot.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Components receive
// only the handles they use; the top-level assembly owns every handle.
package robot

// MotorDriver drives the two wheel motors. M1 is the left wheel, M2 the right.
// Speeds are signed; a driver clamps them to its own full scale.
type MotorDriver interface {
	SetM1Speed(speed int) error
	SetM2Speed(speed int) error
}

// Encoder is a quadrature wheel encoder.
type Encoder interface {
	Read() int64
	Write(count int64)
}

// Servo is the head actuator, positioned by pulse width.
type Servo interface {
	Attach() error
	Detach() error
	WriteMicroseconds(us int) error
}

// AnalogInput is a single ADC channel returning raw counts.
type AnalogInput interface {
	Read() (int, error)
}

// ChannelMux selects which downstream I2C segment is connected.
type ChannelMux interface {
	SelectChannel(ch uint8) error
}

// RangeSensor is a time-of-flight distance sensor reporting millimetres.
type RangeSensor interface {
	ReadDistance() (uint16, error)
}

// Bus is a shared peripheral bus that can be flushed between transactions.
type Bus interface {
	Flush() error
}

// Gauge is the battery fuel gauge.
type Gauge interface {
	CellVoltage() (float64, error)
	CellPercent() (float64, error)
}

// LightMode selects the status light pattern.
type LightMode int

// Status light patterns
const (
	LightIdle LightMode = iota
	LightCharging
	LightSuccess
	LightError
)

// String returns the mode name.
func (m LightMode) String() string {
	switch m {
	case LightCharging:
		return "charging"
	case LightSuccess:
		return "success"
	case LightError:
		return "error"
	default:
		return "idle"
	}
}

// StatusLight is the RGB status LED.
type StatusLight interface {
	SetBrightness(level uint8) error
	SetMode(mode LightMode) error
}

// Rebaser tracks encoder counts and must see every reset. Rebase folds in
// movement so far, runs reset, then takes the new counts as its base.
type Rebaser interface {
	Rebase(reset func())
}

// Wheels is the drive train: motors plus both encoders.
type Wheels struct {
	Motors MotorDriver
	Right  Encoder
	Left   Encoder

	// Odometer, when set, is rebased around every ZeroEncoders.
	Odometer Rebaser
}

// Halt zeroes both motor outputs.
func (w Wheels) Halt() error {
	return Halt(w.Motors)
}

// ZeroEncoders resets both encoder counts.
func (w Wheels) ZeroEncoders() {
	reset := func() {
		w.Right.Write(0)
		w.Left.Write(0)
	}
	if w.Odometer == nil {
		reset()
		return
	}
	w.Odometer.Rebase(reset)
}
