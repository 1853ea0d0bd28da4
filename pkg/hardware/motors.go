package hardware

import (
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// MaxSpeed is the full-scale motor command. Larger magnitudes are clamped.
const MaxSpeed = 400

// MotorChannel is one half of the driver in phase/enable mode.
type MotorChannel struct {
	PWM  gpio.PinOut
	Dir  gpio.PinOut
	Flip bool
}

// DRV8835 drives both wheel motors.
type DRV8835 struct {
	m1, m2 MotorChannel
	freq   physic.Frequency
}

// NewDRV8835 returns a stopped driver.
func NewDRV8835(m1, m2 MotorChannel, freq physic.Frequency) (*DRV8835, error) {
	d := &DRV8835{m1: m1, m2: m2, freq: freq}
	if err := multierr.Append(d.SetM1Speed(0), d.SetM2Speed(0)); err != nil {
		return nil, err
	}
	return d, nil
}

// SetM1Speed sets motor 1, -MaxSpeed to MaxSpeed.
func (d *DRV8835) SetM1Speed(speed int) error {
	return d.set(d.m1, speed)
}

// SetM2Speed sets motor 2, -MaxSpeed to MaxSpeed.
func (d *DRV8835) SetM2Speed(speed int) error {
	return d.set(d.m2, speed)
}

func (d *DRV8835) set(ch MotorChannel, speed int) error {
	reverse := speed < 0
	if reverse {
		speed = -speed
	}
	speed = min(speed, MaxSpeed)
	if ch.Flip {
		reverse = !reverse
	}

	level := gpio.Low
	if reverse {
		level = gpio.High
	}
	if err := ch.Dir.Out(level); err != nil {
		return err
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(speed) / MaxSpeed)
	return ch.PWM.PWM(duty, d.freq)
}

// Close stops both motors.
func (d *DRV8835) Close() error {
	return multierr.Combine(
		d.m1.PWM.Out(gpio.Low),
		d.m2.PWM.Out(gpio.Low),
	)
}
