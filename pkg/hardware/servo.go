package hardware

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Servo is a hobby servo on a PWM pin.
type Servo struct {
	pin    gpio.PinOut
	freq   physic.Frequency
	period time.Duration

	mu       sync.Mutex
	attached bool
	pulse    int
}

// NewServo returns a detached servo driven at freq.
func NewServo(pin gpio.PinOut, freq physic.Frequency) *Servo {
	return &Servo{pin: pin, freq: freq, period: freq.Period()}
}

// Attach starts driving the last commanded pulse, if any.
func (s *Servo) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	if s.pulse == 0 {
		return nil
	}
	return s.write()
}

// Detach stops the pulse train so the servo goes limp.
func (s *Servo) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	return s.pin.Out(gpio.Low)
}

// WriteMicroseconds sets the pulse width. It is remembered while detached.
func (s *Servo) WriteMicroseconds(us int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulse = us
	if !s.attached {
		return nil
	}
	return s.write()
}

func (s *Servo) write() error {
	pulse := time.Duration(s.pulse) * time.Microsecond
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(pulse) / int64(s.period))
	return s.pin.PWM(duty, s.freq)
}
