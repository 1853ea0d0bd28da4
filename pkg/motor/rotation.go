package motor

import (
	"fmt"

	"github.com/teslashibe/go-playbot/pkg/protocol"
)

// RotationState is the state of the rotate-in-place maneuver.
type RotationState int

const (
	// RotationIdle means no rotation was requested yet.
	RotationIdle RotationState = iota

	// RotationRotating means the wheels are driven towards the target.
	RotationRotating

	// RotationDone means the last rotation reached its target.
	RotationDone
)

// String returns a human-readable state name.
func (s RotationState) String() string {
	switch s {
	case RotationIdle:
		return "idle"
	case RotationRotating:
		return "rotating"
	case RotationDone:
		return "done"
	default:
		return "unknown"
	}
}

type rotationTask struct {
	state     RotationState
	target    int64
	direction int
	turns     int
}

// RotationStatus describes the current or last rotation.
type RotationStatus struct {
	State     string `json:"state"`
	Turns     int    `json:"turns,omitempty"`
	Direction int    `json:"direction,omitempty"`
	Target    int64  `json:"target,omitempty"`
}

// Rotation returns the rotation status.
func (c *Controller) Rotation() RotationStatus {
	return RotationStatus{
		State:     c.rotation.state.String(),
		Turns:     c.rotation.turns,
		Direction: c.rotation.direction,
		Target:    c.rotation.target,
	}
}

// Rotating reports whether a rotation is in progress.
func (c *Controller) Rotating() bool {
	return c.rotation.state == RotationRotating
}

// Rotate starts turning in place by turns full robot rotations. A positive
// direction turns one way, anything else the other. A rotation already in
// progress is replaced.
func (c *Controller) Rotate(turns, direction int) error {
	if turns <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTurns, turns)
	}
	if !c.state.MotionEnabled {
		return ErrMotionDisabled
	}

	c.wheels.ZeroEncoders()
	dir := -1
	if direction > 0 {
		dir = 1
	}
	c.rotation = rotationTask{
		state:     RotationRotating,
		target:    int64(c.ticks) * int64(turns),
		direction: dir,
		turns:     turns,
	}

	m2 := dir * c.speed
	m1 := -dir * c.speed
	c.drive(int(float64(m1)*c.comp1), int(float64(m2)*c.comp2))

	c.logger.Info("rotation started", "turns", turns, "direction", dir, "target", c.rotation.target)
	return nil
}

// TickRotation checks the right encoder against the target. On reaching it
// the completion event is sent, the drivers stop and both encoders reset.
func (c *Controller) TickRotation() {
	if c.rotation.state != RotationRotating {
		return
	}
	count := c.wheels.Right.Read()
	if count < 0 {
		count = -count
	}
	if count < c.rotation.target {
		return
	}

	c.emitter.Emit(protocol.NewRotationDone())
	c.halt()
	c.wheels.ZeroEncoders()
	c.rotation.state = RotationDone
	c.logger.Info("rotation complete", "ticks", count)
}

// CancelRotation abandons a rotation in progress and stops the drivers.
// No completion event is sent.
func (c *Controller) CancelRotation() {
	if c.rotation.state != RotationRotating {
		return
	}
	c.halt()
	c.rotation.state = RotationIdle
	c.logger.Info("rotation cancelled")
}
