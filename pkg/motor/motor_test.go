package motor

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

// recorder collects emitted lines.
type recorder struct {
	lines []string
}

func (r *recorder) Emit(m protocol.Message) {
	r.lines = append(r.lines, m.String())
}

type fixture struct {
	sim   *robot.Sim
	state *robot.State
	clock *clock.Mock
	out   *recorder
	ctrl  *Controller
}

func newFixture() *fixture {
	f := &fixture{
		sim:   robot.NewSim(),
		state: robot.NewState(),
		clock: clock.NewMock(),
		out:   &recorder{},
	}
	f.ctrl = New(Options{
		Wheels:  f.sim.Hardware().Wheels(),
		State:   f.state,
		Emitter: f.out,
		Clock:   f.clock,
		Gains:   Gains{Kp: 1},
	})
	return f
}

func (f *fixture) tick(playing bool) {
	f.clock.Add(time.Millisecond)
	f.ctrl.Tick(playing)
}

func TestRotate_TwoTurnsClockwise(t *testing.T) {
	f := newFixture()
	f.sim.Right.Advance(55)
	f.sim.Left.Advance(-30)

	cmd, err := protocol.Decode([]byte("t/2/1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.Rotate(cmd.Turns, cmd.Direction); err != nil {
		t.Fatal(err)
	}

	if got := f.ctrl.Rotation().Target; got != 3708 {
		t.Fatalf("target = %d, want 3708", got)
	}
	if f.sim.Right.Read() != 0 || f.sim.Left.Read() != 0 {
		t.Error("encoders not zeroed at rotation start")
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != -200 || m2 != 200 {
		t.Errorf("speeds = %d/%d, want -200/200", m1, m2)
	}

	f.sim.Right.Advance(3707)
	f.tick(false)
	if len(f.out.lines) != 0 {
		t.Fatalf("completed early: %v", f.out.lines)
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != -200 || m2 != 200 {
		t.Errorf("drivers changed mid-rotation: %d/%d", m1, m2)
	}

	f.sim.Right.Advance(5)
	f.tick(false)
	f.tick(false)
	f.tick(false)

	if len(f.out.lines) != 1 || f.out.lines[0] != "msg r/1" {
		t.Fatalf("emitted %v, want exactly [msg r/1]", f.out.lines)
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
	if f.sim.Right.Read() != 0 || f.sim.Left.Read() != 0 {
		t.Error("encoders not zeroed after rotation")
	}
	if f.ctrl.Rotating() || f.ctrl.Rotation().State != "done" {
		t.Errorf("Rotation() = %+v", f.ctrl.Rotation())
	}
}

func TestRotate_CounterClockwiseUsesMagnitude(t *testing.T) {
	f := newFixture()
	f.ctrl.Rotate(1, -1)

	if m1, m2 := f.sim.Motors.Speeds(); m1 != 200 || m2 != -200 {
		t.Errorf("speeds = %d/%d, want 200/-200", m1, m2)
	}
	f.sim.Right.Advance(-1854)
	f.tick(false)
	if len(f.out.lines) != 1 {
		t.Errorf("emitted %v, want one completion", f.out.lines)
	}
}

func TestRotate_Compensation(t *testing.T) {
	sim := robot.NewSim()
	ctrl := New(Options{
		Wheels:             sim.Hardware().Wheels(),
		Clock:              clock.NewMock(),
		Motor1Compensation: 0.5,
		Motor2Compensation: 1.1,
	})
	ctrl.Rotate(1, 1)
	if m1, m2 := sim.Motors.Speeds(); m1 != -100 || m2 != 220 {
		t.Errorf("speeds = %d/%d, want -100/220", m1, m2)
	}
}

func TestRotate_NonPositiveTurnsIsNoop(t *testing.T) {
	for _, turns := range []int{0, -3} {
		f := newFixture()
		err := f.ctrl.Rotate(turns, 1)
		if !errors.Is(err, ErrInvalidTurns) {
			t.Errorf("Rotate(%d) = %v, want ErrInvalidTurns", turns, err)
		}
		if f.sim.Motors.Writes() != 0 || f.ctrl.Rotating() {
			t.Errorf("Rotate(%d) changed state", turns)
		}
	}
}

func TestCancelRotation(t *testing.T) {
	f := newFixture()
	f.ctrl.Rotate(1, 1)
	f.ctrl.CancelRotation()

	if f.ctrl.Rotating() {
		t.Fatal("still rotating")
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
	f.sim.Right.Advance(5000)
	f.tick(false)
	if len(f.out.lines) != 0 {
		t.Errorf("cancelled rotation reported completion: %v", f.out.lines)
	}
}

func TestApplyOutputs_ZeroSetpointsForceStop(t *testing.T) {
	f := newFixture()
	_ = f.sim.Motors.SetM1Speed(500)
	_ = f.sim.Motors.SetM2Speed(500)

	f.tick(true)

	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
}

func TestApplyOutputs_PlayingDrivesPIDOutputs(t *testing.T) {
	f := newFixture()
	f.state.Setpoints = robot.WheelSetpoints{Right: "300", Left: "-100"}
	f.sim.Right.Advance(100)

	f.tick(true)

	// Kp=1: output = setpoint - encoder
	if m1, m2 := f.sim.Motors.Speeds(); m1 != -100 || m2 != 200 {
		t.Errorf("speeds = %d/%d, want -100/200", m1, m2)
	}
}

func TestApplyOutputs_ClampsToLimit(t *testing.T) {
	f := newFixture()
	f.state.Setpoints = robot.WheelSetpoints{Right: "5000", Left: "-5000"}
	f.tick(true)
	if m1, m2 := f.sim.Motors.Speeds(); m1 != -1023 || m2 != 1023 {
		t.Errorf("speeds = %d/%d, want -1023/1023", m1, m2)
	}
}

func TestApplyOutputs_MotionDisabledHoldsZero(t *testing.T) {
	f := newFixture()
	f.state.MotionEnabled = false
	f.state.Setpoints = robot.WheelSetpoints{Right: "300", Left: "300"}

	f.tick(true)

	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
	if r, l := f.ctrl.Outputs(); r != 300 || l != 300 {
		t.Errorf("PID outputs = %v/%v, want 300/300", r, l)
	}
}

func TestApplySetpoints_IgnoredWhenIdle(t *testing.T) {
	f := newFixture()
	f.state.Setpoints = robot.WheelSetpoints{Right: "300", Left: "300"}
	_ = f.sim.Motors.SetM1Speed(7)
	_ = f.sim.Motors.SetM2Speed(7)

	f.tick(false)

	if r, l := f.ctrl.Setpoints(); r != 0 || l != 0 {
		t.Errorf("setpoints = %v/%v, want 0/0", r, l)
	}
	// zero setpoints still force the drivers off
	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
}

func TestApplySetpoints_ZeroedWhenPlaybackEnds(t *testing.T) {
	f := newFixture()
	f.state.Setpoints = robot.WheelSetpoints{Right: "300", Left: "-100"}

	f.tick(true)
	if r, l := f.ctrl.Setpoints(); r != 300 || l != -100 {
		t.Fatalf("setpoints while playing = %v/%v, want 300/-100", r, l)
	}

	f.tick(false)
	if r, l := f.ctrl.Setpoints(); r != 0 || l != 0 {
		t.Errorf("setpoints after playback = %v/%v, want 0/0", r, l)
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
}

func TestComputePID_RateLimited(t *testing.T) {
	f := newFixture()
	f.state.Setpoints = robot.WheelSetpoints{Right: "100", Left: "100"}
	f.ctrl.ApplySetpoints(true)
	f.ctrl.ComputePID()

	f.state.Setpoints = robot.WheelSetpoints{Right: "400", Left: "400"}
	f.ctrl.ApplySetpoints(true)
	f.ctrl.ComputePID()
	if r, _ := f.ctrl.Outputs(); r != 100 {
		t.Errorf("output updated before sample interval: %v", r)
	}

	f.clock.Add(time.Millisecond)
	f.ctrl.ComputePID()
	if r, _ := f.ctrl.Outputs(); r != 400 {
		t.Errorf("output after sample interval = %v, want 400", r)
	}
}

func TestTokenValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0", 0},
		{"120", 120},
		{"-85", -85},
		{"+3", 3},
		{"1.5", 1.5},
		{"-.5", -0.5},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"-", 0},
	}
	for _, tt := range tests {
		if got := TokenValue(tt.in); got != tt.want {
			t.Errorf("TokenValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRotationState_String(t *testing.T) {
	if RotationRotating.String() != "rotating" || RotationState(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

func TestRotate_RefusedWhileCharging(t *testing.T) {
	f := newFixture()
	f.state.MotionEnabled = false
	if err := f.ctrl.Rotate(1, 1); !errors.Is(err, ErrMotionDisabled) {
		t.Errorf("Rotate() = %v, want ErrMotionDisabled", err)
	}
	if f.sim.Motors.Writes() != 0 {
		t.Error("drivers written")
	}
}

func TestTick_ChargingCancelsRotation(t *testing.T) {
	f := newFixture()
	f.ctrl.Rotate(1, 1)
	f.state.MotionEnabled = false
	f.tick(false)

	if f.ctrl.Rotating() {
		t.Fatal("rotation survived loss of motion permission")
	}
	if m1, m2 := f.sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
	if len(f.out.lines) != 0 {
		t.Errorf("emitted %v", f.out.lines)
	}
}
