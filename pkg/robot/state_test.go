package robot

import (
	"errors"
	"testing"
)

type failingMotors struct{ calls int }

func (f *failingMotors) SetM1Speed(int) error { f.calls++; return errors.New("m1") }
func (f *failingMotors) SetM2Speed(int) error { f.calls++; return errors.New("m2") }

func TestNewState(t *testing.T) {
	s := NewState()
	if !s.MotionEnabled {
		t.Error("MotionEnabled should start true")
	}
	if s.Setpoints.Right != NeutralToken || s.Setpoints.Left != NeutralToken {
		t.Errorf("Setpoints = %+v, want neutral", s.Setpoints)
	}
}

func TestHalt_AttemptsBothMotors(t *testing.T) {
	m := &failingMotors{}
	err := Halt(m)
	if m.calls != 2 {
		t.Errorf("calls = %d, want 2", m.calls)
	}
	if err == nil {
		t.Fatal("expected combined error")
	}
}

func TestWheels(t *testing.T) {
	sim := NewSim()
	hw := sim.Hardware()
	w := hw.Wheels()

	_ = w.Motors.SetM1Speed(100)
	_ = w.Motors.SetM2Speed(-100)
	sim.Right.Advance(40)
	sim.Left.Advance(-40)

	if err := w.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	w.ZeroEncoders()

	if m1, m2 := sim.Motors.Speeds(); m1 != 0 || m2 != 0 {
		t.Errorf("speeds = %d/%d, want 0/0", m1, m2)
	}
	if sim.Right.Read() != 0 || sim.Left.Read() != 0 {
		t.Errorf("encoders = %d/%d, want 0/0", sim.Right.Read(), sim.Left.Read())
	}
}

func TestSim_Step(t *testing.T) {
	sim := NewSim()
	_ = sim.Motors.SetM1Speed(-200)
	_ = sim.Motors.SetM2Speed(200)
	sim.Step(10)
	sim.Step(10)

	if got := sim.Right.Read(); got != 40 {
		t.Errorf("right = %d, want 40", got)
	}
	if got := sim.Left.Read(); got != -40 {
		t.Errorf("left = %d, want -40", got)
	}
}

func TestSimAnalog_Queue(t *testing.T) {
	a := NewSimAnalog(7)
	a.Queue(1, 2)
	want := []int{1, 2, 2}
	for i, w := range want {
		got, err := a.Read()
		if err != nil || got != w {
			t.Errorf("read %d = %d, %v; want %d", i, got, err, w)
		}
	}
	a.Fail = true
	if _, err := a.Read(); !errors.Is(err, ErrSimFault) {
		t.Errorf("err = %v, want ErrSimFault", err)
	}
}

func TestSimRange_PerChannel(t *testing.T) {
	r := NewSimRange(120, 900)
	_ = r.SelectChannel(FrontChannel)
	if d, _ := r.ReadDistance(); d != 120 {
		t.Errorf("front = %d, want 120", d)
	}
	_ = r.SelectChannel(BackChannel)
	if d, _ := r.ReadDistance(); d != 900 {
		t.Errorf("back = %d, want 900", d)
	}
}

func TestHardware_CloseWithoutClosers(t *testing.T) {
	if err := NewSim().Hardware().Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestLightMode_String(t *testing.T) {
	if LightCharging.String() != "charging" || LightIdle.String() != "idle" {
		t.Error("unexpected LightMode names")
	}
}
