package protocol

import (
	"testing"
)

func TestMessage_String(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"verify ack", NewVerifyAck(), "msg s/"},
		{"setup ok", NewSetupOK(), "msg s/1"},
		{"rotation", NewRotationDone(), "msg r/1"},
		{"edge", NewEdgeMessage(), "msg e/1"},
		{"collision", NewCollisionMessage(), "msg w/1"},
		{"dark", NewLightMessage(true), "msg l/0"},
		{"light", NewLightMessage(false), "msg l/1"},
		{"charging", NewPowerMessage(true), "msg p/1"},
		{"unplugged", NewPowerMessage(false), "msg p/0"},
		{"battery", NewBatteryMessage(85.5, 3.912, true, AlertNone), "msg b/ 85.50/  3.91/1/0"},
		{"battery critical", NewBatteryMessage(4, 3.3, false, AlertCritical), "msg b/  4.00/  3.30/0/2"},
		{"battery unavailable", NewBatteryUnavailableMessage(), "msg b/NA/NA/NA/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage_BytesNewline(t *testing.T) {
	got := string(NewEdgeMessage().Bytes())
	if got != "msg e/1\n" {
		t.Errorf("Bytes() = %q", got)
	}
}

func TestNewSensorMessage(t *testing.T) {
	msg := NewSensorMessage(SensorBundle{
		IRRight:        12,
		IRLeft:         9,
		TofFront:       153,
		TofBack:        77.456,
		EncoderRight:   -420,
		EncoderLeft:    415,
		Light:          321,
		BatteryVoltage: 3.876,
		Charging:       true,
		DistanceM:      12.3456,
	})
	want := "msg d/12/9/153.00/77.46/-420/415/321/3.88/1/12.35"
	if got := msg.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFanout(t *testing.T) {
	var a, b []string
	f := Fanout{
		EmitterFunc(func(m Message) { a = append(a, m.String()) }),
		nil,
		EmitterFunc(func(m Message) { b = append(b, m.String()) }),
	}
	f.Emit(NewEdgeMessage())

	if len(a) != 1 || len(b) != 1 || a[0] != "msg e/1" || b[0] != "msg e/1" {
		t.Errorf("a=%v b=%v", a, b)
	}
}

func TestMessageType_String(t *testing.T) {
	if TypeCollision.String() != "w" {
		t.Errorf("TypeCollision = %q", TypeCollision.String())
	}
}
