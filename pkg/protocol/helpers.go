package protocol

import (
	"fmt"
	"strconv"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// Battery alert levels
const (
	AlertNone     = 0
	AlertLow      = 1
	AlertCritical = 2
)

// Unavailable fills battery fields the gauge cannot provide.
const Unavailable = "NA"

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// fixed2 formats a float with two decimals.
func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// NewBatteryMessage creates a battery status message. Percent and voltage are
// right-aligned in six columns.
func NewBatteryMessage(percent, voltage float64, charging bool, alert int) Message {
	return Message{Type: TypeBattery, Fields: []string{
		fmt.Sprintf("%6.2f", percent),
		fmt.Sprintf("%6.2f", voltage),
		flag(charging),
		strconv.Itoa(alert),
	}}
}

// NewBatteryUnavailableMessage reports that no fuel gauge is present.
func NewBatteryUnavailableMessage() Message {
	return Message{Type: TypeBattery, Fields: []string{Unavailable, Unavailable, Unavailable, "0"}}
}

// NewPowerMessage reports a charger transition.
func NewPowerMessage(charging bool) Message {
	return Message{Type: TypePower, Fields: []string{flag(charging)}}
}

// NewVerifyAck acknowledges a link verification ping.
func NewVerifyAck() Message {
	return Message{Type: TypeStatus}
}

// NewSetupOK reports a clean startup.
func NewSetupOK() Message {
	return Message{Type: TypeStatus, Fields: []string{"1"}}
}

// NewRotationDone reports a finished rotation.
func NewRotationDone() Message {
	return Message{Type: TypeRotation, Fields: []string{"1"}}
}

// NewEdgeMessage reports a table edge.
func NewEdgeMessage() Message {
	return Message{Type: TypeEdge, Fields: []string{"1"}}
}

// NewCollisionMessage reports a latched front collision.
func NewCollisionMessage() Message {
	return Message{Type: TypeCollision, Fields: []string{"1"}}
}

// NewLightMessage reports a darkness transition: l/0 when it became dark,
// l/1 when it became light.
func NewLightMessage(dark bool) Message {
	return Message{Type: TypeLight, Fields: []string{flag(!dark)}}
}

// SensorBundle is the payload of a sensor message.
type SensorBundle struct {
	IRRight        int     `json:"ir_right"`
	IRLeft         int     `json:"ir_left"`
	TofFront       float64 `json:"tof_front"`
	TofBack        float64 `json:"tof_back"`
	EncoderRight   int64   `json:"encoder_right"`
	EncoderLeft    int64   `json:"encoder_left"`
	Light          int     `json:"light"`
	BatteryVoltage float64 `json:"battery_voltage"`
	Charging       bool    `json:"charging"`
	DistanceM      float64 `json:"distance_m"`
}

// NewSensorMessage creates the sensor bundle message.
func NewSensorMessage(s SensorBundle) Message {
	return Message{Type: TypeSensors, Fields: []string{
		strconv.Itoa(s.IRRight),
		strconv.Itoa(s.IRLeft),
		fixed2(s.TofFront),
		fixed2(s.TofBack),
		strconv.FormatInt(s.EncoderRight, 10),
		strconv.FormatInt(s.EncoderLeft, 10),
		strconv.Itoa(s.Light),
		fixed2(s.BatteryVoltage),
		flag(s.Charging),
		fixed2(s.DistanceM),
	}}
}
