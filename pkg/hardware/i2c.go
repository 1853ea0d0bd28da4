package hardware

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// PCA9540B control register values.
const (
	muxEnable   = 0x04
	muxDisabled = 0x00
	muxChannels = 2
)

// Mux is a PCA9540B two-channel I2C multiplexer. It owns the bus: Flush
// deselects both channels and Close releases the bus.
type Mux struct {
	dev    i2c.Dev
	closer func() error
	once   sync.Once
}

// NewMux returns the multiplexer at addr. closer may be nil.
func NewMux(bus i2c.Bus, addr uint16, closer func() error) *Mux {
	return &Mux{dev: i2c.Dev{Bus: bus, Addr: addr}, closer: closer}
}

// SelectChannel routes the downstream bus to channel ch.
func (m *Mux) SelectChannel(ch uint8) error {
	if ch >= muxChannels {
		return fmt.Errorf("hardware: mux channel %d out of range", ch)
	}
	return m.dev.Tx([]byte{muxEnable | ch}, nil)
}

// Flush disconnects both channels so the next read starts clean.
func (m *Mux) Flush() error {
	return m.dev.Tx([]byte{muxDisabled}, nil)
}

// Close releases the bus once.
func (m *Mux) Close() error {
	var err error
	m.once.Do(func() {
		if m.closer != nil {
			err = m.closer()
		}
	})
	return err
}

// RangeFinder is the time-of-flight sensor behind the multiplexer. Register 0
// holds the distance in millimetres, big-endian.
type RangeFinder struct {
	dev i2c.Dev
}

// NewRangeFinder returns the sensor at addr.
func NewRangeFinder(bus i2c.Bus, addr uint16) *RangeFinder {
	return &RangeFinder{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

// ReadDistance returns the measured distance in millimetres.
func (r *RangeFinder) ReadDistance() (uint16, error) {
	var buf [2]byte
	if err := r.dev.Tx([]byte{0x00}, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// MAX17048 registers
const (
	regVCell   = 0x02
	regSOC     = 0x04
	regVersion = 0x08

	vcellLSB = 78.125e-6
)

// FuelGauge is a MAX17048 single-cell fuel gauge.
type FuelGauge struct {
	dev i2c.Dev
}

// NewFuelGauge probes the gauge at addr.
func NewFuelGauge(bus i2c.Bus, addr uint16) (*FuelGauge, error) {
	g := &FuelGauge{dev: i2c.Dev{Bus: bus, Addr: addr}}
	version, err := g.read16(regVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGaugeUnavailable, err)
	}
	if version == 0 || version == 0xffff {
		return nil, fmt.Errorf("%w: bad version %#04x", ErrGaugeUnavailable, version)
	}
	return g, nil
}

func (g *FuelGauge) read16(reg byte) (uint16, error) {
	var buf [2]byte
	if err := g.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// CellVoltage returns the cell voltage in volts.
func (g *FuelGauge) CellVoltage() (float64, error) {
	raw, err := g.read16(regVCell)
	if err != nil {
		return 0, err
	}
	return float64(raw) * vcellLSB, nil
}

// CellPercent returns the state of charge in percent.
func (g *FuelGauge) CellPercent() (float64, error) {
	raw, err := g.read16(regSOC)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 256, nil
}
