package hardware

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// analogBits is the resolution every analog threshold is expressed in.
const analogBits = 10

// IIOInput reads a raw ADC channel from the Linux industrial I/O sysfs
// interface and rescales it to ten bits.
type IIOInput struct {
	path  string
	shift uint
}

// NewIIOInput returns a reader for path, a file such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw, on an ADC of the given
// resolution.
func NewIIOInput(path string, bits int) *IIOInput {
	shift := 0
	if bits > analogBits {
		shift = bits - analogBits
	}
	return &IIOInput{path: path, shift: uint(shift)}
}

// Read returns the current sample, 0 to 1023.
func (in *IIOInput) Read() (int, error) {
	data, err := os.ReadFile(in.path)
	if err != nil {
		return 0, fmt.Errorf("hardware: read %s: %w", in.path, err)
	}
	v, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return 0, fmt.Errorf("hardware: parse %s: %w", in.path, err)
	}
	return v >> in.shift, nil
}
