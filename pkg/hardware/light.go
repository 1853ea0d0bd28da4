package hardware

import (
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"

	"github.com/teslashibe/go-playbot/pkg/robot"
)

// DefaultBrightness is the power-on status light level.
const DefaultBrightness = 5

type rgb struct{ r, g, b uint8 }

var modeColors = map[robot.LightMode]rgb{
	robot.LightIdle:     {0xff, 0x14, 0x93},
	robot.LightCharging: {0x00, 0x00, 0xff},
	robot.LightSuccess:  {0x00, 0xff, 0x00},
	robot.LightError:    {0xff, 0x00, 0x00},
}

// RGBLight is a status light made of three dimmable channels, such as the
// red, green and blue LEDs of a sysfs multicolour LED.
type RGBLight struct {
	r, g, b gpio.PinOut

	mu         sync.Mutex
	mode       robot.LightMode
	brightness uint8
}

// NewRGBLight returns a light showing the idle colour.
func NewRGBLight(r, g, b gpio.PinOut) (*RGBLight, error) {
	l := &RGBLight{r: r, g: g, b: b, brightness: DefaultBrightness}
	if err := l.apply(); err != nil {
		return nil, err
	}
	return l, nil
}

// SetBrightness scales every channel, 0 to 255.
func (l *RGBLight) SetBrightness(level uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.brightness = level
	return l.apply()
}

// SetMode switches the colour.
func (l *RGBLight) SetMode(mode robot.LightMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
	return l.apply()
}

func (l *RGBLight) apply() error {
	c := modeColors[l.mode]
	return multierr.Combine(
		l.r.PWM(l.duty(c.r), 0),
		l.g.PWM(l.duty(c.g), 0),
		l.b.PWM(l.duty(c.b), 0),
	)
}

func (l *RGBLight) duty(channel uint8) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(channel) * int64(l.brightness) / (255 * 255))
}

// Close turns the light off.
func (l *RGBLight) Close() error {
	return multierr.Combine(l.r.Out(gpio.Low), l.g.Out(gpio.Low), l.b.Out(gpio.Low))
}
