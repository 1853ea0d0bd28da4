// Package config holds the tunables of the PlayBot controller.
//
// Defaults reproduce the values the robot ships with. A YAML file may override
// any subset of them and a handful of environment variables override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultSerialPort    = "/dev/ttyGS0"
	DefaultBaud          = 115200
	DefaultStorageRoot   = "/media/playbot"
	DefaultLogLevel      = "info"
	DefaultTelemetryAddr = ""
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Link configures the serial connection to the companion device.
type Link struct {
	Port     string        `yaml:"port"`
	Baud     int           `yaml:"baud"`
	MaxRead  int           `yaml:"max_read"`
	BaudFile string        `yaml:"baud_file"`
	BaudPoll time.Duration `yaml:"baud_poll"`
}

// Light configures the ambient light detector.
type Light struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold int           `yaml:"threshold"`
	DarkLevel uint8         `yaml:"dark_brightness"`
	LitLevel  uint8         `yaml:"lit_brightness"`
}

// IR configures the edge detector.
type IR struct {
	Interval       time.Duration `yaml:"interval"`
	RightThreshold int           `yaml:"right_threshold"`
	LeftThreshold  int           `yaml:"left_threshold"`
	Window         int           `yaml:"window"`
}

// Collision configures the front time-of-flight detector.
type Collision struct {
	Interval        time.Duration `yaml:"interval"`
	ThresholdMM     float64       `yaml:"threshold_mm"`
	MinValidMM      float64       `yaml:"min_valid_mm"`
	MaxValidMM      float64       `yaml:"max_valid_mm"`
	SmoothingFactor float64       `yaml:"smoothing_factor"`
	Validation      int           `yaml:"validation"`
}

// Battery configures the charge monitor.
type Battery struct {
	Interval        time.Duration `yaml:"interval"`
	LowPercent      float64       `yaml:"low_percent"`
	CriticalPercent float64       `yaml:"critical_percent"`
	USBThresholdV   float64       `yaml:"usb_threshold_v"`
}

// Odometry configures the distance tracker.
type Odometry struct {
	Interval    time.Duration `yaml:"interval"`
	LogInterval time.Duration `yaml:"log_interval"`
	File        string        `yaml:"file"`
}

// PID holds the gains shared by both wheel loops.
type PID struct {
	Kp     float64       `yaml:"kp"`
	Ki     float64       `yaml:"ki"`
	Kd     float64       `yaml:"kd"`
	Limit  float64       `yaml:"limit"`
	Sample time.Duration `yaml:"sample"`
}

// Motion configures drive and rotation behaviour.
type Motion struct {
	RotationSpeed      int     `yaml:"rotation_speed"`
	TicksPerTurn       int     `yaml:"ticks_per_turn"`
	Motor1Compensation float64 `yaml:"motor1_compensation"`
	Motor2Compensation float64 `yaml:"motor2_compensation"`
	HeadMinMicros      int     `yaml:"head_min_us"`
	HeadMaxMicros      int     `yaml:"head_max_us"`
}

// Animation configures playback.
type Animation struct {
	FramePeriod time.Duration `yaml:"frame_period"`
	BufferSize  int           `yaml:"buffer_size"`
	LineSize    int           `yaml:"line_size"`
}

// Geometry describes the drive train.
type Geometry struct {
	WheelDiameterMM float64 `yaml:"wheel_diameter_mm"`
	WheelBaseMM     float64 `yaml:"wheel_base_mm"`
	EncoderPPR      float64 `yaml:"encoder_ppr"`
}

// Hardware names the buses, addresses and pins of the physical robot.
// Pin names are resolved through the host's GPIO registry.
type Hardware struct {
	I2CBus    string `yaml:"i2c_bus"`
	MuxAddr   uint16 `yaml:"mux_addr"`
	RangeAddr uint16 `yaml:"range_addr"`
	GaugeAddr uint16 `yaml:"gauge_addr"`

	Motor1PWM   string `yaml:"motor1_pwm"`
	Motor1Dir   string `yaml:"motor1_dir"`
	Motor2PWM   string `yaml:"motor2_pwm"`
	Motor2Dir   string `yaml:"motor2_dir"`
	FlipM1      bool   `yaml:"flip_m1"`
	FlipM2      bool   `yaml:"flip_m2"`
	MotorPWMHz  int64  `yaml:"motor_pwm_hz"`
	RightEncA   string `yaml:"right_enc_a"`
	RightEncB   string `yaml:"right_enc_b"`
	LeftEncA    string `yaml:"left_enc_a"`
	LeftEncB    string `yaml:"left_enc_b"`
	ServoPin    string `yaml:"servo_pin"`
	ServoHz     int64  `yaml:"servo_hz"`
	StatusRed   string `yaml:"status_red"`
	StatusGreen string `yaml:"status_green"`
	StatusBlue  string `yaml:"status_blue"`
	IRLeftPath  string `yaml:"ir_left_path"`
	IRRightPath string `yaml:"ir_right_path"`
	LightPath   string `yaml:"light_path"`
	USBPath     string `yaml:"usb_detect_path"`
	ADCBits     int    `yaml:"adc_bits"`
}

// Log configures internal/log.
type Log struct {
	Level        string        `yaml:"level"`
	File         string        `yaml:"file"`
	MaxSizeMB    int           `yaml:"max_size_mb"`
	MaxBackups   int           `yaml:"max_backups"`
	SendInterval time.Duration `yaml:"send_interval"`
}

// Config is the complete controller configuration.
type Config struct {
	Link          Link          `yaml:"link"`
	Light         Light         `yaml:"light"`
	IR            IR            `yaml:"ir"`
	Collision     Collision     `yaml:"collision"`
	Battery       Battery       `yaml:"battery"`
	Odometry      Odometry      `yaml:"odometry"`
	PID           PID           `yaml:"pid"`
	Motion        Motion        `yaml:"motion"`
	Animation     Animation     `yaml:"animation"`
	Geometry      Geometry      `yaml:"geometry"`
	Hardware      Hardware      `yaml:"hardware"`
	Log           Log           `yaml:"log"`
	StorageRoot   string        `yaml:"storage_root"`
	TelemetryAddr string        `yaml:"telemetry_addr"`
	LoopPeriod    time.Duration `yaml:"loop_period"`
}

// Default returns the configuration the robot ships with.
func Default() Config {
	return Config{
		Link: Link{
			Port:     DefaultSerialPort,
			Baud:     DefaultBaud,
			MaxRead:  80,
			BaudPoll: 100 * time.Millisecond,
		},
		Light: Light{
			Interval:  200 * time.Millisecond,
			Threshold: 10,
			DarkLevel: 50,
			LitLevel:  10,
		},
		IR: IR{
			Interval:       8 * time.Millisecond,
			RightThreshold: 15,
			LeftThreshold:  15,
			Window:         10,
		},
		Collision: Collision{
			Interval:        4 * time.Millisecond,
			ThresholdMM:     70,
			MinValidMM:      0,
			MaxValidMM:      1800,
			SmoothingFactor: 2,
			Validation:      30,
		},
		Battery: Battery{
			Interval:        250 * time.Millisecond,
			LowPercent:      15,
			CriticalPercent: 5,
			USBThresholdV:   1.5,
		},
		Odometry: Odometry{
			Interval:    100 * time.Millisecond,
			LogInterval: 10 * time.Second,
			File:        "distance.txt",
		},
		PID: PID{
			Kp:     1.5,
			Ki:     0.5,
			Kd:     0.01,
			Limit:  1023,
			Sample: time.Millisecond,
		},
		Motion: Motion{
			RotationSpeed:      200,
			TicksPerTurn:       1854,
			Motor1Compensation: 1.0,
			Motor2Compensation: 1.0,
			HeadMinMicros:      500,
			HeadMaxMicros:      2500,
		},
		Animation: Animation{
			FramePeriod: 33 * time.Millisecond,
			BufferSize:  512,
			LineSize:    64,
		},
		Geometry: Geometry{
			WheelDiameterMM: 33.5,
			WheelBaseMM:     81,
			EncoderPPR:      813,
		},
		Hardware: Hardware{
			I2CBus:      "",
			MuxAddr:     0x70,
			RangeAddr:   0x52,
			GaugeAddr:   0x36,
			Motor1PWM:   "GPIO12",
			Motor1Dir:   "GPIO5",
			Motor2PWM:   "GPIO13",
			Motor2Dir:   "GPIO6",
			FlipM1:      true,
			MotorPWMHz:  20000,
			RightEncA:   "GPIO17",
			RightEncB:   "GPIO27",
			LeftEncA:    "GPIO22",
			LeftEncB:    "GPIO23",
			ServoPin:    "GPIO18",
			ServoHz:     50,
			StatusRed:   "status:red",
			StatusGreen: "status:green",
			StatusBlue:  "status:blue",
			IRLeftPath:  "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			IRRightPath: "/sys/bus/iio/devices/iio:device0/in_voltage1_raw",
			LightPath:   "/sys/bus/iio/devices/iio:device0/in_voltage2_raw",
			USBPath:     "/sys/bus/iio/devices/iio:device0/in_voltage3_raw",
			ADCBits:     12,
		},
		Log: Log{
			Level:        DefaultLogLevel,
			MaxSizeMB:    5,
			MaxBackups:   3,
			SendInterval: time.Second,
		},
		StorageRoot:   DefaultStorageRoot,
		TelemetryAddr: DefaultTelemetryAddr,
		LoopPeriod:    time.Millisecond,
	}
}

// Load reads a YAML file on top of Default, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode strictly decodes YAML into cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// ApplyEnv overrides fields from PLAYBOT_* environment variables.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv("PLAYBOT_SERIAL_PORT"); port != "" {
		c.Link.Port = port
	}
	if baud := os.Getenv("PLAYBOT_BAUD"); baud != "" {
		n, err := strconv.Atoi(baud)
		if err != nil {
			return fmt.Errorf("config: PLAYBOT_BAUD: %w", err)
		}
		c.Link.Baud = n
	}
	if root := os.Getenv("PLAYBOT_STORAGE_ROOT"); root != "" {
		c.StorageRoot = root
	}
	if level := os.Getenv("PLAYBOT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if addr := os.Getenv("PLAYBOT_TELEMETRY_ADDR"); addr != "" {
		c.TelemetryAddr = addr
	}
	return nil
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	intervals := map[string]time.Duration{
		"light.interval":         c.Light.Interval,
		"ir.interval":            c.IR.Interval,
		"collision.interval":     c.Collision.Interval,
		"battery.interval":       c.Battery.Interval,
		"odometry.interval":      c.Odometry.Interval,
		"odometry.log_interval":  c.Odometry.LogInterval,
		"pid.sample":             c.PID.Sample,
		"animation.frame_period": c.Animation.FramePeriod,
		"loop_period":            c.LoopPeriod,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, name, d)
		}
	}

	switch {
	case c.Link.Baud <= 0:
		return fmt.Errorf("%w: link.baud must be positive", ErrInvalid)
	case c.Link.MaxRead <= 0:
		return fmt.Errorf("%w: link.max_read must be positive", ErrInvalid)
	case c.IR.Window <= 0:
		return fmt.Errorf("%w: ir.window must be positive", ErrInvalid)
	case c.Collision.SmoothingFactor < 1:
		return fmt.Errorf("%w: collision.smoothing_factor must be at least 1", ErrInvalid)
	case c.Collision.Validation <= 0:
		return fmt.Errorf("%w: collision.validation must be positive", ErrInvalid)
	case c.Collision.MinValidMM >= c.Collision.MaxValidMM:
		return fmt.Errorf("%w: collision plausibility window is inverted", ErrInvalid)
	case c.Motion.HeadMinMicros >= c.Motion.HeadMaxMicros:
		return fmt.Errorf("%w: motion head range is inverted", ErrInvalid)
	case c.Motion.TicksPerTurn <= 0:
		return fmt.Errorf("%w: motion.ticks_per_turn must be positive", ErrInvalid)
	case c.PID.Limit <= 0:
		return fmt.Errorf("%w: pid.limit must be positive", ErrInvalid)
	case c.Battery.CriticalPercent > c.Battery.LowPercent:
		return fmt.Errorf("%w: battery critical level above low level", ErrInvalid)
	case c.Animation.BufferSize <= 0 || c.Animation.LineSize <= 1:
		return fmt.Errorf("%w: animation buffers too small", ErrInvalid)
	case c.Geometry.EncoderPPR <= 0 || c.Geometry.WheelDiameterMM <= 0:
		return fmt.Errorf("%w: geometry must be positive", ErrInvalid)
	case c.Hardware.ADCBits < 10 || c.Hardware.ADCBits > 16:
		return fmt.Errorf("%w: hardware.adc_bits must be between 10 and 16", ErrInvalid)
	case c.Hardware.MotorPWMHz <= 0 || c.Hardware.ServoHz <= 0:
		return fmt.Errorf("%w: hardware PWM frequencies must be positive", ErrInvalid)
	}
	return nil
}

// MMPerTick is the wheel travel per encoder count.
func (g Geometry) MMPerTick() float64 {
	return math.Pi * g.WheelDiameterMM / g.EncoderPPR
}
