package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/ring"
	"github.com/coreman2200/ledstream/stream"
	"github.com/coreman2200/ledstream/transmit"
)

var ErrInvalid = errors.New("config: invalid")

type Matrix struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Serpentine bool `yaml:"serpentine"`
}

type Stream struct {
	Capacity          int    `yaml:"capacity"`
	Window            int    `yaml:"window"`
	Streak            int    `yaml:"streak"`
	ThrottleOccupancy int    `yaml:"throttle_occupancy"`
	Policy            string `yaml:"policy"` // drop-newest | evict-oldest
}

type SPI struct {
	Dev      string `yaml:"dev"`      // e.g. /dev/spidev0.0
	SpeedHz  int    `yaml:"speed_hz"` // e.g. 2400000
	ResetUs  int    `yaml:"reset_us"` // e.g. 300
	Encoding string `yaml:"encoding"` // nrz3 | nrz4
}

type PWM struct {
	GPIO int `yaml:"gpio"`
}

type Power struct {
	MaxMW      uint32  `yaml:"max_mw"`
	Brightness uint8   `yaml:"brightness"`
	Gamma      float64 `yaml:"gamma"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Driver     string `yaml:"driver"` // spi | nrzled | pwm | console | sim
	LEDCount   int    `yaml:"led_count"`
	Matrix     Matrix `yaml:"matrix,omitempty"`
	ColorOrder string `yaml:"color_order"`
	FPS        int    `yaml:"fps"`
	Pattern    string `yaml:"pattern"`

	Stream   Stream `yaml:"stream"`
	SPI      SPI    `yaml:"spi,omitempty"`
	PWM      PWM    `yaml:"pwm,omitempty"`
	Power    Power  `yaml:"power"`
	HTTP     HTTP   `yaml:"http"`
	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Driver:     "sim",
		LEDCount:   60,
		ColorOrder: "GRB",
		FPS:        60,
		Pattern:    "rainbow",
		Stream: Stream{
			Capacity: stream.DefaultCapacity,
			Window:   8,
			Streak:   3,
			Policy:   ring.DropNewest.String(),
		},
		SPI: SPI{
			Dev:      "/dev/spidev0.0",
			SpeedHz:  2400000,
			ResetUs:  300,
			Encoding: transmit.NRZ3.String(),
		},
		PWM:      PWM{GPIO: 18},
		Power:    Power{Brightness: 204, Gamma: 2.2},
		HTTP:     HTTP{Addr: ":8080"},
		LogLevel: "info",
	}
}

// Load reads path over Default, so a partial file only overrides what it
// names.
func Load(path string) (*Config, error) {
	return LoadOver(path, Default())
}

// LoadOver reads path over base. Fields the file leaves out keep the value
// from base, so command line settings survive a partial file.
func LoadOver(path string, base Config) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := base
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Count is the number of LEDs, taken from the matrix when one is set.
func (c *Config) Count() int {
	if c.Matrix.Width > 0 && c.Matrix.Height > 0 {
		return c.Matrix.Width * c.Matrix.Height
	}
	return c.LEDCount
}

func (c *Config) Validate() error {
	if c.Count() <= 0 {
		return fmt.Errorf("%w: led_count %d", ErrInvalid, c.Count())
	}
	if c.Matrix.Width < 0 || c.Matrix.Height < 0 {
		return fmt.Errorf("%w: matrix %dx%d", ErrInvalid, c.Matrix.Width, c.Matrix.Height)
	}
	if c.FPS < 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalid, c.FPS)
	}
	if _, err := pixel.ParseColorOrder(c.ColorOrder); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := ring.ParsePolicy(c.Stream.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := transmit.ParseEncoding(c.SPI.Encoding); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.StreamConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) Order() pixel.ColorOrder {
	o, err := pixel.ParseColorOrder(c.ColorOrder)
	if err != nil {
		return pixel.GRB
	}
	return o
}

// StreamConfig converts to the coordinator's config. Unparseable fields
// fall back to defaults; Validate reports them.
func (c *Config) StreamConfig() stream.Config {
	policy, _ := ring.ParsePolicy(c.Stream.Policy)
	return stream.Config{
		LEDCount:          c.Count(),
		Capacity:          c.Stream.Capacity,
		Window:            c.Stream.Window,
		Streak:            c.Stream.Streak,
		ThrottleOccupancy: c.Stream.ThrottleOccupancy,
		Policy:            policy,
		Order:             c.Order(),
	}
}

func (c *Config) SPIOpts() transmit.SPIOpts {
	enc, _ := transmit.ParseEncoding(c.SPI.Encoding)
	return transmit.SPIOpts{
		LEDCount: c.Count(),
		Channels: c.Order().Channels(),
		Speed:    physic.Frequency(c.SPI.SpeedHz) * physic.Hertz,
		Latch:    time.Duration(c.SPI.ResetUs) * time.Microsecond,
		Encoding: enc,
	}
}

// FrameBudget is the time one frame may take at the configured rate.
func (c *Config) FrameBudget() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.FPS)
}
