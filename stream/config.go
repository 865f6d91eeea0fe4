package stream

import (
	"errors"
	"fmt"

	"github.com/coreman2200/ledstream/governor"
	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/ring"
)

var ErrConfig = errors.New("stream: invalid config")

const DefaultCapacity = 3

type Config struct {
	LEDCount int
	// Capacity is the number of frames the ring holds. It must be at least 1.
	Capacity int
	// Window and Streak size the governor histories; zero picks the
	// governor defaults.
	Window int
	Streak int
	// ThrottleOccupancy follows governor.Config.
	ThrottleOccupancy int
	Policy            ring.Policy
	// Order is the byte order frames are serialized in before Send. The
	// zero value means GRB.
	Order pixel.ColorOrder
}

// DefaultConfig is a ready-to-use config for ledCount LEDs.
func DefaultConfig(ledCount int) Config {
	return Config{
		LEDCount: ledCount,
		Capacity: DefaultCapacity,
		Window:   governor.DefaultWindow,
		Streak:   governor.DefaultStreak,
		Policy:   ring.DropNewest,
		Order:    pixel.GRB,
	}
}

func (c Config) Validate() error {
	if c.LEDCount <= 0 {
		return fmt.Errorf("%w: %w: %d", ErrConfig, pixel.ErrInvalidCount, c.LEDCount)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("%w: %w: %d", ErrConfig, ring.ErrZeroCapacity, c.Capacity)
	}
	if c.Window < 0 {
		return fmt.Errorf("%w: window %d", ErrConfig, c.Window)
	}
	if c.Streak < 0 {
		return fmt.Errorf("%w: streak %d", ErrConfig, c.Streak)
	}
	if c.Policy != ring.DropNewest && c.Policy != ring.EvictOldest {
		return fmt.Errorf("%w: policy %v", ErrConfig, c.Policy)
	}
	return nil
}

func (c Config) order() pixel.ColorOrder {
	if c.Order.IsZero() {
		return pixel.GRB
	}
	return c.Order
}

func (c Config) governor() governor.Config {
	return governor.Config{
		Window:            c.Window,
		Streak:            c.Streak,
		ThrottleOccupancy: c.ThrottleOccupancy,
	}
}
