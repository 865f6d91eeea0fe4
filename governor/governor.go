// Package governor watches how fast frames are produced and consumed and
// decides when the producer should back off.
//
// Both histories are bounded windows so a change in timing shows up within
// Window samples instead of being diluted forever.
package governor

import (
	"time"
)

const (
	DefaultWindow = 8
	DefaultStreak = 3
)

type Config struct {
	// Window is the number of interval samples kept per side.
	Window int
	// Streak is how many recent samples must agree before the producer is
	// considered to be running ahead of the consumer.
	Streak int
	// ThrottleOccupancy is the buffer occupancy at which the producer is
	// throttled. Zero means capacity-1 (at least 1); negative disables the
	// occupancy rule.
	ThrottleOccupancy int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Streak <= 0 {
		c.Streak = DefaultStreak
	}
	if c.Streak > c.Window {
		c.Streak = c.Window
	}
	return c
}

// Governor keeps independent produce and consume histories. RecordProduce
// belongs to the producer context and RecordConsume to the consumer context;
// everything else may be called from either.
type Governor struct {
	cfg     Config
	produce *History
	consume *History
}

func New(cfg Config) *Governor {
	cfg = cfg.withDefaults()
	return &Governor{
		cfg:     cfg,
		produce: NewHistory(cfg.Window),
		consume: NewHistory(cfg.Window),
	}
}

func (g *Governor) Config() Config { return g.cfg }

func (g *Governor) RecordProduce(ts time.Time) { g.produce.Record(ts) }

func (g *Governor) RecordConsume(ts time.Time) { g.consume.Record(ts) }

func (g *Governor) Produce() *History { return g.produce }

func (g *Governor) Consume() *History { return g.consume }

func (g *Governor) ProducePeriod() time.Duration {
	d, _ := g.produce.Mean()
	return d
}

func (g *Governor) ConsumePeriod() time.Duration {
	d, _ := g.consume.Mean()
	return d
}

// EstimatedPeriod is how long one frame takes end to end: the slower of the
// two sides. Zero until at least one interval has been observed.
func (g *Governor) EstimatedPeriod() time.Duration {
	p, pn := g.produce.Mean()
	c, cn := g.consume.Mean()
	switch {
	case pn == 0:
		return c
	case cn == 0:
		return p
	case p > c:
		return p
	}
	return c
}

// EstimatedFPS is the achievable frame rate implied by EstimatedPeriod.
func (g *Governor) EstimatedFPS() float64 {
	p := g.EstimatedPeriod()
	if p <= 0 {
		return 0
	}
	return float64(time.Second) / float64(p)
}

// ProducerAhead reports whether each of the last Streak produce intervals
// was shorter than the mean of the last Streak consume intervals.
func (g *Governor) ProducerAhead() bool {
	k := g.cfg.Streak
	_, pmax, pn := g.produce.Window(k)
	csum, _, cn := g.consume.Window(k)
	if pn < k || cn < k {
		return false
	}
	return pmax < csum/time.Duration(cn)
}

// ThrottleThreshold resolves the occupancy rule against a buffer capacity.
// It returns 0 when the occupancy rule is disabled.
func (g *Governor) ThrottleThreshold(capacity int) int {
	switch {
	case g.cfg.ThrottleOccupancy < 0:
		return 0
	case g.cfg.ThrottleOccupancy > 0:
		return g.cfg.ThrottleOccupancy
	case capacity <= 1:
		return 1
	}
	return capacity - 1
}

// ShouldThrottleProducer tells the producer to skip its next frame. An
// empty buffer is never throttled, even while ProducerAhead reports true:
// the consumer is waiting on it, and a Starved tick records no consume
// sample, so throttling there would starve the strip with nothing to ever
// lift the throttle. Callers that want the interval rule alone should ask
// ProducerAhead.
func (g *Governor) ShouldThrottleProducer(occupancy, capacity int) bool {
	if occupancy <= 0 {
		return false
	}
	if th := g.ThrottleThreshold(capacity); th > 0 && occupancy >= th {
		return true
	}
	return g.ProducerAhead()
}

// PacingDelay is how much longer the producer should wait, given the time
// since its last frame, to match the consumer's pace.
func (g *Governor) PacingDelay(sinceLast time.Duration) time.Duration {
	d := g.ConsumePeriod() - sinceLast
	if d < 0 {
		return 0
	}
	return d
}

// Reset clears both histories. Both contexts must be quiescent.
func (g *Governor) Reset() {
	g.produce.Reset()
	g.consume.Reset()
}
