package stream

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type counters struct {
	submitted  atomic.Uint64
	accepted   atomic.Uint64
	throttled  atomic.Uint64
	bufferFull atomic.Uint64
	evicted    atomic.Uint64

	sent    atomic.Uint64
	starved atomic.Uint64
	busy    atomic.Uint64
	failed  atomic.Uint64
}

// Stats is a point-in-time snapshot. Counters are read one by one, so a
// snapshot taken while both contexts run may be off by a frame or two.
type Stats struct {
	State State `json:"state" msgpack:"state"`

	Submitted  uint64 `json:"submitted" msgpack:"submitted"`
	Accepted   uint64 `json:"accepted" msgpack:"accepted"`
	Throttled  uint64 `json:"throttled" msgpack:"throttled"`
	BufferFull uint64 `json:"buffer_full" msgpack:"buffer_full"`
	Evicted    uint64 `json:"evicted" msgpack:"evicted"`

	Sent    uint64 `json:"sent" msgpack:"sent"`
	Starved uint64 `json:"starved" msgpack:"starved"`
	Busy    uint64 `json:"busy" msgpack:"busy"`
	Failed  uint64 `json:"failed" msgpack:"failed"`

	Occupancy int `json:"occupancy" msgpack:"occupancy"`
	Capacity  int `json:"capacity" msgpack:"capacity"`

	ProducePeriod   time.Duration `json:"produce_period_ns" msgpack:"produce_period_ns"`
	ConsumePeriod   time.Duration `json:"consume_period_ns" msgpack:"consume_period_ns"`
	EstimatedPeriod time.Duration `json:"estimated_period_ns" msgpack:"estimated_period_ns"`
	EstimatedFPS    float64       `json:"estimated_fps" msgpack:"estimated_fps"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		State:           c.State(),
		Submitted:       c.stats.submitted.Load(),
		Accepted:        c.stats.accepted.Load(),
		Throttled:       c.stats.throttled.Load(),
		BufferFull:      c.stats.bufferFull.Load(),
		Evicted:         c.stats.evicted.Load(),
		Sent:            c.stats.sent.Load(),
		Starved:         c.stats.starved.Load(),
		Busy:            c.stats.busy.Load(),
		Failed:          c.stats.failed.Load(),
		Occupancy:       c.frames.Len(),
		Capacity:        c.frames.Cap(),
		ProducePeriod:   c.gov.ProducePeriod(),
		ConsumePeriod:   c.gov.ConsumePeriod(),
		EstimatedPeriod: c.gov.EstimatedPeriod(),
		EstimatedFPS:    c.gov.EstimatedFPS(),
	}
}

// MarshalZerologObject lets a snapshot be logged with Event.Object.
func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Stringer("state", s.State).
		Uint64("accepted", s.Accepted).
		Uint64("throttled", s.Throttled).
		Uint64("buffer_full", s.BufferFull).
		Uint64("evicted", s.Evicted).
		Uint64("sent", s.Sent).
		Uint64("starved", s.Starved).
		Uint64("failed", s.Failed).
		Int("occupancy", s.Occupancy).
		Dur("period", s.EstimatedPeriod).
		Float64("fps", s.EstimatedFPS)
}
