// Package stream moves rendered frames from a producer to a real-time
// transmitter through a bounded ring, with a governor deciding when the
// producer should back off.
//
// There are exactly two contexts. The producer calls SubmitFrame, Canvas,
// Recycle and PacingDelay. The consumer calls DriveTransmit. Stats, State and
// the accessors are safe from anywhere. Neither SubmitFrame nor DriveTransmit
// blocks or allocates once warmed up.
package stream

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/governor"
	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/ring"
)

// Transmitter is the hardware side. Send starts pushing one serialized frame
// out and may keep using the slice until IsBusy reports false again. Send is
// only called while IsBusy is false.
type Transmitter interface {
	Send(frame []byte) error
	IsBusy() bool
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock replaces time.Now for produce and consume timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithDiagnostics(s diagnostics.Sink) Option {
	return func(c *Coordinator) { c.diag = s }
}

type Coordinator struct {
	cfg   Config
	order pixel.ColorOrder
	tx    Transmitter
	gov   *governor.Governor

	frames *ring.Ring[pixel.Frame]
	// free carries consumed frames back to the producer for reuse; the
	// consumer pushes and the producer pops.
	free *ring.Ring[pixel.Frame]

	// producer owned
	spare      *pixel.Frame
	lastSubmit time.Time

	// consumer owned
	scratch []byte

	state atomic.Int32
	stats counters

	now  func() time.Time
	log  zerolog.Logger
	warn zerolog.Logger
	diag diagnostics.Sink
}

func New(cfg Config, tx Transmitter, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transmitter", ErrConfig)
	}
	frames, err := ring.New[pixel.Frame](cfg.Capacity, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	// enough for every frame that can be in flight at once
	free, err := ring.New[pixel.Frame](cfg.Capacity+2, ring.DropNewest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	c := &Coordinator{
		cfg:    cfg,
		order:  cfg.order(),
		tx:     tx,
		gov:    governor.New(cfg.governor()),
		frames: frames,
		free:   free,
		now:    time.Now,
		log:    zerolog.Nop(),
		diag:   diagnostics.Discard,
	}
	for _, o := range opts {
		o(c)
	}
	c.scratch = make([]byte, cfg.LEDCount*c.order.Channels())
	c.warn = c.log.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second})
	return c, nil
}

func (c *Coordinator) Config() Config { return c.cfg }

func (c *Coordinator) Governor() *governor.Governor { return c.gov }

func (c *Coordinator) State() State { return State(c.state.Load()) }

// Occupancy is a snapshot of how many frames are waiting.
func (c *Coordinator) Occupancy() int { return c.frames.Len() }

// SubmitFrame offers one frame to the stream. On Accepted the frame belongs
// to the stream. On Throttled or BufferFull it is untouched and still belongs
// to the caller, who may draw into it again or hand it to Recycle.
//
// A frame whose length is not the configured LED count is a programming
// error and panics with pixel.ErrLengthMismatch.
func (c *Coordinator) SubmitFrame(f *pixel.Frame) SubmitResult {
	if f == nil || f.Len() != c.cfg.LEDCount {
		n := 0
		if f != nil {
			n = f.Len()
		}
		panic(fmt.Errorf("stream: submit: %w: got %d pixels, want %d", pixel.ErrLengthMismatch, n, c.cfg.LEDCount))
	}
	c.stats.submitted.Add(1)

	now := c.now()
	c.lastSubmit = now
	c.gov.RecordProduce(now)

	if c.gov.ShouldThrottleProducer(c.frames.Len(), c.frames.Cap()) {
		c.stats.throttled.Add(1)
		return Throttled
	}

	evicted, ok := c.frames.Push(f)
	if !ok {
		c.stats.bufferFull.Add(1)
		c.desync()
		return BufferFull
	}
	if evicted != nil {
		c.stats.evicted.Add(1)
		c.keepSpare(evicted)
	}
	c.stats.accepted.Add(1)
	if c.state.CompareAndSwap(int32(Idle), int32(Streaming)) {
		c.log.Debug().Int("leds", c.cfg.LEDCount).Msg("stream started")
		c.diag(diagnostics.Diagnostic{
			Time:     now,
			Severity: diagnostics.Info,
			Code:     diagnostics.StreamStarted,
			Summary:  "First frame accepted",
		})
	}
	return Accepted
}

func (c *Coordinator) desync() {
	occ, capacity := c.frames.Len(), c.frames.Cap()
	c.warn.Warn().
		Int("occupancy", occ).
		Int("capacity", capacity).
		Dur("consume_period", c.gov.ConsumePeriod()).
		Msg("buffer full although governor allowed the frame")
	c.diag(diagnostics.Diagnostic{
		Time:     c.now(),
		Severity: diagnostics.Warn,
		Code:     diagnostics.StreamDesync,
		Summary:  "Frame buffer full although the governor allowed the frame",
		LikelyCauses: []string{
			"throttle occupancy disabled or above capacity",
			"transmitter stalled or busy for several ticks",
		},
		SuggestedFixes: []string{"lower stream.throttle_occupancy", "raise stream.capacity"},
		Evidence: map[string]any{
			"occupancy":         occ,
			"capacity":          capacity,
			"consume_period_ms": c.gov.ConsumePeriod().Milliseconds(),
		},
	})
}

// DriveTransmit sends the oldest waiting frame if the transmitter is free.
// A Failed send is returned with the transmitter's error wrapped; the frame
// is dropped, not retried.
func (c *Coordinator) DriveTransmit() (TransmitResult, error) {
	if c.tx.IsBusy() {
		c.stats.busy.Add(1)
		return Busy, nil
	}
	f, ok := c.frames.TryPop()
	if !ok {
		c.stats.starved.Add(1)
		return Starved, nil
	}

	n := f.Encode(c.scratch, c.order)
	err := c.tx.Send(c.scratch[:n])
	c.gov.RecordConsume(c.now())
	c.free.TryPush(f)

	if err != nil {
		c.stats.failed.Add(1)
		c.warn.Error().Err(err).Msg("transmit failed")
		c.diag(diagnostics.Diagnostic{
			Time:     c.now(),
			Severity: diagnostics.Err,
			Code:     diagnostics.TransmitFailed,
			Summary:  "Transmitter rejected a frame",
			Detail:   err.Error(),
		})
		return Failed, fmt.Errorf("stream: send frame: %w", err)
	}
	c.stats.sent.Add(1)
	return Sent, nil
}

// Canvas returns a canvas to draw the next frame into, reusing the storage
// of frames the transmitter is done with when there are any. Producer only.
func (c *Coordinator) Canvas() *pixel.Canvas {
	if f := c.spare; f != nil {
		c.spare = nil
		return pixel.Reclaim(f)
	}
	if f, ok := c.free.TryPop(); ok {
		return pixel.Reclaim(f)
	}
	cv, err := pixel.NewCanvas(c.cfg.LEDCount)
	if err != nil {
		// LEDCount was validated in New
		panic(err)
	}
	return cv
}

// Recycle returns a frame the producer no longer needs, such as one that was
// throttled, so Canvas can reuse it. Producer only.
func (c *Coordinator) Recycle(f *pixel.Frame) {
	if f == nil || f.Len() != c.cfg.LEDCount {
		return
	}
	c.keepSpare(f)
}

func (c *Coordinator) keepSpare(f *pixel.Frame) {
	if c.spare == nil {
		c.spare = f
	}
}

// PacingDelay is how long the producer should wait before rendering its next
// frame so it does not outrun the transmitter. Producer only.
func (c *Coordinator) PacingDelay() time.Duration {
	if c.lastSubmit.IsZero() {
		return 0
	}
	return c.gov.PacingDelay(c.now().Sub(c.lastSubmit))
}

// Reset drops every waiting frame, forgets all timing history and returns
// the coordinator to Idle. Both contexts must be stopped while it runs.
func (c *Coordinator) Reset() {
	dropped := c.frames.Drain(func(f *pixel.Frame) { c.free.TryPush(f) })
	c.gov.Reset()
	c.lastSubmit = time.Time{}
	c.state.Store(int32(Idle))
	c.log.Debug().Int("dropped", dropped).Msg("stream reset")
	c.diag(diagnostics.Diagnostic{
		Time:     c.now(),
		Severity: diagnostics.Info,
		Code:     diagnostics.StreamReset,
		Summary:  "Stream reset",
		Evidence: map[string]any{"dropped": dropped},
	})
}
