package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/ring"
)

const leds = 4

type recorder struct {
	busy  bool
	err   error
	sends [][]byte
}

func (r *recorder) Send(b []byte) error {
	r.sends = append(r.sends, append([]byte(nil), b...))
	return r.err
}

func (r *recorder) IsBusy() bool { return r.busy }

// first pixel of each recorded send, decoded back from GRB
func (r *recorder) firsts() []pixel.Pixel {
	out := make([]pixel.Pixel, len(r.sends))
	for i, b := range r.sends {
		out[i] = pixel.GRB.Decode(b)
	}
	return out
}

func solid(v uint8) *pixel.Frame {
	f, err := pixel.Solid(leds, pixel.RGB(v, v, v))
	if err != nil {
		panic(err)
	}
	return f
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCoordinator(t *testing.T, cfg Config, tx Transmitter, opts ...Option) (*Coordinator, *clock) {
	t.Helper()
	clk := &clock{t: time.Unix(1000, 0)}
	c, err := New(cfg, tx, append([]Option{WithClock(clk.now)}, opts...)...)
	require.NoError(t, err)
	return c, clk
}

func TestNewValidatesConfig(t *testing.T) {
	tx := &recorder{}

	_, err := New(DefaultConfig(0), tx)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, pixel.ErrInvalidCount)

	cfg := DefaultConfig(leds)
	cfg.Capacity = 0
	_, err = New(cfg, tx)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ring.ErrZeroCapacity)

	cfg = DefaultConfig(leds)
	cfg.Window = -1
	_, err = New(cfg, tx)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(DefaultConfig(leds), nil)
	assert.ErrorIs(t, err, ErrConfig)

	c, err := New(Config{LEDCount: leds, Capacity: 1}, tx)
	require.NoError(t, err)
	assert.Equal(t, Idle, c.State())
}

func TestCapacityTwoScenario(t *testing.T) {
	cfg := DefaultConfig(leds)
	cfg.Capacity = 2
	cfg.ThrottleOccupancy = -1
	tx := &recorder{}
	c, _ := newTestCoordinator(t, cfg, tx)

	f1, f2, f3 := solid(1), solid(2), solid(3)
	assert.Equal(t, Accepted, c.SubmitFrame(f1))
	assert.Equal(t, Accepted, c.SubmitFrame(f2))
	assert.Equal(t, BufferFull, c.SubmitFrame(f3))

	res, err := c.DriveTransmit()
	require.NoError(t, err)
	assert.Equal(t, Sent, res)

	assert.Equal(t, Accepted, c.SubmitFrame(f3))

	for i := 0; i < 2; i++ {
		res, err = c.DriveTransmit()
		require.NoError(t, err)
		assert.Equal(t, Sent, res)
	}
	res, err = c.DriveTransmit()
	require.NoError(t, err)
	assert.Equal(t, Starved, res)

	assert.Equal(t, []pixel.Pixel{pixel.RGB(1, 1, 1), pixel.RGB(2, 2, 2), pixel.RGB(3, 3, 3)}, tx.firsts())

	s := c.Stats()
	assert.EqualValues(t, 4, s.Submitted)
	assert.EqualValues(t, 3, s.Accepted)
	assert.EqualValues(t, 1, s.BufferFull)
	assert.EqualValues(t, 3, s.Sent)
	assert.EqualValues(t, 1, s.Starved)
}

func TestSendsSerializedFrame(t *testing.T) {
	tx := &recorder{}
	cfg := DefaultConfig(2)
	c, _ := newTestCoordinator(t, cfg, tx)

	f := pixel.MustFrame(2, []pixel.Pixel{pixel.RGB(1, 2, 3), pixel.RGB(4, 5, 6)})
	require.Equal(t, Accepted, c.SubmitFrame(f))
	_, err := c.DriveTransmit()
	require.NoError(t, err)

	require.Len(t, tx.sends, 1)
	assert.Equal(t, []byte{2, 1, 3, 5, 4, 6}, tx.sends[0])

	// round trip: what went out decodes to the frame that came in
	got := make([]pixel.Pixel, 2)
	for i := range got {
		got[i] = pixel.GRB.Decode(tx.sends[0][i*3:])
	}
	assert.True(t, pixel.MustFrame(2, got).Equal(pixel.MustFrame(2, []pixel.Pixel{pixel.RGB(1, 2, 3), pixel.RGB(4, 5, 6)})))
}

func TestRGBWOrder(t *testing.T) {
	tx := &recorder{}
	cfg := DefaultConfig(1)
	cfg.Order = pixel.GRBW
	c, _ := newTestCoordinator(t, cfg, tx)

	c.SubmitFrame(pixel.MustFrame(1, []pixel.Pixel{pixel.RGBW(1, 2, 3, 4)}))
	c.DriveTransmit()
	assert.Equal(t, []byte{2, 1, 3, 4}, tx.sends[0])
}

func TestBusyTransmitterIsNotFed(t *testing.T) {
	tx := &recorder{busy: true}
	c, _ := newTestCoordinator(t, DefaultConfig(leds), tx)

	require.Equal(t, Accepted, c.SubmitFrame(solid(1)))
	res, err := c.DriveTransmit()
	require.NoError(t, err)
	assert.Equal(t, Busy, res)
	assert.Empty(t, tx.sends)
	assert.Equal(t, 1, c.Occupancy())

	tx.busy = false
	res, _ = c.DriveTransmit()
	assert.Equal(t, Sent, res)
	assert.Equal(t, 0, c.Occupancy())
	assert.EqualValues(t, 1, c.Stats().Busy)
}

func TestFailedSendIsNotRetried(t *testing.T) {
	boom := errors.New("spi: timeout")
	tx := &recorder{err: boom}
	var diags []diagnostics.Diagnostic
	c, _ := newTestCoordinator(t, DefaultConfig(leds), tx,
		WithDiagnostics(func(d diagnostics.Diagnostic) { diags = append(diags, d) }))

	c.SubmitFrame(solid(9))
	res, err := c.DriveTransmit()
	assert.Equal(t, Failed, res)
	assert.ErrorIs(t, err, boom)

	tx.err = nil
	res, err = c.DriveTransmit()
	assert.NoError(t, err)
	assert.Equal(t, Starved, res)
	assert.Len(t, tx.sends, 1)

	// a failure is transient; the coordinator keeps streaming
	assert.Equal(t, Streaming, c.State())
	assert.EqualValues(t, 1, c.Stats().Failed)
	require.NotEmpty(t, diags)
	assert.Equal(t, diagnostics.TransmitFailed, diags[len(diags)-1].Code)
}

func TestStarvedRecordsNothing(t *testing.T) {
	tx := &recorder{}
	c, clk := newTestCoordinator(t, DefaultConfig(leds), tx)

	for i := 0; i < 5; i++ {
		clk.advance(time.Millisecond)
		res, err := c.DriveTransmit()
		require.NoError(t, err)
		assert.Equal(t, Starved, res)
	}
	assert.Zero(t, c.Governor().Consume().Len())
	assert.Empty(t, tx.sends)
	assert.Equal(t, Idle, c.State())
}

func TestConsumeTimestampsFeedGovernor(t *testing.T) {
	tx := &recorder{}
	cfg := DefaultConfig(leds)
	cfg.ThrottleOccupancy = -1
	c, clk := newTestCoordinator(t, cfg, tx)

	for i := 0; i < 4; i++ {
		c.SubmitFrame(solid(uint8(i)))
		clk.advance(20 * time.Millisecond)
		c.DriveTransmit()
	}
	assert.Equal(t, 20*time.Millisecond, c.Governor().ConsumePeriod())
	assert.Equal(t, 20*time.Millisecond, c.Stats().EstimatedPeriod)
}

func TestStateMachine(t *testing.T) {
	tx := &recorder{}
	var codes []string
	c, _ := newTestCoordinator(t, DefaultConfig(leds), tx,
		WithDiagnostics(func(d diagnostics.Diagnostic) { codes = append(codes, d.Code) }))

	assert.Equal(t, Idle, c.State())
	c.DriveTransmit()
	assert.Equal(t, Idle, c.State())

	c.SubmitFrame(solid(1))
	assert.Equal(t, Streaming, c.State())
	c.SubmitFrame(solid(2))
	c.DriveTransmit()
	c.DriveTransmit()
	c.DriveTransmit()
	assert.Equal(t, Streaming, c.State())

	c.SubmitFrame(solid(3))
	c.Reset()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 0, c.Occupancy())
	assert.Zero(t, c.Governor().Produce().Len())

	c.SubmitFrame(solid(4))
	assert.Equal(t, Streaming, c.State())
	assert.Equal(t, []string{diagnostics.StreamStarted, diagnostics.StreamReset, diagnostics.StreamStarted}, codes)
}

func TestWrongLengthPanics(t *testing.T) {
	c, _ := newTestCoordinator(t, DefaultConfig(leds), &recorder{})
	wrong, err := pixel.Solid(leds+1, pixel.Black)
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, pixel.ErrLengthMismatch)
		assert.Equal(t, Idle, c.State())
	}()
	c.SubmitFrame(wrong)
}

func TestThrottleOnOccupancy(t *testing.T) {
	tx := &recorder{}
	c, _ := newTestCoordinator(t, DefaultConfig(leds), tx)

	assert.Equal(t, Accepted, c.SubmitFrame(solid(1)))
	assert.Equal(t, Accepted, c.SubmitFrame(solid(2)))
	f := solid(3)
	assert.Equal(t, Throttled, c.SubmitFrame(f))
	assert.Equal(t, 2, c.Occupancy())

	// the throttled frame is untouched and can be offered again later
	assert.Equal(t, leds, f.Len())
	c.DriveTransmit()
	assert.Equal(t, Accepted, c.SubmitFrame(f))
	assert.EqualValues(t, 1, c.Stats().Throttled)
}

func TestThrottleFastProducer(t *testing.T) {
	tx := &recorder{}
	cfg := DefaultConfig(leds)
	cfg.Window = 3
	cfg.Streak = 3
	cfg.ThrottleOccupancy = -1
	c, clk := newTestCoordinator(t, cfg, tx)

	// the transmitter has been taking 30ms a frame
	for i := 0; i < 4; i++ {
		c.Governor().RecordConsume(clk.now())
		clk.advance(30 * time.Millisecond)
	}
	// and the producer runs at 10ms
	for i := 0; i < 4; i++ {
		c.Governor().RecordProduce(clk.now())
		clk.advance(10 * time.Millisecond)
	}
	require.True(t, c.Governor().ProducerAhead())

	// empty ring: never throttled
	assert.Equal(t, Accepted, c.SubmitFrame(solid(1)))
	clk.advance(10 * time.Millisecond)
	assert.Equal(t, Throttled, c.SubmitFrame(solid(2)))
	assert.Greater(t, c.PacingDelay(), time.Duration(0))
}

func TestEvictOldestPolicy(t *testing.T) {
	tx := &recorder{}
	cfg := DefaultConfig(leds)
	cfg.Capacity = 2
	cfg.ThrottleOccupancy = -1
	cfg.Policy = ring.EvictOldest
	c, _ := newTestCoordinator(t, cfg, tx)

	for i := 1; i <= 3; i++ {
		assert.Equal(t, Accepted, c.SubmitFrame(solid(uint8(i))))
	}
	c.DriveTransmit()
	c.DriveTransmit()
	assert.Equal(t, []pixel.Pixel{pixel.RGB(2, 2, 2), pixel.RGB(3, 3, 3)}, tx.firsts())
	assert.EqualValues(t, 1, c.Stats().Evicted)
	assert.Zero(t, c.Stats().BufferFull)
}

func TestDesyncDiagnostic(t *testing.T) {
	cfg := DefaultConfig(leds)
	cfg.Capacity = 1
	cfg.ThrottleOccupancy = -1
	var got []diagnostics.Diagnostic
	c, _ := newTestCoordinator(t, cfg, &recorder{},
		WithDiagnostics(func(d diagnostics.Diagnostic) { got = append(got, d) }))

	c.SubmitFrame(solid(1))
	assert.Equal(t, BufferFull, c.SubmitFrame(solid(2)))
	require.Len(t, got, 2)
	assert.Equal(t, diagnostics.StreamDesync, got[1].Code)
	assert.Equal(t, diagnostics.Warn, got[1].Severity)
	assert.Equal(t, 1, got[1].Evidence["occupancy"])
}

func TestCanvasReusesConsumedStorage(t *testing.T) {
	tx := &recorder{}
	c, _ := newTestCoordinator(t, DefaultConfig(leds), tx)

	cv := c.Canvas()
	require.Equal(t, leds, cv.Len())
	first := &cv.Pixels()[0]
	cv.Fill(pixel.RGB(5, 5, 5))
	require.Equal(t, Accepted, c.SubmitFrame(cv.Freeze()))
	c.DriveTransmit()

	again := c.Canvas()
	assert.Same(t, first, &again.Pixels()[0])

	// throttled frames handed back go to the spare slot first
	spare := solid(7)
	c.Recycle(spare)
	next := c.Canvas()
	assert.Equal(t, pixel.RGB(7, 7, 7), next.At(0))
	assert.Equal(t, 0, spare.Len())

	// nothing left to reuse: a fresh canvas
	fresh := c.Canvas()
	assert.Equal(t, leds, fresh.Len())
	assert.Equal(t, pixel.Black, fresh.At(0))
}

func TestConcurrentProducerConsumer(t *testing.T) {
	for _, policy := range []ring.Policy{ring.DropNewest, ring.EvictOldest} {
		t.Run(policy.String(), func(t *testing.T) {
			const total = 5000
			tx := &recorder{}
			cfg := DefaultConfig(leds)
			cfg.Policy = policy
			c, err := New(cfg, tx)
			require.NoError(t, err)

			var wg sync.WaitGroup
			done := make(chan struct{})
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(done)
				for i := 0; i < total; i++ {
					cv := c.Canvas()
					cv.Clear()
					cv.Set(0, pixel.RGB(uint8(i>>16), uint8(i>>8), uint8(i)))
					f := cv.Freeze()
					for c.SubmitFrame(f) != Accepted {
					}
				}
			}()

			last := -1
			for {
				res, err := c.DriveTransmit()
				require.NoError(t, err)
				if res == Sent {
					p := pixel.GRB.Decode(tx.sends[len(tx.sends)-1])
					seq := int(p.R)<<16 | int(p.G)<<8 | int(p.B)
					require.Greater(t, seq, last, "out of order or duplicated")
					if policy == ring.DropNewest {
						require.Equal(t, last+1, seq, "skipped a frame")
					}
					last = seq
					continue
				}
				select {
				case <-done:
					if c.Occupancy() == 0 {
						wg.Wait()
						assert.Equal(t, total-1, last)
						s := c.Stats()
						assert.Equal(t, s.Accepted, s.Sent+s.Evicted)
						return
					}
				default:
				}
			}
		})
	}
}
