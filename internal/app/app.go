// Package app runs one stream end to end: a producer loop drawing patterns
// and a transmit loop draining the coordinator into the hardware.
package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	diag "github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/internal/config"
	"github.com/coreman2200/ledstream/internal/layout"
	"github.com/coreman2200/ledstream/internal/pattern"
	"github.com/coreman2200/ledstream/stream"
	"github.com/coreman2200/ledstream/transmit"
)

type Option func(*Core)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Core) { c.log = l }
}

func WithDiagnostics(s diag.Sink) Option {
	return func(c *Core) { c.diag = s }
}

// WithTransmitEvery sets how often the transmit loop polls the coordinator.
// It defaults to the frame budget.
func WithTransmitEvery(d time.Duration) Option {
	return func(c *Core) { c.txEvery = d }
}

// WithStatsEvery sets the stats log interval; 0 disables it.
func WithStatsEvery(d time.Duration) Option {
	return func(c *Core) { c.statsEvery = d }
}

type Core struct {
	SessionID uuid.UUID
	Stream    *stream.Coordinator
	Power     *transmit.Power

	layout layout.Layout
	log    zerolog.Logger
	diag   diag.Sink

	fps        atomic.Int64
	next       atomic.Pointer[pattern.Kind]
	txEvery    time.Duration
	statsEvery time.Duration

	// producer owned
	runner       *pattern.Runner
	patternStart time.Time

	mu      sync.Mutex
	current pattern.Kind
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the coordinator around tx, with brightness and the power budget
// applied in front of it.
func New(cfg *config.Config, tx stream.Transmitter, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := pattern.Parse(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	c := &Core{
		SessionID:  uuid.New(),
		layout:     layout.Layout{Width: cfg.Matrix.Width, Height: cfg.Matrix.Height, Serpentine: cfg.Matrix.Serpentine},
		log:        zerolog.Nop(),
		diag:       diag.Discard,
		statsEvery: time.Second,
	}
	if c.layout.Count() != cfg.Count() {
		c.layout = layout.Strip(cfg.Count())
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("session", c.SessionID.String()).Logger()

	c.Power = transmit.NewPower(tx, cfg.Count(), transmit.PowerOpts{
		Order:      cfg.Order(),
		MaxMW:      cfg.Power.MaxMW,
		Brightness: cfg.Power.Brightness,
		Gamma:      cfg.Power.Gamma,
		Diag:       c.diag,
	})
	c.Stream, err = stream.New(cfg.StreamConfig(), c.Power,
		stream.WithLogger(c.log),
		stream.WithDiagnostics(c.diag))
	if err != nil {
		return nil, err
	}

	c.SetFPS(cfg.FPS)
	c.SetPattern(kind)
	return c, nil
}

// Start launches the loops. They stop when ctx is done or Stop is called.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.produce(ctx)
	go c.transmit(ctx)
	if c.statsEvery > 0 {
		c.wg.Add(1)
		go c.logStats(ctx)
	}
	c.log.Info().
		Int("leds", c.layout.Count()).
		Int("fps", c.FPS()).
		Str("pattern", string(c.Pattern())).
		Msg("stream running")
}

// Stop cancels the loops and waits for them.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Core) FPS() int { return int(c.fps.Load()) }

// SetFPS changes the producer's target rate; values <= 0 fall back to 60.
func (c *Core) SetFPS(fps int) {
	if fps <= 0 {
		fps = 60
	}
	c.fps.Store(int64(fps))
}

func (c *Core) budget() time.Duration { return time.Second / time.Duration(c.FPS()) }

// SetPattern switches patterns on the producer's next frame.
func (c *Core) SetPattern(k pattern.Kind) {
	c.mu.Lock()
	c.current = k
	c.mu.Unlock()
	c.next.Store(&k)
}

func (c *Core) Pattern() pattern.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Core) produce(ctx context.Context) {
	defer c.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		t0 := time.Now()
		c.renderOnce(t0)

		wait := c.budget() - time.Since(t0)
		if d := c.Stream.PacingDelay(); d > wait {
			wait = d
		}
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// renderOnce draws and submits one frame; ok is false when there was
// nothing to draw. Producer only.
func (c *Core) renderOnce(now time.Time) (res stream.SubmitResult, ok bool) {
	if k := c.next.Swap(nil); k != nil {
		c.runner = pattern.NewRunner(*k, c.layout)
		c.patternStart = now
		c.diag(diag.Diagnostic{
			Time:     now,
			Severity: diag.Info,
			Code:     diag.PatternRunning,
			Summary:  fmt.Sprintf("Pattern %s running", *k),
			Evidence: map[string]any{"pattern": string(*k)},
		})
	}
	if c.runner == nil {
		return 0, false
	}

	cv := c.Stream.Canvas()
	drawn := c.runner.Step(cv, now.Sub(c.patternStart))
	f := cv.Freeze()
	if !drawn {
		c.Stream.Recycle(f)
		c.diag(diag.Diagnostic{
			Time:     now,
			Severity: diag.Info,
			Code:     diag.PatternDone,
			Summary:  fmt.Sprintf("Pattern %s finished", c.runner.Kind()),
			Evidence: map[string]any{"pattern": string(c.runner.Kind())},
		})
		c.runner = nil
		return 0, false
	}

	res = c.Stream.SubmitFrame(f)
	if res != stream.Accepted {
		c.Stream.Recycle(f)
	}
	return res, true
}

// txInterval is the transmit poll period: the fixed one if set, else the
// current frame budget.
func (c *Core) txInterval() time.Duration {
	if c.txEvery > 0 {
		return c.txEvery
	}
	return c.budget()
}

func (c *Core) transmit(ctx context.Context) {
	defer c.wg.Done()
	every := c.txInterval()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// failures are logged and reported by the coordinator
			_, _ = c.Stream.DriveTransmit()
			// follow SetFPS
			if d := c.txInterval(); d != every {
				every = d
				tick.Reset(every)
			}
		}
	}
}

func (c *Core) logStats(ctx context.Context) {
	defer c.wg.Done()
	tick := time.NewTicker(c.statsEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.log.Info().Object("stats", c.Stream.Stats()).Uint32("mw", c.Power.LastMW()).Msg("stream stats")
		}
	}
}

// Control is a partial update; nil fields are left alone.
type Control struct {
	Brightness *float64 // 0..1
	On         *bool
	Pattern    *string
	FPS        *int
}

// ApplyControl applies a live control update. Safe from any goroutine.
func (c *Core) ApplyControl(ctl Control) error {
	if ctl.Brightness != nil {
		b := math.Max(0, math.Min(1, *ctl.Brightness))
		c.Power.SetBrightness(uint8(math.Round(b * 255)))
	}
	if ctl.On != nil {
		c.Power.SetOn(*ctl.On)
	}
	if ctl.FPS != nil {
		c.SetFPS(*ctl.FPS)
	}
	if ctl.Pattern != nil {
		k, err := pattern.Parse(*ctl.Pattern)
		if err != nil {
			c.diag(diag.Diagnostic{
				Time:     time.Now(),
				Severity: diag.Warn,
				Code:     diag.PatternUnknown,
				Summary:  fmt.Sprintf("Unknown pattern %q", *ctl.Pattern),
				SuggestedFixes: []string{
					"use one of rainbow, index_sweep, rgb_channels, row_sweep, blank",
				},
			})
			return err
		}
		c.SetPattern(k)
	}
	return nil
}

// Health is the body of the health endpoint.
func (c *Core) Health() map[string]any {
	return map[string]any{
		"session":    c.SessionID.String(),
		"fps":        c.FPS(),
		"pattern":    string(c.Pattern()),
		"brightness": c.Power.Brightness(),
		"on":         c.Power.On(),
		"mw":         c.Power.LastMW(),
		"stream":     c.Stream.Stats(),
	}
}
