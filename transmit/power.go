package transmit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/stream"
)

// Per-channel draw of a WS2812B at full scale on 5V.
const (
	RedMW   = 16 * 5
	GreenMW = 11 * 5
	BlueMW  = 15 * 5
	DarkMW  = 5
)

// Milliwatts estimates what one pixel draws. A white channel is counted as
// all three color dies.
func Milliwatts(p pixel.Pixel) uint32 {
	w := uint32(p.W)
	return (uint32(p.R)*RedMW)>>8 +
		(uint32(p.G)*GreenMW)>>8 +
		(uint32(p.B)*BlueMW)>>8 +
		(w*(RedMW+GreenMW+BlueMW))>>8 +
		DarkMW
}

// BrightnessForMW lowers target until a frame drawing totalMW at full
// brightness stays under maxMW.
func BrightnessForMW(totalMW uint32, target uint8, maxMW uint32) uint8 {
	requested := uint64(totalMW) * uint64(target) / 256
	if requested > uint64(maxMW) {
		return uint8(uint64(target) * uint64(maxMW) / requested)
	}
	return target
}

// GammaCurve maps linear channel values to perceptual ones.
type GammaCurve [256]byte

func NewGammaCurve(gamma float64) *GammaCurve {
	if gamma <= 0 {
		gamma = 1
	}
	var c GammaCurve
	for i := range c {
		c[i] = uint8(math.Pow(float64(i)/255, gamma)*255 + 0.5)
	}
	return &c
}

type PowerOpts struct {
	Order pixel.ColorOrder
	// MaxMW caps the estimated draw of the whole strip; 0 means no cap.
	MaxMW      uint32
	Brightness uint8
	Gamma      float64
	Diag       diagnostics.Sink
}

// Power sits in front of another transmitter and applies brightness, an
// on/off switch, a power budget and gamma before passing the frame on.
// The controls are safe to change from any goroutine.
type Power struct {
	next  stream.Transmitter
	order pixel.ColorOrder
	buf   []byte
	diag  diagnostics.Sink

	brightness atomic.Uint32
	on         atomic.Bool
	maxMW      atomic.Uint32
	gamma      atomic.Pointer[GammaCurve]
	limited    atomic.Bool
	lastMW     atomic.Uint32

	mu sync.Mutex
}

func NewPower(next stream.Transmitter, ledCount int, o PowerOpts) *Power {
	if o.Order.IsZero() {
		o.Order = pixel.GRB
	}
	if o.Diag == nil {
		o.Diag = diagnostics.Discard
	}
	p := &Power{
		next:  next,
		order: o.Order,
		buf:   make([]byte, ledCount*o.Order.Channels()),
		diag:  o.Diag,
	}
	p.brightness.Store(uint32(o.Brightness))
	p.maxMW.Store(o.MaxMW)
	p.on.Store(true)
	p.SetGamma(o.Gamma)
	return p
}

func (p *Power) SetBrightness(b uint8) { p.brightness.Store(uint32(b)) }

func (p *Power) Brightness() uint8 { return uint8(p.brightness.Load()) }

func (p *Power) SetOn(on bool) { p.on.Store(on) }

func (p *Power) On() bool { return p.on.Load() }

func (p *Power) SetMaxMW(mw uint32) { p.maxMW.Store(mw) }

func (p *Power) SetGamma(g float64) { p.gamma.Store(NewGammaCurve(g)) }

// LastMW is the estimated draw of the last frame after limiting.
func (p *Power) LastMW() uint32 { return p.lastMW.Load() }

func (p *Power) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(frame) > len(p.buf) {
		return ErrFrameSize
	}
	ch := p.order.Channels()

	target := uint8(0)
	if p.on.Load() {
		target = p.Brightness()
	}
	var total uint32
	for i := 0; i+ch <= len(frame); i += ch {
		total += Milliwatts(p.order.Decode(frame[i:]))
	}
	budget := p.maxMW.Load()
	scale := target
	if budget > 0 {
		scale = BrightnessForMW(total, target, budget)
	}
	p.noteLimit(scale < target, total, budget)

	g := p.gamma.Load()
	var out uint32
	for i := 0; i+ch <= len(frame); i += ch {
		px := p.order.Decode(frame[i:]).Scale(scale)
		out += Milliwatts(px)
		px = pixel.RGBW(g[px.R], g[px.G], g[px.B], g[px.W])
		p.order.Encode(p.buf[i:], px)
	}
	p.lastMW.Store(out)
	return p.next.Send(p.buf[:len(frame)])
}

// noteLimit reports only the transition into limiting.
func (p *Power) noteLimit(limited bool, total, budget uint32) {
	if p.limited.Swap(limited) == limited || !limited {
		return
	}
	p.diag(diagnostics.Diagnostic{
		Time:     time.Now(),
		Severity: diagnostics.Warn,
		Code:     diagnostics.PowerLimited,
		Summary:  "Brightness reduced to stay within the power budget",
		Evidence: map[string]any{"requested_mw": total, "max_mw": budget},
	})
}

func (p *Power) IsBusy() bool { return p.next.IsBusy() }
