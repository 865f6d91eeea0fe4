package transmit

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/devices/v3/screen1d"
	"periph.io/x/host/v3"

	"github.com/coreman2200/ledstream/pixel"
)

// Drawer feeds frames to any periph display.Drawer by decoding the
// serialized bytes back into a 1xN image.
type Drawer struct {
	mu    sync.Mutex
	d     display.Drawer
	order pixel.ColorOrder
	img   *image.NRGBA
	halt  bool

	closer io.Closer
}

// NewDrawer expects frames serialized in order for ledCount LEDs.
func NewDrawer(d display.Drawer, order pixel.ColorOrder, ledCount int) (*Drawer, error) {
	if ledCount <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", ledCount)
	}
	if order.IsZero() {
		order = pixel.GRB
	}
	return &Drawer{
		d:     d,
		order: order,
		img:   image.NewNRGBA(image.Rect(0, 0, ledCount, 1)),
	}, nil
}

func (w *Drawer) String() string { return w.d.String() }

func (w *Drawer) Send(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.halt {
		return ErrClosed
	}
	ch := w.order.Channels()
	n := w.img.Rect.Dx()
	if len(frame) != n*ch {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), n*ch)
	}
	for x := 0; x < n; x++ {
		p := w.order.Decode(frame[x*ch:])
		w.img.SetNRGBA(x, 0, color.NRGBA{R: p.R, G: p.G, B: p.B, A: 255})
	}
	if err := w.d.Draw(w.d.Bounds(), w.img, image.Point{}); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

func (w *Drawer) IsBusy() bool { return false }

// Close blanks the device.
func (w *Drawer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.halt {
		return nil
	}
	w.halt = true
	err := w.d.Halt()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// DefaultNRZFreq is the WS2812 bit rate.
const DefaultNRZFreq = 800 * physic.KiloHertz

// NewNRZLED drives a strip through the periph nrzled SPI driver.
func NewNRZLED(port spi.Port, order pixel.ColorOrder, ledCount int, freq physic.Frequency) (*Drawer, error) {
	if freq <= 0 {
		freq = DefaultNRZFreq
	}
	if order.IsZero() {
		order = pixel.GRB
	}
	d, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: ledCount,
		Channels:  order.Channels(),
		Freq:      freq,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("nrzled halt: %w", err)
	}
	return NewDrawer(d, order, ledCount)
}

// OpenNRZLED is NewNRZLED on a named spidev port.
func OpenNRZLED(dev string, order pixel.ColorOrder, ledCount int, freq physic.Frequency) (*Drawer, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", dev, err)
	}
	w, err := NewNRZLED(p, order, ledCount, freq)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	w.closer = p
	return w, nil
}

// NewConsole prints each frame as a row of ANSI colored cells on stdout.
func NewConsole(order pixel.ColorOrder, ledCount int) (*Drawer, error) {
	return NewDrawer(screen1d.New(&screen1d.Opts{X: ledCount}), order, ledCount)
}
