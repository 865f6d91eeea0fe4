package pixel

import (
	"errors"
	"fmt"
	"image"
)

var (
	ErrLengthMismatch = errors.New("pixel: frame length does not match LED count")
	ErrInvalidCount   = errors.New("pixel: LED count must be positive")
)

// Frame is one immutable snapshot of every LED on the strip.
//
// Once a Frame is handed to a stream it belongs to the stream; the producer
// must not keep using it.
type Frame struct {
	px []Pixel
}

// NewFrame copies px into a new frame. A length that differs from ledCount
// is a programming error and is reported as ErrLengthMismatch.
func NewFrame(ledCount int, px []Pixel) (*Frame, error) {
	if ledCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, ledCount)
	}
	if len(px) != ledCount {
		return nil, fmt.Errorf("%w: got %d pixels, want %d", ErrLengthMismatch, len(px), ledCount)
	}
	f := &Frame{px: make([]Pixel, ledCount)}
	copy(f.px, px)
	return f, nil
}

func MustFrame(ledCount int, px []Pixel) *Frame {
	f, err := NewFrame(ledCount, px)
	if err != nil {
		panic(err)
	}
	return f
}

// Solid builds a frame with every LED set to p.
func Solid(ledCount int, p Pixel) (*Frame, error) {
	c, err := NewCanvas(ledCount)
	if err != nil {
		return nil, err
	}
	c.Fill(p)
	return c.Freeze(), nil
}

func (f *Frame) Len() int { return len(f.px) }

func (f *Frame) At(i int) Pixel { return f.px[i] }

// Equal reports whether both frames hold the same pixel sequence.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if len(f.px) != len(o.px) {
		return false
	}
	for i := range f.px {
		if f.px[i] != o.px[i] {
			return false
		}
	}
	return true
}

// EncodedLen is the number of bytes Encode writes for the given order.
func (f *Frame) EncodedLen(order ColorOrder) int {
	return len(f.px) * order.Channels()
}

// Encode serializes the frame into dst in wire channel order and returns the
// number of bytes written. It does not allocate.
func (f *Frame) Encode(dst []byte, order ColorOrder) int {
	n := order.Channels()
	off := 0
	for i := range f.px {
		order.Encode(dst[off:off+n], f.px[i])
		off += n
	}
	return off
}

// Image renders the frame as a single row, for display.Drawer style sinks.
func (f *Frame) Image() *image.NRGBA {
	im := image.NewNRGBA(image.Rect(0, 0, len(f.px), 1))
	for x := range f.px {
		im.SetNRGBA(x, 0, f.px[x].NRGBA())
	}
	return im
}
