package pixel

import "fmt"

// Canvas is the mutable side of a Frame. The producer draws into a canvas
// and freezes it once the frame is complete.
type Canvas struct {
	px []Pixel
}

func NewCanvas(ledCount int) (*Canvas, error) {
	if ledCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, ledCount)
	}
	return &Canvas{px: make([]Pixel, ledCount)}, nil
}

// Reclaim turns a frame that has been fully consumed back into a canvas,
// reusing its storage. The frame must not be read afterwards.
func Reclaim(f *Frame) *Canvas {
	c := &Canvas{px: f.px}
	f.px = nil
	return c
}

func (c *Canvas) Len() int { return len(c.px) }

func (c *Canvas) At(i int) Pixel { return c.px[i] }

func (c *Canvas) Set(i int, p Pixel) { c.px[i] = p }

func (c *Canvas) Fill(p Pixel) {
	for i := range c.px {
		c.px[i] = p
	}
}

func (c *Canvas) Clear() { c.Fill(Black) }

// Pixels exposes the backing slice for bulk drawing.
func (c *Canvas) Pixels() []Pixel { return c.px }

// Freeze hands the canvas storage to a new immutable Frame without copying.
// The canvas is empty afterwards and must not be drawn to again.
func (c *Canvas) Freeze() *Frame {
	f := &Frame{px: c.px}
	c.px = nil
	return f
}
