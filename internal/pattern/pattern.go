// Package pattern produces frames for demos and wiring checks.
package pattern

import (
	"fmt"
	"math"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/ledstream/internal/layout"
	"github.com/coreman2200/ledstream/pixel"
)

type Kind string

const (
	Rainbow    Kind = "rainbow"
	IndexSweep Kind = "index_sweep"
	RGBTest    Kind = "rgb_channels"
	RowSweep   Kind = "row_sweep"
	Blank      Kind = "blank"
)

func Kinds() []Kind { return []Kind{Rainbow, IndexSweep, RGBTest, RowSweep, Blank} }

func Parse(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("pattern: unknown %q", s)
}

// Finite reports whether the pattern ends on its own.
func (k Kind) Finite() bool { return k == IndexSweep || k == RowSweep }

// Runner draws one step of a pattern per call.
type Runner struct {
	kind   Kind
	layout layout.Layout
	step   int
	speed  float64 // rainbow turns per second
}

func NewRunner(kind Kind, l layout.Layout) *Runner {
	return &Runner{kind: kind, layout: l, speed: 0.25}
}

func (r *Runner) Kind() Kind { return r.kind }

// Step fills c for time t since the pattern started; returns false when
// a finite pattern is complete.
func (r *Runner) Step(c *pixel.Canvas, t time.Duration) bool {
	n := r.layout.Count()
	c.Clear()

	switch r.kind {
	case IndexSweep:
		if r.step >= n {
			return false
		}
		c.Set(r.step, pixel.RGB(255, 255, 255))
	case RGBTest:
		p := [3]pixel.Pixel{pixel.RGB(255, 0, 0), pixel.RGB(0, 255, 0), pixel.RGB(0, 0, 255)}[r.step%3]
		c.Fill(p)
	case RowSweep:
		y := r.step
		if y >= r.layout.Height {
			return false
		}
		for x := 0; x < r.layout.Width; x++ {
			c.Set(r.layout.Index(x, y), pixel.RGB(0, 255, 255)) // cyan
		}
	case Rainbow:
		phase := t.Seconds() * r.speed
		for i := 0; i < n; i++ {
			u, v := r.layout.UV(i)
			h := math.Mod(u+v+phase, 1.0) * 360
			c.Set(i, pixel.FromColorful(colorful.Hsv(h, 1, 1)))
		}
	case Blank:
	default:
		return false
	}
	r.step++
	return true
}
