package layout

// Layout maps matrix coordinates onto a single strip. A plain strip is a
// Width x 1 matrix.
type Layout struct {
	Width, Height int
	// Serpentine strips run every odd row backwards.
	Serpentine bool
}

func Strip(n int) Layout { return Layout{Width: n, Height: 1} }

// Index maps x,y -> linear LED index (0..N-1)
func (l Layout) Index(x, y int) int {
	if l.Serpentine && y%2 == 1 {
		x = l.Width - 1 - x
	}
	return y*l.Width + x
}

// XY is the inverse of Index.
func (l Layout) XY(i int) (x, y int) {
	y = i / l.Width
	x = i % l.Width
	if l.Serpentine && y%2 == 1 {
		x = l.Width - 1 - x
	}
	return x, y
}

func (l Layout) Count() int {
	return l.Width * l.Height
}

// UV is the normalized position of LED i in [0,1]x[0,1].
func (l Layout) UV(i int) (u, v float64) {
	x, y := l.XY(i)
	return norm(x, l.Width), norm(y, l.Height)
}

func norm(v, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(v) / float64(n-1)
}
