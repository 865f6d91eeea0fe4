package pixel

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadColorOrder = errors.New("pixel: bad color order")

// ColorOrder is the sequence in which channels are shifted out to the strip,
// e.g. "GRB" for WS2812B or "GRBW" for SK6812 RGBW parts.
type ColorOrder struct {
	chans [4]byte
	n     int
}

var (
	GRB  = mustOrder("GRB")
	RGB8 = mustOrder("RGB")
	GRBW = mustOrder("GRBW")
)

func ParseColorOrder(s string) (ColorOrder, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 && len(s) != 4 {
		return ColorOrder{}, fmt.Errorf("%w: %q", ErrBadColorOrder, s)
	}
	var o ColorOrder
	var seen [4]bool
	for i := 0; i < len(s); i++ {
		k := channelIndex(s[i])
		if k < 0 || seen[k] {
			return ColorOrder{}, fmt.Errorf("%w: %q", ErrBadColorOrder, s)
		}
		if k == 3 && len(s) == 3 {
			return ColorOrder{}, fmt.Errorf("%w: %q has W without 4 channels", ErrBadColorOrder, s)
		}
		seen[k] = true
		o.chans[i] = s[i]
	}
	if len(s) == 4 && !seen[3] {
		return ColorOrder{}, fmt.Errorf("%w: %q", ErrBadColorOrder, s)
	}
	o.n = len(s)
	return o, nil
}

func mustOrder(s string) ColorOrder {
	o, err := ParseColorOrder(s)
	if err != nil {
		panic(err)
	}
	return o
}

func channelIndex(c byte) int {
	switch c {
	case 'R':
		return 0
	case 'G':
		return 1
	case 'B':
		return 2
	case 'W':
		return 3
	}
	return -1
}

// Channels is 3 or 4. The zero ColorOrder reports 0 and is invalid.
func (o ColorOrder) Channels() int { return o.n }

func (o ColorOrder) IsZero() bool { return o.n == 0 }

func (o ColorOrder) String() string { return string(o.chans[:o.n]) }

// Encode writes p into dst in wire order and returns the bytes written.
// dst must have room for Channels() bytes.
func (o ColorOrder) Encode(dst []byte, p Pixel) int {
	for i := 0; i < o.n; i++ {
		switch o.chans[i] {
		case 'R':
			dst[i] = p.R
		case 'G':
			dst[i] = p.G
		case 'B':
			dst[i] = p.B
		case 'W':
			dst[i] = p.W
		}
	}
	return o.n
}

// Decode is the inverse of Encode.
func (o ColorOrder) Decode(src []byte) Pixel {
	var p Pixel
	for i := 0; i < o.n; i++ {
		switch o.chans[i] {
		case 'R':
			p.R = src[i]
		case 'G':
			p.G = src[i]
		case 'B':
			p.B = src[i]
		case 'W':
			p.W = src[i]
		}
	}
	return p
}
