// Package pixel holds the fixed-width color values and the immutable frames
// that flow through the streaming pipeline.
package pixel

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	WhiteOffset uint8 = 0x18
	RedOffset   uint8 = 0x10
	GreenOffset uint8 = 0x08
	BlueOffset  uint8 = 0x0
)

// Pixel is one LED worth of 8-bit channels. W is ignored by 3-channel strips.
type Pixel struct {
	R, G, B, W uint8
}

var Black = Pixel{}

func RGB(r, g, b uint8) Pixel {
	return Pixel{R: r, G: g, B: b}
}

func RGBW(r, g, b, w uint8) Pixel {
	return Pixel{R: r, G: g, B: b, W: w}
}

// FromColor converts any image/color value down to 8 bits per channel.
// Alpha is not kept; the color is un-premultiplied first.
func FromColor(c color.Color) Pixel {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Pixel{R: n.R, G: n.G, B: n.B}
}

// FromColorful clamps a floating point color into range and quantizes it.
func FromColorful(c colorful.Color) Pixel {
	r, g, b := c.Clamped().RGB255()
	return Pixel{R: r, G: g, B: b}
}

// NRGBA returns the opaque color for drawing previews.
func (p Pixel) NRGBA() color.NRGBA {
	return color.NRGBA{R: p.R, G: p.G, B: p.B, A: 255}
}

// Packed returns 0xWWRRGGBB, the layout used by ws281x style C libraries.
func (p Pixel) Packed() uint32 {
	return uint32(p.W)<<WhiteOffset |
		uint32(p.R)<<RedOffset |
		uint32(p.G)<<GreenOffset |
		uint32(p.B)<<BlueOffset
}

func Unpack(v uint32) Pixel {
	return Pixel{
		W: getchannel(v, WhiteOffset),
		R: getchannel(v, RedOffset),
		G: getchannel(v, GreenOffset),
		B: getchannel(v, BlueOffset),
	}
}

func getchannel(v uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((v & mask) >> off)
}

// Scale multiplies every channel by s/256, rounding down.
func (p Pixel) Scale(s uint8) Pixel {
	return Pixel{
		R: scale8(p.R, s),
		G: scale8(p.G, s),
		B: scale8(p.B, s),
		W: scale8(p.W, s),
	}
}

func scale8(v, s uint8) uint8 {
	return uint8((uint16(v) * (uint16(s) + 1)) >> 8)
}
