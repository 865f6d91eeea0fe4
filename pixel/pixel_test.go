package pixel_test

import (
	"image/color"
	"strconv"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/coreman2200/ledstream/pixel"
)

var TestChannelsPackToExpectedValue = []struct {
	W, R, G, B uint8
	Expect     uint32
}{
	{0xFF, 0x11, 0x22, 0x33, 0xFF112233},
	{0x00, 0x2A, 0x44, 0x34, 0x002A4434},
	{0xAB, 0x3B, 0x88, 0x35, 0xAB3B8835},
	{0x22, 0x4C, 0xAA, 0x36, 0x224CAA36},
}

func TestPixelPacked(t *testing.T) {
	for k, v := range TestChannelsPackToExpectedValue {
		t.Run("Given WRGB"+strconv.Itoa(k), func(t *testing.T) {
			p := RGBW(v.R, v.G, v.B, v.W)
			assert.Equal(t, v.Expect, p.Packed())
			assert.Equal(t, p, Unpack(v.Expect))
		})
	}
}

func TestPixelScale(t *testing.T) {
	p := RGB(255, 128, 1)
	assert.Equal(t, p, p.Scale(255))
	assert.Equal(t, Black, p.Scale(0))
	assert.Equal(t, RGB(127, 64, 0), p.Scale(127))
}

func TestFromColor(t *testing.T) {
	assert.Equal(t, RGB(10, 20, 30), FromColor(color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	assert.Equal(t, RGB(255, 0, 0), FromColorful(colorful.Color{R: 1.7, G: -0.2, B: 0}))
}

func TestParseColorOrder(t *testing.T) {
	for _, s := range []string{"GRB", "rgb", "BRG", "GRBW", "WRGB"} {
		o, err := ParseColorOrder(s)
		require.NoError(t, err, s)
		assert.Equal(t, len(s), o.Channels())
	}
	for _, s := range []string{"", "RG", "RRB", "RGW", "RGBX", "GRBWW"} {
		_, err := ParseColorOrder(s)
		assert.ErrorIs(t, err, ErrBadColorOrder, s)
	}
}

func TestColorOrderEncode(t *testing.T) {
	buf := make([]byte, 4)
	p := RGBW(1, 2, 3, 4)

	n := GRB.Encode(buf, p)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{2, 1, 3}, buf[:n])
	assert.Equal(t, RGB(1, 2, 3), GRB.Decode(buf))

	n = GRBW.Encode(buf, p)
	assert.Equal(t, []byte{2, 1, 3, 4}, buf[:n])
	assert.Equal(t, p, GRBW.Decode(buf))
}

func TestNewFrameRejectsWrongLength(t *testing.T) {
	const leds = 10
	for _, n := range []int{0, 9, 11} {
		f, err := NewFrame(leds, make([]Pixel, n))
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrLengthMismatch, "len %d", n)
	}
	_, err := NewFrame(0, nil)
	assert.ErrorIs(t, err, ErrInvalidCount)

	f, err := NewFrame(leds, make([]Pixel, leds))
	require.NoError(t, err)
	assert.Equal(t, leds, f.Len())

	assert.Panics(t, func() { MustFrame(leds, make([]Pixel, 9)) })
}

func TestFrameIsCopiedOnConstruction(t *testing.T) {
	src := []Pixel{RGB(1, 1, 1), RGB(2, 2, 2)}
	f := MustFrame(2, src)
	src[0] = RGB(9, 9, 9)
	assert.Equal(t, RGB(1, 1, 1), f.At(0))
}

func TestFrameEncode(t *testing.T) {
	f := MustFrame(2, []Pixel{RGB(1, 2, 3), RGB(4, 5, 6)})
	dst := make([]byte, f.EncodedLen(GRB))
	n := f.Encode(dst, GRB)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{2, 1, 3, 5, 4, 6}, dst)

	im := f.Image()
	assert.Equal(t, 2, im.Bounds().Dx())
	assert.Equal(t, color.NRGBA{R: 4, G: 5, B: 6, A: 255}, im.NRGBAAt(1, 0))
}

func TestCanvasFreezeAndReclaim(t *testing.T) {
	c, err := NewCanvas(3)
	require.NoError(t, err)
	c.Fill(RGB(7, 7, 7))
	c.Set(1, RGB(1, 2, 3))

	f := c.Freeze()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, RGB(1, 2, 3), f.At(1))
	assert.True(t, f.Equal(MustFrame(3, []Pixel{RGB(7, 7, 7), RGB(1, 2, 3), RGB(7, 7, 7)})))

	c2 := Reclaim(f)
	assert.Equal(t, 3, c2.Len())
	assert.Equal(t, 0, f.Len())
	c2.Clear()
	assert.Equal(t, Black, c2.At(1))
}

func TestSolid(t *testing.T) {
	f, err := Solid(4, RGB(0, 0, 255))
	require.NoError(t, err)
	for i := 0; i < f.Len(); i++ {
		assert.Equal(t, RGB(0, 0, 255), f.At(i))
	}
	_, err = Solid(0, Black)
	assert.ErrorIs(t, err, ErrInvalidCount)
}
