// Package transmit holds the hardware side of a stream: encoders that turn
// serialized pixels into NRZ bit patterns and transmitters that push those
// bytes at real devices, the console or other transmitters.
package transmit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

var (
	ErrFrameSize = errors.New("transmit: frame size does not match LED count")
	ErrBusy      = errors.New("transmit: previous frame still in flight")
	ErrClosed    = errors.New("transmit: closed")
)

// Encoding selects how one data bit is stretched over SPI bits so the MOSI
// line reproduces WS281x NRZ timing.
type Encoding int

const (
	// NRZ3 sends 3 SPI bits per data bit: 100 for a zero and 110 for a one.
	// Works at 2.4-3.2 MHz.
	NRZ3 Encoding = iota
	// NRZ4 sends 4 SPI bits per data bit, two data bits per output byte.
	// Works at 3.2 MHz and tolerates sloppier clocks.
	NRZ4
)

func (e Encoding) String() string {
	switch e {
	case NRZ3:
		return "nrz3"
	case NRZ4:
		return "nrz4"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "nrz3", "3bit":
		return NRZ3, nil
	case "nrz4", "4bit":
		return NRZ4, nil
	}
	return NRZ3, fmt.Errorf("transmit: unknown encoding %q", s)
}

// Expansion is the number of SPI bytes emitted per data byte.
func (e Encoding) Expansion() int {
	if e == NRZ4 {
		return 4
	}
	return 3
}

// DefaultSpeed is the SPI clock that puts one data bit at 1.25µs.
func (e Encoding) DefaultSpeed() physic.Frequency {
	if e == NRZ4 {
		return 3200 * physic.KiloHertz
	}
	return 2400 * physic.KiloHertz
}

// DefaultLatch is the low time that makes WS2812 strips latch a frame.
const DefaultLatch = 300 * time.Microsecond

// LatchBytes is how many zero bytes keep MOSI low for at least latch.
func LatchBytes(speed physic.Frequency, latch time.Duration) int {
	if speed <= 0 || latch <= 0 {
		return 0
	}
	hz := int64(speed / physic.Hertz)
	bits := (latch.Nanoseconds()*hz + int64(time.Second) - 1) / int64(time.Second)
	return int((bits + 7) / 8)
}

var nrz4Patterns = [4]byte{0b1000_1000, 0b1000_1110, 0b1110_1000, 0b1110_1110}

// Encoder expands data bytes into NRZ bit patterns followed by a latch tail.
type Encoder struct {
	enc   Encoding
	width int
	latch int
	lut   [256][4]byte
}

func NewEncoder(enc Encoding, latchBytes int) *Encoder {
	if latchBytes < 0 {
		latchBytes = 0
	}
	e := &Encoder{enc: enc, width: enc.Expansion(), latch: latchBytes}
	for v := 0; v < 256; v++ {
		if enc == NRZ4 {
			for i := 0; i < 4; i++ {
				e.lut[v][i] = nrz4Patterns[(v>>(6-2*i))&0b11]
			}
			continue
		}
		// MSB first, 24 output bits packed into 3 bytes
		out := uint32(0)
		for i := 7; i >= 0; i-- {
			tri := uint32(0b100)
			if (v>>i)&1 == 1 {
				tri = 0b110
			}
			out = out<<3 | tri
		}
		e.lut[v][0] = byte(out >> 16)
		e.lut[v][1] = byte(out >> 8)
		e.lut[v][2] = byte(out)
	}
	return e
}

func (e *Encoder) Encoding() Encoding { return e.enc }

// Len is the encoded size of n data bytes including the latch tail.
func (e *Encoder) Len(n int) int { return n*e.width + e.latch }

// Encode writes src into dst and returns the number of bytes written. dst
// must hold at least Len(len(src)) bytes.
func (e *Encoder) Encode(dst, src []byte) int {
	off := 0
	for _, v := range src {
		copy(dst[off:off+e.width], e.lut[v][:e.width])
		off += e.width
	}
	for i := 0; i < e.latch; i++ {
		dst[off] = 0
		off++
	}
	return off
}
