//go:build tinygo

package transmit

import (
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// WS2812 bit-bangs frames on a microcontroller pin. Frames must already be
// in the strip's byte order (GRB for most parts). Send returns once the
// frame is out, with interrupts disabled while it runs.
type WS2812 struct {
	dev ws2812.Device
}

func NewWS2812(pin machine.Pin) *WS2812 {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &WS2812{dev: ws2812.New(pin)}
}

func (w *WS2812) Send(frame []byte) error {
	_, err := w.dev.Write(frame)
	return err
}

func (w *WS2812) IsBusy() bool { return false }
