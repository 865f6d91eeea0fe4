//go:build linux && ws2811

package transmit

/*
#cgo LDFLAGS: -lws2811
#include <stdlib.h>
#include <stdint.h>
#include <ws2811/ws2811.h>
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/coreman2200/ledstream/pixel"
)

// PWM drives a strip from the Raspberry Pi PWM/DMA engine through
// rpi_ws281x. ws2811_render waits for the previous DMA transfer, so Send
// behaves like a blocking device.
type PWM struct {
	count int
	order pixel.ColorOrder

	mu  sync.Mutex
	dev *C.ws2811_t
	buf unsafe.Pointer
}

func stripType(o pixel.ColorOrder) C.int {
	switch o.String() {
	case "RGB":
		return C.WS2811_STRIP_RGB
	case "BRG":
		return C.WS2811_STRIP_BRG
	case "RBG":
		return C.WS2811_STRIP_RBG
	case "GBR":
		return C.WS2811_STRIP_GBR
	case "BGR":
		return C.WS2811_STRIP_BGR
	case "GRBW":
		return C.SK6812_STRIP_GRBW
	case "RGBW":
		return C.SK6812_STRIP_RGBW
	}
	return C.WS2811_STRIP_GRB
}

func NewPWM(gpio, count int, order pixel.ColorOrder, brightness uint8) (*PWM, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	if order.IsZero() {
		order = pixel.GRB
	}
	p := &PWM{count: count, order: order}

	p.dev = (*C.ws2811_t)(C.calloc(1, C.size_t(unsafe.Sizeof(*p.dev))))
	if p.dev == nil {
		return nil, fmt.Errorf("calloc ws2811_t failed")
	}
	p.dev.freq = 800000
	p.dev.dmanum = 10
	ch := &p.dev.channel[0]
	ch.gpionum = C.int(gpio)
	ch.count = C.int(count)
	ch.invert = 0
	ch.strip_type = stripType(order)
	ch.brightness = C.uint8_t(brightness)

	if st := C.ws2811_init(p.dev); st != C.WS2811_SUCCESS {
		C.free(unsafe.Pointer(p.dev))
		p.dev = nil
		return nil, fmt.Errorf("ws2811_init failed: %d", int(st))
	}
	p.buf = unsafe.Pointer(ch.leds)
	return p, nil
}

// Send takes frames serialized in the order given to NewPWM; the library
// does its own reordering from 0xWWRRGGBB.
func (p *PWM) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return ErrClosed
	}
	ch := p.order.Channels()
	if len(frame) != p.count*ch {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), p.count*ch)
	}
	leds := unsafe.Slice((*C.ws2811_led_t)(p.buf), p.count)
	for i := range leds {
		leds[i] = C.ws2811_led_t(p.order.Decode(frame[i*ch:]).Packed())
	}
	if st := C.ws2811_render(p.dev); st != C.WS2811_SUCCESS {
		return fmt.Errorf("ws2811_render failed: %d", int(st))
	}
	return nil
}

func (p *PWM) IsBusy() bool { return false }

func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		C.ws2811_fini(p.dev)
		C.free(unsafe.Pointer(p.dev))
		p.dev = nil
	}
	return nil
}
