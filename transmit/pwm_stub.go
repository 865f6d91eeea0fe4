//go:build !(linux && ws2811)

package transmit

import (
	"errors"

	"github.com/coreman2200/ledstream/pixel"
)

var errNoPWM = errors.New("transmit: pwm driver not built; rebuild on linux with -tags ws2811")

type PWM struct{}

func NewPWM(gpio, count int, order pixel.ColorOrder, brightness uint8) (*PWM, error) {
	return nil, errNoPWM
}

func (p *PWM) Send(frame []byte) error { return errNoPWM }

func (p *PWM) IsBusy() bool { return false }

func (p *PWM) Close() error { return nil }
