package transmit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledstream/stream"
)

// Multi writes every frame to a primary transmitter and then to any number
// of taps, such as a preview. Only the primary decides busyness and errors;
// a tap that is busy skips the frame and a tap error is only logged.
type Multi struct {
	primary stream.Transmitter
	taps    []stream.Transmitter
	log     zerolog.Logger
}

func NewMulti(log zerolog.Logger, primary stream.Transmitter, taps ...stream.Transmitter) *Multi {
	return &Multi{
		primary: primary,
		taps:    taps,
		log:     log.Sample(&zerolog.BurstSampler{Burst: 3, Period: 5 * time.Second}),
	}
}

func (m *Multi) Send(frame []byte) error {
	err := m.primary.Send(frame)
	for _, t := range m.taps {
		if t.IsBusy() {
			continue
		}
		if terr := t.Send(frame); terr != nil {
			m.log.Warn().Err(terr).Msg("tap send failed")
		}
	}
	return err
}

func (m *Multi) IsBusy() bool { return m.primary.IsBusy() }
