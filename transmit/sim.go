package transmit

import (
	"sync"
	"sync/atomic"
	"time"
)

// WireTime is how long a WS2812 strip of ledCount LEDs takes to shift in one
// frame: 24 bits at 1.25µs plus the latch.
func WireTime(ledCount, channels int) time.Duration {
	return time.Duration(ledCount*channels*8)*1250*time.Nanosecond + DefaultLatch
}

// Sim stands in for hardware. It keeps the last frame and can block for a
// fixed time per frame to behave like a real strip behind Async.
type Sim struct {
	delay  time.Duration
	frames atomic.Uint64

	mu   sync.Mutex
	last []byte
}

func NewSim(delay time.Duration) *Sim { return &Sim{delay: delay} }

func (s *Sim) Send(frame []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.last = append(s.last[:0], frame...)
	s.mu.Unlock()
	s.frames.Add(1)
	return nil
}

func (s *Sim) IsBusy() bool { return false }

func (s *Sim) Frames() uint64 { return s.frames.Load() }

// Last returns a copy of the most recent frame.
func (s *Sim) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

func (s *Sim) String() string { return "sim" }
