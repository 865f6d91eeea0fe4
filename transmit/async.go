package transmit

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sender is a device whose Send blocks until the frame is out.
type Sender interface {
	Send(frame []byte) error
}

type AsyncOption func(*Async)

func AsyncLogger(l zerolog.Logger) AsyncOption {
	return func(a *Async) { a.log = l }
}

// Async turns a blocking Sender into a non-blocking transmitter. Send copies
// the frame into a preallocated buffer and hands it to one long-lived worker;
// IsBusy reports true until the worker is done with it.
//
// Errors from the device surface later: they are logged, counted and kept
// for Err.
type Async struct {
	dev  Sender
	buf  []byte
	work chan int
	done chan struct{}

	busy     atomic.Bool
	closed   atomic.Bool
	failures atomic.Uint64
	lastErr  atomic.Pointer[error]
	lastSend atomic.Int64

	closeOnce sync.Once
	log       zerolog.Logger
}

// NewAsync starts the worker. maxFrame is the largest frame Send accepts.
func NewAsync(dev Sender, maxFrame int, opts ...AsyncOption) *Async {
	a := &Async{
		dev:  dev,
		buf:  make([]byte, maxFrame),
		work: make(chan int, 1),
		done: make(chan struct{}),
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.work {
		start := time.Now()
		if err := a.dev.Send(a.buf[:n]); err != nil {
			a.failures.Add(1)
			a.lastErr.Store(&err)
			a.log.Error().Err(err).Int("bytes", n).Msg("async send failed")
		}
		a.lastSend.Store(int64(time.Since(start)))
		a.busy.Store(false)
	}
}

// Send never blocks. Calling it while IsBusy is true returns ErrBusy.
func (a *Async) Send(frame []byte) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if len(frame) > len(a.buf) {
		return fmt.Errorf("%w: got %d bytes, max %d", ErrFrameSize, len(frame), len(a.buf))
	}
	if !a.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	copy(a.buf, frame)
	a.work <- len(frame)
	return nil
}

func (a *Async) IsBusy() bool { return a.busy.Load() }

// Err returns the most recent device error and clears it.
func (a *Async) Err() error {
	if p := a.lastErr.Swap(nil); p != nil {
		return *p
	}
	return nil
}

func (a *Async) Failures() uint64 { return a.failures.Load() }

// LastSendDuration is how long the device took for the last frame.
func (a *Async) LastSendDuration() time.Duration { return time.Duration(a.lastSend.Load()) }

// Close waits for the frame in flight, stops the worker and closes the
// device if it is an io.Closer. Send must not race with Close.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.work)
		<-a.done
		if c, ok := a.dev.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
