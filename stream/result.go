package stream

import "fmt"

type SubmitResult int

const (
	Accepted SubmitResult = iota
	// Throttled means the governor asked the producer to skip this frame.
	// The frame was not touched and still belongs to the caller.
	Throttled
	// BufferFull means the governor allowed the frame but the ring had no
	// room. The frame still belongs to the caller.
	BufferFull
)

func (r SubmitResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Throttled:
		return "throttled"
	case BufferFull:
		return "buffer-full"
	}
	return fmt.Sprintf("SubmitResult(%d)", int(r))
}

type TransmitResult int

const (
	Sent TransmitResult = iota
	// Starved means there was nothing to send. Nothing is re-sent; holding
	// or blanking the strip is up to the caller.
	Starved
	// Failed means the transmitter rejected the frame. It is not retried.
	Failed
	// Busy means the transmitter was still working on the previous frame
	// and nothing was dequeued.
	Busy
)

func (r TransmitResult) String() string {
	switch r {
	case Sent:
		return "sent"
	case Starved:
		return "starved"
	case Failed:
		return "failed"
	case Busy:
		return "busy"
	}
	return fmt.Sprintf("TransmitResult(%d)", int(r))
}

type State int32

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
