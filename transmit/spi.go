package transmit

import (
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

type SPIOpts struct {
	LEDCount int
	// Channels is 3 for RGB strips and 4 for RGBW.
	Channels int
	// Speed defaults to Encoding.DefaultSpeed.
	Speed    physic.Frequency
	Latch    time.Duration
	Encoding Encoding
}

func (o *SPIOpts) defaults() error {
	if o.LEDCount <= 0 {
		return fmt.Errorf("invalid LED count: %d", o.LEDCount)
	}
	if o.Channels == 0 {
		o.Channels = 3
	}
	if o.Channels != 3 && o.Channels != 4 {
		return fmt.Errorf("invalid channel count: %d", o.Channels)
	}
	if o.Speed <= 0 {
		o.Speed = o.Encoding.DefaultSpeed()
	}
	if o.Latch <= 0 {
		o.Latch = DefaultLatch
	}
	return nil
}

// SPI drives a WS281x strip from a SPI MOSI line. Send blocks until the
// whole frame and its latch are on the wire; wrap it in Async to get a
// non-blocking transmitter.
type SPI struct {
	mu     sync.Mutex
	conn   spi.Conn
	closer io.Closer
	enc    *Encoder
	buf    []byte
	size   int
	name   string
}

// NewSPI connects to port in mode 0 with 8-bit words.
func NewSPI(port spi.Port, o SPIOpts) (*SPI, error) {
	if err := o.defaults(); err != nil {
		return nil, err
	}
	c, err := port.Connect(o.Speed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	enc := NewEncoder(o.Encoding, LatchBytes(o.Speed, o.Latch))
	size := o.LEDCount * o.Channels
	return &SPI{
		conn: c,
		enc:  enc,
		buf:  make([]byte, enc.Len(size)),
		size: size,
		name: "spi{" + c.String() + "," + enc.Encoding().String() + "}",
	}, nil
}

// OpenSPI initializes the host drivers and opens a spidev port by name,
// e.g. "/dev/spidev0.0" or "" for the first one.
func OpenSPI(dev string, o SPIOpts) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", dev, err)
	}
	s, err := NewSPI(p, o)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	s.closer = p
	return s, nil
}

func (s *SPI) String() string { return s.name }

func (s *SPI) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrClosed
	}
	if len(frame) != s.size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), s.size)
	}
	n := s.enc.Encode(s.buf, frame)
	if err := s.conn.Tx(s.buf[:n], nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

// IsBusy is always false; Send returns only once the frame is out.
func (s *SPI) IsBusy() bool { return false }

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}
