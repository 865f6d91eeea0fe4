package governor

import (
	"runtime"
	"sync/atomic"
	"time"
)

// History is a fixed window of interval samples with a running sum.
//
// It has exactly one writer. Readers on any goroutine see only fully
// published samples: the writer bumps seq to odd before touching anything
// and back to even afterwards, and readers retry if seq moved under them.
type History struct {
	seq     atomic.Uint64
	samples []atomic.Int64 // nanoseconds
	next    atomic.Int64   // slot the next sample goes into
	count   atomic.Int64
	sum     atomic.Int64
	last    atomic.Int64 // unix nanos of the previous Record, 0 before the first
}

func NewHistory(window int) *History {
	if window < 1 {
		window = 1
	}
	return &History{samples: make([]atomic.Int64, window)}
}

func (h *History) Size() int { return len(h.samples) }

// Record turns consecutive timestamps into interval samples. The first call
// only primes the history. Writer only.
func (h *History) Record(ts time.Time) {
	now := ts.UnixNano()
	prev := h.last.Swap(now)
	if prev == 0 {
		return
	}
	d := now - prev
	if d < 0 {
		d = 0
	}
	h.add(d)
}

// Add appends an interval sample directly. Writer only.
func (h *History) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.add(int64(d))
}

func (h *History) add(d int64) {
	h.seq.Add(1)
	i := h.next.Load()
	n := h.count.Load()
	if n == int64(len(h.samples)) {
		h.sum.Add(-h.samples[i].Load())
	} else {
		h.count.Store(n + 1)
	}
	h.samples[i].Store(d)
	h.sum.Add(d)
	h.next.Store((i + 1) % int64(len(h.samples)))
	h.seq.Add(1)
}

// Reset forgets every sample and the priming timestamp. Writer only.
func (h *History) Reset() {
	h.seq.Add(1)
	for i := range h.samples {
		h.samples[i].Store(0)
	}
	h.next.Store(0)
	h.count.Store(0)
	h.sum.Store(0)
	h.last.Store(0)
	h.seq.Add(1)
}

func (h *History) read(fn func()) {
	for {
		s := h.seq.Load()
		if s&1 == 1 {
			runtime.Gosched()
			continue
		}
		fn()
		if h.seq.Load() == s {
			return
		}
	}
}

// Len is the number of samples currently in the window.
func (h *History) Len() int {
	var n int64
	h.read(func() { n = h.count.Load() })
	return int(n)
}

// Mean is the arithmetic mean over the window and the number of samples it
// covers. An empty history has a zero mean.
func (h *History) Mean() (time.Duration, int) {
	var sum, n int64
	h.read(func() {
		sum = h.sum.Load()
		n = h.count.Load()
	})
	if n == 0 {
		return 0, 0
	}
	return time.Duration(sum / n), int(n)
}

// Window summarizes the k most recent samples: their sum, the largest one,
// and how many there actually were (at most k).
func (h *History) Window(k int) (sum, max time.Duration, n int) {
	size := int64(len(h.samples))
	h.read(func() {
		sum, max, n = 0, 0, 0
		count := h.count.Load()
		want := int64(k)
		if want > count {
			want = count
		}
		i := h.next.Load()
		for j := int64(0); j < want; j++ {
			i = (i - 1 + size) % size
			d := time.Duration(h.samples[i].Load())
			sum += d
			if d > max {
				max = d
			}
		}
		n = int(want)
	})
	return sum, max, n
}
