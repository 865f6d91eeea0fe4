// Package ring is a fixed-capacity single-producer/single-consumer ring of
// pointers. Neither side ever blocks or allocates.
//
// head is only written by the producer and tail is only advanced by the
// consumer, except under EvictOldest where the producer may also claim the
// oldest slot. Both sides claim tail with a compare-and-swap so an element
// is handed out exactly once.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrZeroCapacity = errors.New("ring: capacity must be at least 1")

// Policy decides what a push does when the ring is full.
type Policy int

const (
	// DropNewest rejects the incoming element; buffered elements are never
	// replaced while a consumer may be about to read them.
	DropNewest Policy = iota
	// EvictOldest discards the oldest buffered element to make room.
	EvictOldest
)

func (p Policy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case EvictOldest:
		return "evict-oldest"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop-newest":
		return DropNewest, nil
	case "evict-oldest":
		return EvictOldest, nil
	}
	return DropNewest, fmt.Errorf("ring: unknown policy %q", s)
}

type Ring[T any] struct {
	slots  []atomic.Pointer[T]
	size   uint64
	policy Policy

	head atomic.Uint64 // next write, producer owned
	tail atomic.Uint64 // next read
}

func New[T any](capacity int, policy Policy) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrZeroCapacity, capacity)
	}
	if policy != DropNewest && policy != EvictOldest {
		return nil, fmt.Errorf("ring: unknown policy %d", int(policy))
	}
	return &Ring[T]{
		slots:  make([]atomic.Pointer[T], capacity),
		size:   uint64(capacity),
		policy: policy,
	}, nil
}

func (r *Ring[T]) Cap() int { return int(r.size) }

func (r *Ring[T]) Policy() Policy { return r.policy }

// Len is a snapshot of the occupancy; it may be stale by the time it returns
// if the other side is running.
func (r *Ring[T]) Len() int {
	for {
		t := r.tail.Load()
		h := r.head.Load()
		if t <= h {
			return int(h - t)
		}
	}
}

// TryPush stores v in the next free slot. On a full ring it returns false
// and leaves the ring untouched, whatever the policy. Producer only.
func (r *Ring[T]) TryPush(v *T) bool {
	h := r.head.Load()
	if h-r.tail.Load() >= r.size {
		return false
	}
	r.slots[h%r.size].Store(v)
	r.head.Store(h + 1)
	return true
}

// Push applies the ring policy. Under DropNewest it behaves like TryPush.
// Under EvictOldest it always succeeds and returns the element it displaced,
// if any; ownership of that element passes to the caller. Producer only.
func (r *Ring[T]) Push(v *T) (evicted *T, ok bool) {
	if r.policy == DropNewest {
		return nil, r.TryPush(v)
	}
	h := r.head.Load()
	for {
		t := r.tail.Load()
		if h-t < r.size {
			break
		}
		old := r.slots[t%r.size].Load()
		if r.tail.CompareAndSwap(t, t+1) {
			evicted = old
			break
		}
		// lost the race to the consumer, which freed a slot
	}
	r.slots[h%r.size].Store(v)
	r.head.Store(h + 1)
	return evicted, true
}

// TryPop removes the oldest element. It returns false on an empty ring and
// leaves the ring untouched. Consumer only.
func (r *Ring[T]) TryPop() (*T, bool) {
	for {
		t := r.tail.Load()
		if t == r.head.Load() {
			return nil, false
		}
		slot := &r.slots[t%r.size]
		v := slot.Load()
		if r.tail.CompareAndSwap(t, t+1) {
			// The producer may already have refilled this slot; only clear
			// it if it still holds what we took.
			slot.CompareAndSwap(v, nil)
			return v, true
		}
	}
}

// Drain pops until empty, passing each element to fn. Consumer only.
func (r *Ring[T]) Drain(fn func(*T)) int {
	n := 0
	for {
		v, ok := r.TryPop()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			fn(v)
		}
	}
}
