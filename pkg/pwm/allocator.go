// Package pwm manages the pool of hardware pulse-output channels and defines
// the contract with the pulse-output backend.
package pwm

import (
	"fmt"
	"math/bits"
	"sync"
)

// Channel identifies a hardware pulse-output channel.
type Channel int

// NoChannel is held by an actuator that has no lease.
const NoChannel Channel = -1

// Pool layout of the reference board: 8 channels in total, of which
// channels 1..4 are reserved for servo waveforms.
const (
	TotalChannels     = 8
	ServoChannelFirst = Channel(1)
	ServoChannelCount = 4
)

const maxPoolSize = 64

// Allocator hands out exclusive leases on a contiguous range of channels.
// Allocation always returns the lowest-indexed free channel.
type Allocator struct {
	first Channel
	size  int

	mu   sync.Mutex
	free uint64 // bit i set => first+i is free
}

// NewAllocator creates an allocator for channels [first, first+size).
func NewAllocator(first Channel, size int) (*Allocator, error) {
	if first < 0 || size <= 0 || size > maxPoolSize {
		return nil, fmt.Errorf("%w: first=%d size=%d", ErrInvalidPool, first, size)
	}
	return &Allocator{
		first: first,
		size:  size,
		free:  fullMask(size),
	}, nil
}

// NewServoAllocator creates an allocator over the servo sub-range of the
// reference board.
func NewServoAllocator() *Allocator {
	a, _ := NewAllocator(ServoChannelFirst, ServoChannelCount)
	return a
}

func fullMask(size int) uint64 {
	if size == maxPoolSize {
		return ^uint64(0)
	}
	return (uint64(1) << size) - 1
}

// Allocate leases the lowest free channel. It returns ErrExhausted when every
// channel in the pool is leased.
func (a *Allocator) Allocate() (Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free == 0 {
		return NoChannel, ErrExhausted
	}
	i := bits.TrailingZeros64(a.free)
	a.free &^= 1 << i
	return a.first + Channel(i), nil
}

// Free returns ch to the pool. Freeing a channel that is out of range or not
// currently leased is a no-op.
func (a *Allocator) Free(ch Channel) {
	i, ok := a.index(ch)
	if !ok {
		return
	}
	a.mu.Lock()
	a.free |= 1 << i
	a.mu.Unlock()
}

// Leased reports whether ch is currently leased.
func (a *Allocator) Leased(ch Channel) bool {
	i, ok := a.index(ch)
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free&(1<<i) == 0
}

// InUse returns the number of leased channels.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size - bits.OnesCount64(a.free)
}

// Size returns the pool size.
func (a *Allocator) Size() int {
	return a.size
}

func (a *Allocator) index(ch Channel) (int, bool) {
	i := int(ch - a.first)
	if i < 0 || i >= a.size {
		return 0, false
	}
	return i, true
}
