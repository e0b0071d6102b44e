// Package slot hands out indices into the single timestamp query pool that the
// GPU timing instrumentation owns for a device's lifetime.
//
// Ownership of a slot is recorded only as a bit in one of a fixed number of
// atomic words. Allocate and Free are safe to call from any number of
// goroutines without locking; Reset is not.
package slot

import (
	"math/bits"

	"go.uber.org/atomic"
)

const (
	bitsPerBlock = 64
	blockCount   = 4

	// Count is the number of query slots in the pool.
	Count uint32 = bitsPerBlock * blockCount

	// Invalid is returned by Allocate when every slot is taken.
	Invalid uint32 = ^uint32(0)
)

// Allocator is a fixed-capacity, lock-free slot pool.
// The zero value is an empty pool ready for use.
type Allocator struct {
	blocks [blockCount]atomic.Uint64
	cursor atomic.Uint32 // next slot to try; a hint, not an invariant
}

// New returns an empty allocator.
func New() *Allocator {
	return &Allocator{}
}

// Allocate claims a free slot, scanning round-robin from the position after the
// last successful claim. Returns Invalid if all Count slots are in use.
func (a *Allocator) Allocate() uint32 {
	start := a.cursor.Load() % Count
	for i := uint32(0); i < Count; i++ {
		s := (start + i) % Count
		block, mask := a.locate(s)
		for {
			old := block.Load()
			if old&mask != 0 {
				break
			}
			if block.CompareAndSwap(old, old|mask) {
				a.cursor.Store((s + 1) % Count)
				return s
			}
			// Another bit in the same word changed under us; re-read and retry.
		}
	}
	return Invalid
}

// Free releases the given slots. Slots that are already free or out of range
// are ignored.
func (a *Allocator) Free(slots ...uint32) {
	for _, s := range slots {
		if s >= Count {
			continue
		}
		block, mask := a.locate(s)
		for {
			old := block.Load()
			if old&mask == 0 {
				break
			}
			if block.CompareAndSwap(old, old&^mask) {
				break
			}
		}
	}
}

// Reset releases every slot and rewinds the cursor.
// It must not run concurrently with Allocate or Free.
func (a *Allocator) Reset() {
	for i := range a.blocks {
		a.blocks[i].Store(0)
	}
	a.cursor.Store(0)
}

// InUse returns the number of claimed slots.
func (a *Allocator) InUse() int {
	n := 0
	for i := range a.blocks {
		n += bits.OnesCount64(a.blocks[i].Load())
	}
	return n
}

// IsAllocated reports whether slot s is currently claimed.
func (a *Allocator) IsAllocated(s uint32) bool {
	if s >= Count {
		return false
	}
	block, mask := a.locate(s)
	return block.Load()&mask != 0
}

func (a *Allocator) locate(s uint32) (*atomic.Uint64, uint64) {
	return &a.blocks[s/bitsPerBlock], uint64(1) << (s % bitsPerBlock)
}
