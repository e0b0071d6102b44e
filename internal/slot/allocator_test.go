package slot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAllocateReturnsDistinctSlots(t *testing.T) {
	a := New()
	seen := make(map[uint32]bool)
	for i := uint32(0); i < Count; i++ {
		s := a.Allocate()
		require.NotEqual(t, Invalid, s, "allocation %d failed", i)
		require.Less(t, s, Count)
		require.False(t, seen[s], "slot %d handed out twice", s)
		seen[s] = true
	}
	assert.Equal(t, int(Count), a.InUse())
}

func TestAllocateExhaustion(t *testing.T) {
	a := New()
	for i := uint32(0); i < Count; i++ {
		require.NotEqual(t, Invalid, a.Allocate())
	}
	assert.Equal(t, Invalid, a.Allocate())
	assert.Equal(t, Invalid, a.Allocate(), "still exhausted on a second attempt")
}

func TestFreeThenReuse(t *testing.T) {
	a := New()
	const n = 10
	claimed := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		claimed = append(claimed, a.Allocate())
	}

	// Free in reverse order.
	for i := n - 1; i >= 0; i-- {
		a.Free(claimed[i])
	}
	assert.Equal(t, 0, a.InUse())

	// Fill the whole pool; every previously claimed slot must come back.
	reclaimed := make(map[uint32]bool)
	for i := uint32(0); i < Count; i++ {
		s := a.Allocate()
		require.NotEqual(t, Invalid, s)
		reclaimed[s] = true
	}
	for _, s := range claimed {
		assert.True(t, reclaimed[s], "slot %d leaked", s)
	}
}

func TestFreeAfterExhaustion(t *testing.T) {
	a := New()
	var last uint32
	for i := uint32(0); i < Count; i++ {
		last = a.Allocate()
	}
	require.Equal(t, Invalid, a.Allocate())

	a.Free(last)
	assert.Equal(t, last, a.Allocate())
}

func TestDoubleFreeIsNoop(t *testing.T) {
	a := New()
	s1 := a.Allocate()
	s2 := a.Allocate()

	a.Free(s1)
	a.Free(s1)

	assert.False(t, a.IsAllocated(s1))
	assert.True(t, a.IsAllocated(s2), "double free must not touch neighbouring bits")
	assert.Equal(t, 1, a.InUse())
}

func TestFreeOutOfRangeIsNoop(t *testing.T) {
	a := New()
	s := a.Allocate()
	a.Free(Invalid, Count, Count+7)
	assert.True(t, a.IsAllocated(s))
	assert.False(t, a.IsAllocated(Invalid))
}

func TestReset(t *testing.T) {
	a := New()
	for i := 0; i < 100; i++ {
		a.Allocate()
	}
	a.Reset()
	assert.Equal(t, 0, a.InUse())
	assert.Equal(t, uint32(0), a.Allocate(), "cursor rewinds to the first slot")
}

func TestRoundRobinCursor(t *testing.T) {
	a := New()
	s0 := a.Allocate()
	s1 := a.Allocate()
	a.Free(s0)
	// The cursor moved past s1, so the next claim does not reuse s0 right away.
	s2 := a.Allocate()
	assert.Equal(t, s1+1, s2)
}

func TestConcurrentAllocate(t *testing.T) {
	a := New()
	const workers = 8
	perWorker := int(Count) / workers

	var mu sync.Mutex
	seen := make(map[uint32]int)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := make([]uint32, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, a.Allocate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range local {
				seen[s]++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, seen, int(Count))
	for s, n := range seen {
		assert.NotEqual(t, Invalid, s)
		assert.Equal(t, 1, n, "slot %d claimed %d times", s, n)
	}
	assert.Equal(t, Invalid, a.Allocate())
}

func TestConcurrentAllocateFree(t *testing.T) {
	a := New()
	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				s := a.Allocate()
				if s == Invalid {
					continue
				}
				a.Free(s)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, a.InUse())
}
