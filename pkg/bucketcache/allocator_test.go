package bucketcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *allocator {
	t.Helper()
	return newAllocator([]uint32{4096, 8192, 16384}, 64*1024, 16*1024*1024)
}

func TestAllocatorClassFor(t *testing.T) {
	a := newTestAllocator(t)
	require.Equal(t, 0, a.classFor(1))
	require.Equal(t, 0, a.classFor(4096))
	require.Equal(t, 1, a.classFor(4097))
	require.Equal(t, 2, a.classFor(16384))
	require.Equal(t, -1, a.classFor(16385))
}

func TestAllocatorAllocateFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t)

	off, err := a.Allocate(4096)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off%4096)
	require.Equal(t, uint64(4096), a.UsedSize())

	a.Free(off)
	require.Equal(t, uint64(0), a.UsedSize())
}

func TestAllocatorCacheFullForOversizedBlock(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate(16385)
	require.ErrorIs(t, err, ErrCacheFull)
}

func TestAllocatorExhaustsSizeClassThenReclaims(t *testing.T) {
	a := newAllocator([]uint32{4096}, 2*4096, 2*4096)

	off1, err := a.Allocate(4096)
	require.NoError(t, err)
	off2, err := a.Allocate(4096)
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)

	_, err = a.Allocate(4096)
	require.ErrorIs(t, err, ErrNoSpaceInSizeClass)

	a.Free(off1)
	a.Free(off2)
	_, err = a.Allocate(4096)
	require.NoError(t, err)
}

func TestAllocatorStatsTrackOccupancy(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate(4096)
	require.NoError(t, err)

	stats := a.Stats()
	require.Len(t, stats, 3)
	require.Equal(t, uint32(4096), stats[0].ItemSize)
	require.Equal(t, uint64(1), stats[0].UsedCount)
}

func TestAllocatorNoSlotsOverlap(t *testing.T) {
	a := newAllocator([]uint32{4096}, 16*4096, 16*4096)
	seen := make(map[uint64]bool)
	for i := 0; i < 16; i++ {
		off, err := a.Allocate(4096)
		require.NoError(t, err)
		require.False(t, seen[off], "offset %d reused while still allocated", off)
		seen[off] = true
	}
}
