package bucketcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newEvictionTestAllocator() *allocator {
	return newAllocator([]uint32{4096}, 4096, 100*4096)
}

func fillAllocator(t *testing.T, a *allocator, n int, priority Priority, startSeq uint64) []evictableEntry {
	t.Helper()
	entries := make([]evictableEntry, 0, n)
	for i := 0; i < n; i++ {
		off, err := a.Allocate(4096)
		require.NoError(t, err)
		be := newBucketEntry(off, 4096, startSeq+uint64(i), priority)
		entries = append(entries, evictableEntry{key: BlockKey{FileID: "f", Offset: off}, entry: be})
	}
	return entries
}

func newTestEvictionEngine(alloc *allocator, evicted *[]BlockKey) *evictionEngine {
	cfg := &Config{
		AcceptFactor:    0.8,
		MinFactor:       0.6,
		SingleFactor:    0.5,
		MultiFactor:     0.3,
		MemoryFactor:    0.2,
		ExtraFreeFactor: 0,
	}
	return newEvictionEngine(alloc, cfg, func(key BlockKey, entry *BucketEntry) {
		alloc.Free(entry.Offset)
		if evicted != nil {
			*evicted = append(*evicted, key)
		}
	})
}

func TestEvictionEngineNoOpBelowAcceptFactor(t *testing.T) {
	a := newEvictionTestAllocator()
	entries := fillAllocator(t, a, 10, PrioritySingle, 0)

	var evicted []BlockKey
	e := newTestEvictionEngine(a, &evicted)

	started, freed, _ := e.TryRun(entries, 4096)
	require.True(t, started)
	require.Equal(t, uint64(0), freed)
	require.Empty(t, evicted)
}

func TestEvictionEngineFreesDownTowardMinFactor(t *testing.T) {
	a := newEvictionTestAllocator()
	entries := fillAllocator(t, a, 100, PrioritySingle, 0)
	require.Equal(t, uint64(100*4096), a.UsedSize())

	var evicted []BlockKey
	e := newTestEvictionEngine(a, &evicted)

	started, freed, perPriority := e.TryRun(entries, 4096)
	require.True(t, started)
	require.Greater(t, freed, uint64(0))
	require.NotEmpty(t, evicted)
	require.Greater(t, perPriority[PrioritySingle], uint64(0))

	// usedSize must have dropped below what it was before eviction.
	require.Less(t, a.UsedSize(), uint64(100*4096))
}

func TestEvictionEngineEvictsLeastRecentlyUsedFirstWithinGroup(t *testing.T) {
	a := newEvictionTestAllocator()
	entries := fillAllocator(t, a, 20, PrioritySingle, 0)

	var evicted []BlockKey
	e := &evictionEngine{alloc: a, onEvict: func(key BlockKey, entry *BucketEntry) {
		a.Free(entry.Offset)
		evicted = append(evicted, key)
	}}

	g := &priorityGroupSnapshot{priority: PrioritySingle, entries: entries, totalSize: uint64(len(entries)) * 4096}
	freed := e.evictGroup(g, 3*4096, 4096)
	require.Equal(t, uint64(3*4096), freed)
	require.Len(t, evicted, 3)

	// entries were created with strictly ascending access-seq, so the
	// three lowest-seq keys (entries[0..2]) must be exactly the ones evicted.
	wantKeys := map[BlockKey]bool{
		entries[0].key: true,
		entries[1].key: true,
		entries[2].key: true,
	}
	for _, key := range evicted {
		require.True(t, wantKeys[key], "evicted key %v was not among the 3 lowest access-seq entries", key)
	}
}

func TestEvictionEngineReentrancyGuardRejectsConcurrentRun(t *testing.T) {
	a := newEvictionTestAllocator()
	entries := fillAllocator(t, a, 10, PrioritySingle, 0)
	e := newTestEvictionEngine(a, nil)

	require.True(t, e.running.CompareAndSwap(false, true))
	started, freed, perPriority := e.TryRun(entries, 4096)
	require.False(t, started)
	require.Equal(t, uint64(0), freed)
	require.Nil(t, perPriority)

	e.running.Store(false)
	started, _, _ = e.TryRun(entries, 4096)
	require.True(t, started)
}

func TestEvictionEngineBuildGroupsOrdersByAscendingOverflow(t *testing.T) {
	a := newEvictionTestAllocator()
	single := fillAllocator(t, a, 70, PrioritySingle, 0)
	multi := fillAllocator(t, a, 20, PriorityMulti, 1000)
	memory := fillAllocator(t, a, 10, PriorityMemory, 2000)

	all := append(append(single, multi...), memory...)
	e := newTestEvictionEngine(a, nil)

	groups := e.buildGroups(all, a.TotalSize())
	require.Len(t, groups, 3)

	for i := 1; i < len(groups); i++ {
		prevOverflow := int64(groups[i-1].totalSize) - int64(groups[i-1].target)
		curOverflow := int64(groups[i].totalSize) - int64(groups[i].target)
		require.LessOrEqual(t, prevOverflow, curOverflow)
	}

	// SINGLE has by far the largest share of capacity here, so it must be
	// the most-overflowing (and thus last) group.
	require.Equal(t, PrioritySingle, groups[len(groups)-1].priority)
}
