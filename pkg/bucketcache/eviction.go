package bucketcache

import (
	"container/heap"
	"sync/atomic"
)

// evictionEngine implements the three-priority LRU eviction pass of §4.6.
// It operates directly against the allocator's occupancy and the backing
// map/index supplied at construction; it never touches the RAM staging
// table.
type evictionEngine struct {
	alloc *allocator

	acceptFactor    float64
	minFactor       float64
	singleFactor    float64
	multiFactor     float64
	memoryFactor    float64
	extraFreeFactor float64

	running atomic.Bool // re-entrancy guard: only one eviction pass at a time

	onEvict func(key BlockKey, entry *BucketEntry) // removes from backing map + index, frees allocator slot
}

func newEvictionEngine(alloc *allocator, cfg *Config, onEvict func(BlockKey, *BucketEntry)) *evictionEngine {
	return &evictionEngine{
		alloc:           alloc,
		acceptFactor:    cfg.AcceptFactor,
		minFactor:       cfg.MinFactor,
		singleFactor:    cfg.SingleFactor,
		multiFactor:     cfg.MultiFactor,
		memoryFactor:    cfg.MemoryFactor,
		extraFreeFactor: cfg.ExtraFreeFactor,
		onEvict:         onEvict,
	}
}

// evictableEntry pairs a key with the bucket entry tracking it, the unit
// the eviction heaps order on.
type evictableEntry struct {
	key   BlockKey
	entry *BucketEntry
}

// priorityGroupSnapshot is one priority tier's candidate set plus its
// current occupancy, gathered before the two-pass budget walk.
type priorityGroupSnapshot struct {
	priority  Priority
	entries   []evictableEntry
	totalSize uint64
	target    uint64 // bucketSize, the proportional occupancy target
}

// accessSeqHeap is a min-heap over evictableEntry ordered by ascending
// AccessSeq, i.e. least-recently-used first.
type accessSeqHeap []evictableEntry

func (h accessSeqHeap) Len() int { return len(h) }
func (h accessSeqHeap) Less(i, j int) bool {
	return h[i].entry.AccessSeq() < h[j].entry.AccessSeq()
}
func (h accessSeqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *accessSeqHeap) Push(x any)        { *h = append(*h, x.(evictableEntry)) }
func (h *accessSeqHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TryRun attempts to start an eviction pass, returning false if one is
// already in progress (§4.6 re-entrancy guard). snapshot must enumerate
// every currently cached (key, entry) pair; blockSize is the per-block
// storage cost used to size eviction budgets (callers without a uniform
// block size pass a representative average).
func (e *evictionEngine) TryRun(snapshot []evictableEntry, blockSize uint64) (bool, uint64, map[Priority]uint64) {
	if !e.running.CompareAndSwap(false, true) {
		return false, 0, nil
	}
	defer e.running.Store(false)

	freed, perPriority := e.run(snapshot, blockSize)
	return true, freed, perPriority
}

// run executes the proportional two-pass eviction algorithm of §4.6 and
// returns total bytes freed plus the per-priority breakdown.
func (e *evictionEngine) run(snapshot []evictableEntry, blockSize uint64) (uint64, map[Priority]uint64) {
	total := e.alloc.TotalSize()
	used := e.alloc.UsedSize()

	acceptSize := uint64(float64(total) * e.acceptFactor)
	if used <= acceptSize {
		return 0, nil
	}
	minSize := uint64(float64(total) * e.minFactor)

	groups := e.buildGroups(snapshot, total)
	perPriority := map[Priority]uint64{PrioritySingle: 0, PriorityMulti: 0, PriorityMemory: 0}

	bytesToFree := used - minSize
	extraFree := uint64(float64(total) * e.extraFreeFactor)
	budget := bytesToFree

	freed := e.evictPass(groups, budget, perPriority, blockSize)

	if freed < bytesToFree {
		remaining := bytesToFree - freed
		budget2 := remaining
		if extraFree > freed {
			budget2 = remaining + (extraFree - freed)
		}
		restricted := make([]*priorityGroupSnapshot, 0, 2)
		for _, g := range groups {
			if g.priority != PriorityMemory {
				restricted = append(restricted, g)
			}
		}
		freed += e.evictPass(restricted, budget2, perPriority, blockSize)
	}

	return freed, perPriority
}

// buildGroups partitions snapshot into the three priority tiers, each
// carrying its proportional target occupancy (bucketSize in §4.6) and
// ordered ascending by current overflow (totalSize - target) so the
// most-overflowing tier is evicted from last, maximizing fairness.
func (e *evictionEngine) buildGroups(snapshot []evictableEntry, total uint64) []*priorityGroupSnapshot {
	byPriority := map[Priority]*priorityGroupSnapshot{
		PrioritySingle: {priority: PrioritySingle, target: uint64(float64(total) * e.singleFactor)},
		PriorityMulti:  {priority: PriorityMulti, target: uint64(float64(total) * e.multiFactor)},
		PriorityMemory: {priority: PriorityMemory, target: uint64(float64(total) * e.memoryFactor)},
	}

	for _, ev := range snapshot {
		g := byPriority[ev.entry.Priority()]
		g.entries = append(g.entries, ev)
		g.totalSize += uint64(ev.entry.Length)
	}

	groups := []*priorityGroupSnapshot{
		byPriority[PrioritySingle],
		byPriority[PriorityMulti],
		byPriority[PriorityMemory],
	}

	overflow := func(g *priorityGroupSnapshot) int64 { return int64(g.totalSize) - int64(g.target) }
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && overflow(groups[j]) < overflow(groups[j-1]); j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
	return groups
}

// evictPass runs one LRU pass across groups, evicting from each group's
// overflow (totalSize - target, floored at zero) down to a fair share of
// budget, stopping early once budget bytes have been freed.
func (e *evictionEngine) evictPass(groups []*priorityGroupSnapshot, budget uint64, perPriority map[Priority]uint64, blockSize uint64) uint64 {
	var freedTotal uint64
	remainingBudget := budget

	for i, g := range groups {
		if remainingBudget == 0 {
			break
		}

		var share uint64
		if g.totalSize > g.target {
			share = g.totalSize - g.target
		}
		groupsLeft := uint64(len(groups) - i)
		fairShare := remainingBudget / groupsLeft
		if share > remainingBudget {
			share = remainingBudget
		}
		if share < fairShare {
			share = fairShare
			if share > remainingBudget {
				share = remainingBudget
			}
		}

		freed := e.evictGroup(g, share, blockSize)
		perPriority[g.priority] += freed
		freedTotal += freed
		if freed >= remainingBudget {
			remainingBudget = 0
		} else {
			remainingBudget -= freed
		}
	}
	return freedTotal
}

// evictGroup pops least-recently-used entries from g until limit bytes
// have been freed or the group is exhausted.
func (e *evictionEngine) evictGroup(g *priorityGroupSnapshot, limit uint64, blockSize uint64) uint64 {
	if limit == 0 || len(g.entries) == 0 {
		return 0
	}

	h := make(accessSeqHeap, len(g.entries))
	copy(h, g.entries)
	heap.Init(&h)

	var freed uint64
	for freed < limit && h.Len() > 0 {
		ev := heap.Pop(&h).(evictableEntry)
		e.onEvict(ev.key, ev.entry)
		n := uint64(ev.entry.Length)
		if n == 0 {
			n = blockSize
		}
		freed += n
	}
	return freed
}
