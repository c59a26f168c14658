package bucketcache

import (
	"fmt"
	"sync"
)

// unassignedClass marks a bucket that has never been carved into slots of
// any size class.
const unassignedClass = -1

// bucket is one fixed-size region of the engine, carved into slots of a
// single size class at any given time.
type bucket struct {
	classIdx   int
	slotsTotal uint32
	slotsUsed  uint32
	freeSlots  []uint32 // free slot indices, LIFO
}

func (b *bucket) allFree() bool { return b.slotsUsed == 0 }

// sizeClassStats tracks aggregate occupancy for one size class across
// every bucket currently assigned to it.
type sizeClassStats struct {
	itemSize   uint32
	totalCount uint64
	usedCount  uint64
	freeCount  uint64
}

// allocator partitions a fixed byte region into power-of-two-ish size
// classed buckets with free-list management, per §4.2.
type allocator struct {
	mu             sync.Mutex
	sizeClasses    []uint32
	bucketCapacity uint64
	buckets        []bucket
	classes        []sizeClassStats
	usedSize       uint64
}

// newAllocator carves capacity into buckets of bucketCapacity bytes, all
// initially unassigned. sizeClasses must be strictly increasing.
func newAllocator(sizeClasses []uint32, bucketCapacity uint64, capacity uint64) *allocator {
	numBuckets := int(capacity / bucketCapacity)
	if numBuckets < 1 {
		numBuckets = 1
	}

	a := &allocator{
		sizeClasses:    sizeClasses,
		bucketCapacity: bucketCapacity,
		buckets:        make([]bucket, numBuckets),
		classes:        make([]sizeClassStats, len(sizeClasses)),
	}
	for i, sc := range sizeClasses {
		a.classes[i].itemSize = sc
	}
	for i := range a.buckets {
		a.buckets[i].classIdx = unassignedClass
	}
	return a
}

// classFor returns the smallest size-class index able to hold len bytes,
// or -1 if no class can ever satisfy it.
func (a *allocator) classFor(length uint32) int {
	for i, sc := range a.sizeClasses {
		if sc >= length {
			return i
		}
	}
	return -1
}

// Allocate returns an engine offset for a length-byte payload, or
// ErrCacheFull / ErrNoSpaceInSizeClass.
func (a *allocator) Allocate(length uint32) (uint64, error) {
	classIdx := a.classFor(length)
	if classIdx < 0 {
		return 0, ErrCacheFull
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if bucketIdx, slot, ok := a.takeFreeSlot(classIdx); ok {
		return a.slotOffset(bucketIdx, classIdx, slot), nil
	}

	if bucketIdx, ok := a.reclaimAllFreeBucket(classIdx); ok {
		slot := a.buckets[bucketIdx].freeSlots[len(a.buckets[bucketIdx].freeSlots)-1]
		a.buckets[bucketIdx].freeSlots = a.buckets[bucketIdx].freeSlots[:len(a.buckets[bucketIdx].freeSlots)-1]
		a.buckets[bucketIdx].slotsUsed++
		a.classes[classIdx].usedCount++
		a.classes[classIdx].freeCount--
		a.usedSize += uint64(a.sizeClasses[classIdx])
		return a.slotOffset(bucketIdx, classIdx, slot), nil
	}

	return 0, ErrNoSpaceInSizeClass
}

// takeFreeSlot pops a free slot from any bucket already assigned to
// classIdx.
func (a *allocator) takeFreeSlot(classIdx int) (bucketIdx int, slot uint32, ok bool) {
	for i := range a.buckets {
		b := &a.buckets[i]
		if b.classIdx != classIdx || len(b.freeSlots) == 0 {
			continue
		}
		slot = b.freeSlots[len(b.freeSlots)-1]
		b.freeSlots = b.freeSlots[:len(b.freeSlots)-1]
		b.slotsUsed++
		a.classes[classIdx].usedCount++
		a.classes[classIdx].freeCount--
		a.usedSize += uint64(a.sizeClasses[classIdx])
		return i, slot, true
	}
	return 0, 0, false
}

// reclaimAllFreeBucket converts a currently all-free bucket (of any class,
// including unassigned) into classIdx.
func (a *allocator) reclaimAllFreeBucket(classIdx int) (int, bool) {
	for i := range a.buckets {
		b := &a.buckets[i]
		if !b.allFree() {
			continue
		}
		if b.classIdx == classIdx && b.slotsTotal > 0 {
			// Already the right class with a free slot — takeFreeSlot
			// would have found it; nothing to reclaim.
			continue
		}
		if b.classIdx != unassignedClass {
			old := &a.classes[b.classIdx]
			old.totalCount -= uint64(b.slotsTotal)
			old.freeCount -= uint64(b.slotsTotal)
		}

		itemSize := a.sizeClasses[classIdx]
		slotsTotal := uint32(a.bucketCapacity / uint64(itemSize))
		if slotsTotal == 0 {
			slotsTotal = 1
		}
		freeSlots := make([]uint32, slotsTotal)
		for s := uint32(0); s < slotsTotal; s++ {
			freeSlots[s] = s
		}

		b.classIdx = classIdx
		b.slotsTotal = slotsTotal
		b.slotsUsed = 0
		b.freeSlots = freeSlots

		a.classes[classIdx].totalCount += uint64(slotsTotal)
		a.classes[classIdx].freeCount += uint64(slotsTotal)
		return i, true
	}
	return 0, false
}

// slotOffset computes the engine offset for a slot. bucketCapacity and every
// size class are required (Config.validate) to be multiples of
// offsetAlignment, so the result always is too; this panics rather than
// hand a misaligned offset to an Engine if that invariant is ever violated.
func (a *allocator) slotOffset(bucketIdx, classIdx int, slot uint32) uint64 {
	offset := uint64(bucketIdx)*a.bucketCapacity + uint64(slot)*uint64(a.sizeClasses[classIdx])
	if offset%offsetAlignment != 0 {
		panic(fmt.Sprintf("bucketcache: allocator produced misaligned offset %d", offset))
	}
	return offset
}

// Free returns the slot at offset to its bucket's free list. The bucket
// remains assigned to its class; it may be reclaimed lazily by a later
// Allocate for a different class.
func (a *allocator) Free(offset uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucketIdx := int(offset / a.bucketCapacity)
	if bucketIdx < 0 || bucketIdx >= len(a.buckets) {
		return
	}
	b := &a.buckets[bucketIdx]
	if b.classIdx == unassignedClass {
		return
	}
	itemSize := a.sizeClasses[b.classIdx]
	withinBucket := offset % a.bucketCapacity
	slot := uint32(withinBucket / uint64(itemSize))

	b.freeSlots = append(b.freeSlots, slot)
	b.slotsUsed--
	a.classes[b.classIdx].usedCount--
	a.classes[b.classIdx].freeCount++
	a.usedSize -= uint64(itemSize)
}

// TotalSize is the sum of bucketCapacity across every bucket — the
// portion of engine capacity the allocator actually carves into slots.
func (a *allocator) TotalSize() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.buckets)) * a.bucketCapacity
}

// UsedSize is the sum of allocated slot bytes across all classes.
func (a *allocator) UsedSize() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedSize
}

// Stats returns a snapshot of per-size-class occupancy.
func (a *allocator) Stats() []IndexStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]IndexStatistics, len(a.classes))
	for i, cs := range a.classes {
		out[i] = IndexStatistics{
			ItemSize:   cs.itemSize,
			TotalCount: cs.totalCount,
			UsedCount:  cs.usedCount,
			FreeCount:  cs.freeCount,
		}
	}
	return out
}
