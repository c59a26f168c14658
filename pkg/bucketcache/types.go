package bucketcache

import (
	"sync/atomic"
	"time"
)

// offsetAlignment is the required alignment for all engine offsets handed
// out by the allocator. BucketEntry.Offset is conceptually a 40-bit field
// scaled by this factor; this implementation stores the full uint64 but
// enforces the same alignment invariant.
const offsetAlignment = 256

// BlockKey identifies a cached block by file identity and byte offset.
// Ordering within a single FileID is by ascending Offset.
type BlockKey struct {
	FileID string
	Offset uint64
}

// Priority is the eviction priority tier of a persisted block.
type Priority int32

const (
	// PrioritySingle is assigned to newly admitted, not-pinned entries.
	PrioritySingle Priority = iota
	// PriorityMulti is reached after any re-access of a SINGLE entry.
	PriorityMulti
	// PriorityMemory is assigned at admission time to pinned entries and
	// never demoted.
	PriorityMemory
)

func (p Priority) String() string {
	switch p {
	case PrioritySingle:
		return "SINGLE"
	case PriorityMulti:
		return "MULTI"
	case PriorityMemory:
		return "MEMORY"
	default:
		return "UNKNOWN"
	}
}

// RamEntry is a block admitted into the RAM staging table, pending
// allocation, write, and sync by a writer worker.
type RamEntry struct {
	Key       BlockKey
	Payload   []byte
	InMemory  bool
	accessSeq atomic.Uint64
}

// AccessSeq returns the access sequence recorded for this entry.
func (e *RamEntry) AccessSeq() uint64 { return e.accessSeq.Load() }

// BucketEntry is the compact, post-persistence descriptor held in the
// backing map. Offset and Length describe the allocated engine range;
// AccessSeq and Priority are updated in place as the block is re-accessed.
type BucketEntry struct {
	Offset    uint64
	Length    uint32
	accessSeq atomic.Uint64
	priority  atomic.Int32
}

func newBucketEntry(offset uint64, length uint32, accessSeq uint64, priority Priority) *BucketEntry {
	be := &BucketEntry{Offset: offset, Length: length}
	be.accessSeq.Store(accessSeq)
	be.priority.Store(int32(priority))
	return be
}

// AccessSeq returns the last recorded access sequence number.
func (be *BucketEntry) AccessSeq() uint64 { return be.accessSeq.Load() }

// touch bumps the entry's access sequence and promotes SINGLE to MULTI.
// Priority is never restored after eviction and MEMORY never demotes.
func (be *BucketEntry) touch(seq uint64) {
	be.accessSeq.Store(seq)
	be.priority.CompareAndSwap(int32(PrioritySingle), int32(PriorityMulti))
}

// Priority returns the entry's current eviction priority.
func (be *BucketEntry) Priority() Priority { return Priority(be.priority.Load()) }

// IndexStatistics describes the current occupancy of one allocator size
// class.
type IndexStatistics struct {
	ItemSize   uint32
	TotalCount uint64
	UsedCount  uint64
	FreeCount  uint64
}

// Stats is a point-in-time snapshot of cache counters, matching the
// periodic stats log line described by the cache's external interface.
type Stats struct {
	FailedBlockAdditions uint64
	Total                uint64
	Free                 uint64
	UsedSize             uint64
	CacheSize            uint64 // realCacheSize: sum of persisted block lengths
	Accesses             uint64
	Hits                 uint64
	IOHitsPerSecond      float64
	IOTimePerHit         time.Duration
	HitRatio             float64
	CachingAccesses      uint64
	CachingHits          uint64
	CachingHitRatio      float64
	Evictions            uint64
	Evicted              uint64
	EvictedPerRun        float64
	EvictedByPriority    map[Priority]uint64
	BlockCount           uint64
	HeapSize             uint64
}
