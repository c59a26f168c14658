// Package bucketcache implements a secondary (L2) block cache for an
// immutable, block-oriented data file format.
//
// Blocks are opaque byte payloads keyed by (file identity, offset). The
// cache is backed by a fixed-capacity byte-addressable Engine — on-heap,
// mmap'd, or otherwise pluggable — that is partitioned into size-classed
// buckets by the allocator.
//
// # Architecture
//
// Admission writes land in a RAM staging table and are sharded across
// writer queues. Writer goroutines drain their queue, allocate a slot from
// the bucket allocator, write the payload to the Engine, and only commit
// the resulting BucketEntry into the backing map after Engine.Sync
// succeeds. A three-priority LRU eviction engine (SINGLE/MULTI/MEMORY)
// keeps the allocator under its target occupancy, and an I/O error
// controller disables the cache after sustained Engine failures.
//
// No panics escape the public API. Get reports every failure as a miss.
// Cache returns an error only when the cache is closed (ErrCacheClosed) or
// disabled (ErrCacheDisabled); every other admission failure is visible
// only in counters or as an eventual cache disable.
package bucketcache
