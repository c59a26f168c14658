package bucketcache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/bucketcache/internal/logger"
	"github.com/marmos91/bucketcache/internal/telemetry"
)

// Cache is a secondary, byte-addressable block cache backed by a pluggable
// Engine. Admitted blocks are staged in RAM, written out by a fixed pool
// of writer workers, and evicted under memory pressure by a three-tier
// LRU policy (§3-§6).
type Cache struct {
	cfg    Config
	engine Engine

	alloc      *allocator
	offsetLock *sparseOffsetLock
	index      *secondaryIndex
	staging    *ramStagingTable
	queues     []*writerQueue
	eviction   *evictionEngine
	ioControl  *ioErrorController

	backingMu sync.RWMutex
	backing   map[BlockKey]*BucketEntry

	seq     atomic.Uint64
	enabled atomic.Bool
	closed  atomic.Bool
	stats   cacheCounters

	rateMu     sync.Mutex
	lastIOHits uint64
	lastRateAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Cache of the given byte capacity. cfg.Engine must be
// non-nil and sized to at least capacity; cfg.SizeClasses must be set.
func New(cfg Config, capacity uint64) (*Cache, error) {
	if err := cfg.validate(capacity); err != nil {
		return nil, err
	}

	bucketCapacity := uint64(cfg.BucketCapacity)
	if bucketCapacity == 0 {
		largest := uint64(cfg.SizeClasses[len(cfg.SizeClasses)-1])
		bucketCapacity = largest * 64
	}

	sizeClasses := make([]uint32, len(cfg.SizeClasses))
	for i, sc := range cfg.SizeClasses {
		sizeClasses[i] = uint32(sc)
	}

	c := &Cache{
		cfg:        cfg,
		engine:     cfg.Engine,
		alloc:      newAllocator(sizeClasses, bucketCapacity, capacity),
		offsetLock: newSparseOffsetLock(),
		index:      newSecondaryIndex(),
		staging:    newRamStagingTable(),
		backing:    make(map[BlockKey]*BucketEntry),
		ioControl:  newIOErrorController(cfg.IOErrorTolerance),
	}
	c.eviction = newEvictionEngine(c.alloc, &cfg, c.evictEntryLocked)
	c.enabled.Store(true)

	c.queues = make([]*writerQueue, cfg.WriterCount)
	for i := range c.queues {
		c.queues[i] = newWriterQueue(cfg.QueueCapacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for i, q := range c.queues {
		w := newWriter(i, q, c)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			w.run(ctx)
		}()
	}
	if cfg.StatsInterval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.statsLoop(ctx, cfg.StatsInterval)
		}()
	}

	return c, nil
}

// queueFor deterministically assigns a key to one of the writer queues,
// keeping all writes for a given block serialized through one worker.
func (c *Cache) queueFor(key BlockKey) *writerQueue {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.FileID))
	var off [8]byte
	for i := range off {
		off[i] = byte(key.Offset >> (8 * i))
	}
	_, _ = h.Write(off[:])
	return c.queues[h.Sum32()%uint32(len(c.queues))]
}

// Cache admits a block into the staging table for asynchronous
// persistence (§4.4). If wait is true and the target queue is full, Cache
// waits up to one queueWaitPoll window (cut short if ctx is done) and
// retries once. A queue that is still full drops the block, records a
// failed admission, and returns nil.
func (c *Cache) Cache(ctx context.Context, key BlockKey, payload []byte, inMemory bool, wait bool) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	if !c.enabled.Load() {
		return ErrCacheDisabled
	}

	ctx, span := telemetry.StartCacheSpan(ctx, "cache", telemetry.FSOffset(key.Offset), telemetry.FSSize(uint64(len(payload))))
	defer span.End()

	c.backingMu.RLock()
	_, exists := c.backing[key]
	c.backingMu.RUnlock()
	if exists {
		return nil
	}

	entry := &RamEntry{Key: key, Payload: payload, InMemory: inMemory}
	entry.accessSeq.Store(c.seq.Add(1))
	if !c.staging.InsertIfAbsent(entry) {
		return nil
	}

	q := c.queueFor(key)
	var ok bool
	if wait {
		ok = q.enqueueWait(ctx, key)
	} else {
		ok = q.tryEnqueue(key)
	}
	if !ok {
		c.staging.Remove(key)
		c.stats.failedBlockAdditions.Add(1)
		return nil
	}
	c.index.Add(key)
	return nil
}

// Get returns the payload for key per §4.8: a RAM staging hit, then a
// backing-map hit read through the engine, or a miss. caching marks this
// access as belonging to a caching-sensitive caller for the
// cachingAccesses/cachingHits stats split; it does not affect eviction
// priority. No error is returned — every failure mode (disabled cache,
// absent key, engine read failure) is a plain miss, recorded in counters
// and, for engine failures, fed to the I/O error controller.
func (c *Cache) Get(ctx context.Context, key BlockKey, caching bool) ([]byte, bool) {
	if c.closed.Load() || !c.enabled.Load() {
		return nil, false
	}

	ctx, span := telemetry.StartCacheSpan(ctx, "get", telemetry.FSOffset(key.Offset))
	defer span.End()

	if entry, ok := c.staging.Get(key); ok {
		entry.accessSeq.Store(c.seq.Add(1))
		c.stats.recordAccess(true, caching)
		span.SetAttributes(telemetry.CacheHit(true), telemetry.CacheSource("staging"))
		return entry.Payload, true
	}

	c.backingMu.RLock()
	be, ok := c.backing[key]
	c.backingMu.RUnlock()
	if !ok {
		c.stats.recordAccess(false, caching)
		span.SetAttributes(telemetry.CacheHit(false))
		return nil, false
	}

	h := c.offsetLock.Acquire(be.Offset)
	defer c.offsetLock.Release(be.Offset, h)

	// Re-check under the lock: a concurrent evict may have removed the
	// mapping while we waited to acquire it.
	c.backingMu.RLock()
	current, stillPresent := c.backing[key]
	c.backingMu.RUnlock()
	if !stillPresent || current != be {
		c.stats.recordAccess(false, caching)
		span.SetAttributes(telemetry.CacheHit(false))
		return nil, false
	}

	// A fresh, unpooled buffer: the returned slice escapes to the caller
	// for an indefinite lifetime, which rules out sync.Pool reuse here.
	buf := make([]byte, be.Length)
	start := time.Now()
	err := c.engine.Read(buf, be.Offset)
	c.stats.ioTimeNanos.Add(uint64(time.Since(start)))
	c.stats.ioHits.Add(1)
	if err != nil {
		c.recordIOFailure(time.Now())
		logger.ErrorCtx(ctx, "bucketcache: engine read failed", logger.Err(err), logger.Offset(be.Offset))
		c.stats.recordAccess(false, caching)
		span.SetAttributes(telemetry.CacheHit(false))
		return nil, false
	}
	c.ioControl.RecordSuccess()

	be.touch(c.seq.Add(1))
	c.stats.recordAccess(true, caching)
	span.SetAttributes(telemetry.CacheHit(true), telemetry.CacheSource("backing"))
	return buf, true
}

// Evict removes key from the cache if present, returning whether it was
// found. It may remove from either the staging table or the backing map.
// Per §4.6, a backing-map removal is linearized against a concurrent Get
// via the sparse offset lock plus a re-check-under-lock of the mapping.
func (c *Cache) Evict(key BlockKey) bool {
	if _, ok := c.staging.Remove(key); ok {
		c.index.Remove(key)
		return true
	}

	c.backingMu.RLock()
	be, ok := c.backing[key]
	c.backingMu.RUnlock()
	if !ok {
		return false
	}

	h := c.offsetLock.Acquire(be.Offset)
	defer c.offsetLock.Release(be.Offset, h)

	c.backingMu.Lock()
	current, stillPresent := c.backing[key]
	if !stillPresent || current != be {
		c.backingMu.Unlock()
		return false
	}
	delete(c.backing, key)
	c.backingMu.Unlock()

	c.index.Remove(key)
	c.alloc.Free(be.Offset)
	c.stats.evicted.Add(uint64(be.Length))
	c.stats.evictedByPriority[be.Priority()].Add(uint64(be.Length))
	return true
}

// EvictByFile removes every cached block belonging to fileID and returns
// the count removed.
func (c *Cache) EvictByFile(fileID string) int {
	keys := c.index.Keys(fileID)
	n := 0
	for _, k := range keys {
		if c.Evict(k) {
			n++
		}
	}
	return n
}

// Clear removes every cached block.
func (c *Cache) Clear() {
	c.staging.Clear()
	c.backingMu.Lock()
	entries := c.backing
	c.backing = make(map[BlockKey]*BucketEntry)
	c.backingMu.Unlock()
	for _, be := range entries {
		c.alloc.Free(be.Offset)
	}
	c.index.Clear()
}

// Shutdown stops writer/stats goroutines and shuts down the backing
// engine. No further Cache/Get calls are valid afterward.
func (c *Cache) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, q := range c.queues {
		q.Close()
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !c.enabled.CompareAndSwap(true, false) {
		return nil // disableCache already shut the engine down
	}
	return c.engine.Shutdown()
}

// Size returns the allocator's total carved capacity.
func (c *Cache) Size() uint64 { return c.alloc.TotalSize() }

// FreeSize returns unallocated allocator capacity.
func (c *Cache) FreeSize() uint64 {
	total := c.alloc.TotalSize()
	used := c.alloc.UsedSize()
	if used > total {
		return 0
	}
	return total - used
}

// BlockCount returns the number of persisted (non-staged) blocks.
func (c *Cache) BlockCount() uint64 {
	c.backingMu.RLock()
	defer c.backingMu.RUnlock()
	return uint64(len(c.backing))
}

// HeapSize returns the in-process staging table's byte footprint.
func (c *Cache) HeapSize() uint64 {
	var size uint64
	c.staging.mu.RLock()
	for _, e := range c.staging.entries {
		size += uint64(len(e.Payload))
	}
	c.staging.mu.RUnlock()
	return size
}

// IsEnabled reports whether the cache is accepting new admissions.
func (c *Cache) IsEnabled() bool { return c.enabled.Load() && !c.closed.Load() }

// GetStats returns a point-in-time snapshot of cache counters (§6).
func (c *Cache) GetStats() Stats {
	total := c.alloc.TotalSize()
	used := c.alloc.UsedSize()
	accesses := c.stats.accesses.Load()
	hits := c.stats.hits.Load()
	cachingAccesses := c.stats.cachingAccesses.Load()
	cachingHits := c.stats.cachingHits.Load()
	evictions := c.stats.evictions.Load()
	evicted := c.stats.evicted.Load()
	ioHits := c.stats.ioHits.Load()
	ioTime := c.stats.ioTimeNanos.Load()

	var evictedPerRun float64
	if evictions > 0 {
		evictedPerRun = float64(evicted) / float64(evictions)
	}
	var ioPerHit time.Duration
	if ioHits > 0 {
		ioPerHit = time.Duration(ioTime / ioHits)
	}

	var free uint64
	if used <= total {
		free = total - used
	}

	return Stats{
		FailedBlockAdditions: c.stats.failedBlockAdditions.Load(),
		Total:                total,
		Free:                 free,
		UsedSize:             used,
		CacheSize:            c.realCacheSize(),
		Accesses:             accesses,
		Hits:                 hits,
		IOHitsPerSecond:      c.ioHitsPerSecond(ioHits),
		IOTimePerHit:         ioPerHit,
		HitRatio:             ratio(hits, accesses),
		CachingAccesses:      cachingAccesses,
		CachingHits:          cachingHits,
		CachingHitRatio:      ratio(cachingHits, cachingAccesses),
		Evictions:            evictions,
		Evicted:              evicted,
		EvictedPerRun:        evictedPerRun,
		EvictedByPriority: map[Priority]uint64{
			PrioritySingle: c.stats.evictedByPriority[PrioritySingle].Load(),
			PriorityMulti:  c.stats.evictedByPriority[PriorityMulti].Load(),
			PriorityMemory: c.stats.evictedByPriority[PriorityMemory].Load(),
		},
		BlockCount: c.BlockCount(),
		HeapSize:   c.HeapSize(),
	}
}

// ioHitsPerSecond computes engine reads per second since the previous
// GetStats call, resetting the window each time it's called.
func (c *Cache) ioHitsPerSecond(currentIOHits uint64) float64 {
	now := time.Now()

	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	if c.lastRateAt.IsZero() {
		c.lastRateAt = now
		c.lastIOHits = currentIOHits
		return 0
	}

	elapsed := now.Sub(c.lastRateAt).Seconds()
	delta := currentIOHits - c.lastIOHits
	c.lastRateAt = now
	c.lastIOHits = currentIOHits
	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}

func (c *Cache) realCacheSize() uint64 {
	c.backingMu.RLock()
	defer c.backingMu.RUnlock()
	var size uint64
	for _, be := range c.backing {
		size += uint64(be.Length)
	}
	return size
}

// allocateWithEviction allocates length bytes. If the first attempt reports
// ErrNoSpaceInSizeClass (§4.5/§4.6), it runs one eviction pass (skipped if
// a pass is already running) and retries at once; if that retry fails too,
// it waits noSpaceRetryDelay (cut short if ctx is done) and makes one final
// attempt.
func (c *Cache) allocateWithEviction(ctx context.Context, length uint32) (uint64, error) {
	offset, err := c.alloc.Allocate(length)
	if err == nil {
		return offset, nil
	}
	if err != ErrNoSpaceInSizeClass {
		return 0, err
	}

	started, freed, perPriority := c.eviction.TryRun(c.snapshotEvictable(), uint64(length))
	if started && freed > 0 {
		c.stats.recordEviction(freed, perPriority)
	}

	offset, err = c.alloc.Allocate(length)
	if err == nil {
		return offset, nil
	}

	select {
	case <-time.After(noSpaceRetryDelay):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return c.alloc.Allocate(length)
}

// snapshotEvictable enumerates every persisted (key, entry) pair as input
// to an eviction pass.
func (c *Cache) snapshotEvictable() []evictableEntry {
	c.backingMu.RLock()
	defer c.backingMu.RUnlock()
	out := make([]evictableEntry, 0, len(c.backing))
	for k, be := range c.backing {
		out = append(out, evictableEntry{key: k, entry: be})
	}
	return out
}

// commit installs a persisted entry into the backing map.
func (c *Cache) commit(key BlockKey, be *BucketEntry) {
	c.backingMu.Lock()
	c.backing[key] = be
	c.backingMu.Unlock()
}

// evictEntryLocked is the eviction engine's removal callback: it performs
// the evictBlock primitive of §4.6 — sparse-lock, re-check-under-lock,
// remove, free, index update — against one candidate entry.
func (c *Cache) evictEntryLocked(key BlockKey, be *BucketEntry) {
	h := c.offsetLock.Acquire(be.Offset)
	defer c.offsetLock.Release(be.Offset, h)

	c.backingMu.Lock()
	current, stillPresent := c.backing[key]
	if !stillPresent || current != be {
		c.backingMu.Unlock()
		return
	}
	delete(c.backing, key)
	c.backingMu.Unlock()

	c.index.Remove(key)
	c.alloc.Free(be.Offset)
}

// recordIOFailure feeds an engine I/O error into the tolerance controller,
// disabling the cache once failures have persisted past cfg.IOErrorTolerance
// (§4.7).
func (c *Cache) recordIOFailure(now time.Time) {
	if c.ioControl.RecordFailure(now) {
		c.disableCache()
	}
}

// disableCache implements §4.7's disableCache(): it atomically clears the
// enabled flag, interrupts writer workers and the stats scheduler, shuts
// down the engine, and drops the RAM staging table and backing map.
// Idempotent — only the first caller to win the enabled CAS performs the
// teardown.
func (c *Cache) disableCache() {
	if !c.enabled.CompareAndSwap(true, false) {
		return
	}
	logger.Error("bucketcache: disabling cache after sustained engine I/O failures",
		logger.Source("bucketcache"))

	for _, q := range c.queues {
		q.Close()
	}
	c.cancel()
	c.staging.Clear()
	c.backingMu.Lock()
	c.backing = make(map[BlockKey]*BucketEntry)
	c.backingMu.Unlock()
	c.index.Clear()

	if err := c.engine.Shutdown(); err != nil {
		logger.Error("bucketcache: engine shutdown failed during disable", logger.Err(err))
	}
}

// statsLoop periodically logs a stats snapshot until ctx is done.
func (c *Cache) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.GetStats()
			logger.Info("bucketcache: stats",
				"used_size", s.UsedSize,
				"total", s.Total,
				"block_count", s.BlockCount,
				"hit_ratio", s.HitRatio,
				"caching_hit_ratio", s.CachingHitRatio,
				"evictions", s.Evictions,
				"evicted", s.Evicted,
			)
		}
	}
}
