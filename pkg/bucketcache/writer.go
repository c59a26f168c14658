package bucketcache

import (
	"context"
	"time"
)

// writerBatchSize bounds how many staged keys one writer iteration drains
// from its queue before writing them out (§4.5).
const writerBatchSize = 32

// noSpaceRetryDelay is how long a writer sleeps before retrying an
// allocation that failed with ErrNoSpaceInSizeClass after an eviction pass
// made no progress.
const noSpaceRetryDelay = 50 * time.Millisecond

// writer drains one writerQueue, allocating engine space for a batch of
// staged blocks, writing every one of them, syncing the engine exactly
// once for the whole batch, and committing the batch into the backing map
// only after that single sync succeeds (§4.5). Each Cache runs
// Config.WriterCount of these concurrently.
type writer struct {
	id    int
	queue *writerQueue
	cache *Cache
}

func newWriter(id int, queue *writerQueue, cache *Cache) *writer {
	return &writer{id: id, queue: queue, cache: cache}
}

// run processes keys until ctx is done or the queue closes.
func (w *writer) run(ctx context.Context) {
	for {
		keys := w.queue.drain(writerBatchSize)
		if len(keys) == 0 {
			key, ok := w.queue.take(ctx)
			if !ok {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			keys = []BlockKey{key}
		}

		w.writeBatch(ctx, keys)
		if ctx.Err() != nil {
			return
		}
	}
}

// pendingWrite is a staged block that has been allocated and written but
// not yet synced/committed, carried across the allocate/write loop into
// the batch's single Sync/commit step.
type pendingWrite struct {
	key    BlockKey
	offset uint64
	be     *BucketEntry
}

// writeBatch allocates and writes every entry in keys, then calls
// engine.Sync exactly once for the batch. On success every successfully
// written entry commits into the backing map; on sync failure every
// allocated offset in the batch is freed and every entry is dropped back
// out of the staging table (§4.5, §8 scenario 4). A missing staging entry
// (already evicted or superseded) is skipped without affecting the rest
// of the batch.
func (w *writer) writeBatch(ctx context.Context, keys []BlockKey) {
	pending := make([]pendingWrite, 0, len(keys))

	// LIFO processing within a batch favors the most recently staged
	// blocks, matching admission recency under burst load.
	for i := len(keys) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		key := keys[i]

		entry, ok := w.cache.staging.Get(key)
		if !ok {
			continue
		}

		offset, err := w.cache.allocateWithEviction(ctx, uint32(len(entry.Payload)))
		if err != nil {
			w.cache.staging.Remove(key)
			w.cache.stats.failedBlockAdditions.Add(1)
			continue
		}

		if err := w.cache.engine.Write(entry.Payload, offset); err != nil {
			w.cache.alloc.Free(offset)
			w.cache.staging.Remove(key)
			w.cache.recordIOFailure(time.Now())
			continue
		}
		w.cache.ioControl.RecordSuccess()

		priority := PrioritySingle
		if entry.InMemory {
			priority = PriorityMemory
		}
		be := newBucketEntry(offset, uint32(len(entry.Payload)), entry.AccessSeq(), priority)
		pending = append(pending, pendingWrite{key: key, offset: offset, be: be})
	}

	if len(pending) == 0 {
		return
	}

	if err := w.cache.engine.Sync(); err != nil {
		for _, p := range pending {
			w.cache.alloc.Free(p.offset)
			w.cache.staging.Remove(p.key)
		}
		w.cache.stats.failedBlockAdditions.Add(uint64(len(pending)))
		w.cache.recordIOFailure(time.Now())
		return
	}

	for _, p := range pending {
		w.cache.commit(p.key, p.be)
		w.cache.staging.Remove(p.key)
	}
}
