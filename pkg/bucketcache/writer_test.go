package bucketcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/bucketcache/internal/bytesize"
)

// syncFailEngine writes successfully but always fails Sync, exercising the
// batch rollback path a real engine takes when fsync/flush fails after a
// batch of writes has already landed in the page cache.
type syncFailEngine struct {
	mu       sync.Mutex
	capacity uint64
	writes   int
}

func (e *syncFailEngine) Read(_ []byte, _ uint64) error { return ErrIOError }

func (e *syncFailEngine) Write(_ []byte, _ uint64) error {
	e.mu.Lock()
	e.writes++
	e.mu.Unlock()
	return nil
}

func (e *syncFailEngine) Sync() error      { return ErrIOError }
func (e *syncFailEngine) Shutdown() error  { return nil }
func (e *syncFailEngine) Capacity() uint64 { return e.capacity }

// TestWriterBatchRollsBackEntireBatchOnSyncFailure exercises §8 scenario 4:
// failing engine.Sync on a batch of 10 staged blocks must leave none of
// them in the backing map and every one of their offsets back in the
// allocator's free list, not just the single entry being processed when
// Sync is called.
func TestWriterBatchRollsBackEntireBatchOnSyncFailure(t *testing.T) {
	capacity := uint64(1 << 20)
	engine := &syncFailEngine{capacity: capacity}

	cfg := DefaultConfig()
	cfg.Engine = engine
	cfg.SizeClasses = []bytesize.ByteSize{4096}
	cfg.WriterCount = 1
	cfg.QueueCapacity = 64
	cfg.StatsInterval = 0

	c, err := New(cfg, capacity)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})

	const n = 10
	payload := make([]byte, 4096)
	keys := make([]BlockKey, n)
	for i := 0; i < n; i++ {
		keys[i] = BlockKey{FileID: "f1", Offset: uint64(i) * offsetAlignment}
		c.staging.Insert(&RamEntry{Key: keys[i], Payload: payload})
	}

	usedBefore := c.alloc.UsedSize()

	w := newWriter(0, c.queues[0], c)
	w.writeBatch(context.Background(), keys)

	require.Equal(t, uint64(0), c.BlockCount(), "no entry in a failed-sync batch should commit")
	require.Equal(t, uint64(n), c.GetStats().FailedBlockAdditions)
	require.Equal(t, usedBefore, c.alloc.UsedSize(), "every allocated offset must be freed back")

	for _, k := range keys {
		_, staged := c.staging.Get(k)
		require.False(t, staged, "entry must be removed from staging after rollback")
	}
}

// TestWriterBatchCommitsEveryEntryOnSuccess verifies the batch's entries
// all commit together after a single successful Sync.
func TestWriterBatchCommitsEveryEntryOnSuccess(t *testing.T) {
	c := newTestCache(t, 1024*1024)

	const n = 5
	payload := make([]byte, 4096)
	keys := make([]BlockKey, n)
	for i := 0; i < n; i++ {
		keys[i] = BlockKey{FileID: "f1", Offset: uint64(i) * offsetAlignment}
		c.staging.Insert(&RamEntry{Key: keys[i], Payload: payload})
	}

	w := newWriter(0, c.queues[0], c)
	w.writeBatch(context.Background(), keys)

	require.Equal(t, uint64(n), c.BlockCount())
	for _, k := range keys {
		_, staged := c.staging.Get(k)
		require.False(t, staged)
		_, ok := c.Get(context.Background(), k, false)
		require.True(t, ok)
	}
}
