package bucketcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterQueueTryEnqueueFullReturnsFalse(t *testing.T) {
	q := newWriterQueue(1)
	require.True(t, q.tryEnqueue(BlockKey{FileID: "a"}))
	require.False(t, q.tryEnqueue(BlockKey{FileID: "b"}))
}

func TestWriterQueueDrainFIFOOrder(t *testing.T) {
	q := newWriterQueue(4)
	for i := 0; i < 3; i++ {
		require.True(t, q.tryEnqueue(BlockKey{FileID: "f", Offset: uint64(i)}))
	}
	keys := q.drain(10)
	require.Len(t, keys, 3)
	require.Equal(t, uint64(0), keys[0].Offset)
	require.Equal(t, uint64(2), keys[2].Offset)
}

func TestWriterQueueTakeBlocksUntilEnqueue(t *testing.T) {
	q := newWriterQueue(4)
	ctx := context.Background()

	done := make(chan BlockKey)
	go func() {
		key, ok := q.take(ctx)
		require.True(t, ok)
		done <- key
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.tryEnqueue(BlockKey{FileID: "late"}))

	select {
	case key := <-done:
		require.Equal(t, "late", key.FileID)
	case <-time.After(time.Second):
		t.Fatal("take did not observe the enqueued key")
	}
}

func TestWriterQueueCloseUnblocksTake(t *testing.T) {
	q := newWriterQueue(1)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		_, ok := q.take(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock take")
	}
}

func TestWriterQueueEnqueueWaitRespectsContextCancellation(t *testing.T) {
	q := newWriterQueue(1)
	require.True(t, q.tryEnqueue(BlockKey{FileID: "full"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ok := q.enqueueWait(ctx, BlockKey{FileID: "blocked"})
	require.False(t, ok)
}

// TestWriterQueueEnqueueWaitGivesUpAfterOneRetry pins down §4.4 step 6: a
// persistently full queue under a never-cancelled context must still give
// up after one bounded retry rather than blocking forever.
func TestWriterQueueEnqueueWaitGivesUpAfterOneRetry(t *testing.T) {
	q := newWriterQueue(1)
	require.True(t, q.tryEnqueue(BlockKey{FileID: "full"}))

	done := make(chan bool, 1)
	go func() {
		done <- q.enqueueWait(context.Background(), BlockKey{FileID: "blocked"})
	}()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueueWait blocked past its single bounded retry")
	}
}
