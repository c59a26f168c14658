package bucketcache

import (
	"context"
	"sync"
	"time"
)

// queueWaitPoll bounds how long enqueueWait blocks between checks of ctx
// cancellation, since sync.Cond has no native timeout.
const queueWaitPoll = 50 * time.Millisecond

// writerQueue is a bounded FIFO of staged keys awaiting a writer worker,
// per §4.4/§4.5. Full producers either fail fast (tryEnqueue) or wait up
// to one queueWaitPoll window and retry once (enqueueWait).
type writerQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []BlockKey
	cap    int
	closed bool
}

func newWriterQueue(capacity int) *writerQueue {
	q := &writerQueue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// tryEnqueue appends key without blocking, returning false if the queue is
// full or closed.
func (q *writerQueue) tryEnqueue(key BlockKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, key)
	q.cond.Broadcast()
	return true
}

// enqueueWait appends key. If the queue is full, it parks for up to one
// queueWaitPoll window and retries exactly once (§4.4 step 6); if the
// queue is still full after that single retry, it gives up rather than
// blocking indefinitely. ctx is consulted only to cut the wait short for
// cancellation, not to extend it.
func (q *writerQueue) enqueueWait(ctx context.Context, key BlockKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if q.closed {
			return false
		}
		if len(q.items) < q.cap {
			q.items = append(q.items, key)
			q.cond.Broadcast()
			return true
		}
		if attempt == 1 {
			break
		}
		if !q.waitLocked(ctx) {
			return false
		}
	}
	return false
}

// take removes and returns the oldest item, blocking until one is
// available, the queue closes, or ctx is done.
func (q *writerQueue) take(ctx context.Context) (BlockKey, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return BlockKey{}, false
		}
		if !q.waitLocked(ctx) {
			return BlockKey{}, false
		}
	}
	key := q.items[0]
	q.items = q.items[1:]
	q.cond.Broadcast()
	return key, true
}

// drain removes and returns up to maxItems items without blocking, for
// batched writer processing (§4.5).
func (q *writerQueue) drain(maxItems int) []BlockKey {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil
	}
	if n > maxItems {
		n = maxItems
	}
	out := make([]BlockKey, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	q.cond.Broadcast()
	return out
}

// Len reports the current queue depth.
func (q *writerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes every blocked waiter; subsequent enqueue/take calls fail.
func (q *writerQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// waitLocked blocks on q.cond, bounded by queueWaitPoll so ctx cancellation
// is observed promptly. Caller holds q.mu. Returns false if ctx is done.
func (q *writerQueue) waitLocked(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	timer := time.AfterFunc(queueWaitPoll, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.cond.Wait()
	return ctx.Err() == nil
}
