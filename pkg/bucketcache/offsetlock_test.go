package bucketcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSparseOffsetLockSerializesSameOffset(t *testing.T) {
	l := newSparseOffsetLock()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := l.Acquire(100)
			defer l.Release(100, h)
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, order, 2)
}

func TestSparseOffsetLockIndependentOffsetsDontBlock(t *testing.T) {
	l := newSparseOffsetLock()
	h1 := l.Acquire(1)
	done := make(chan struct{})
	go func() {
		h2 := l.Acquire(2)
		l.Release(2, h2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different offset should not block")
	}
	l.Release(1, h1)
}

func TestSparseOffsetLockHandleRemovedWhenUnreferenced(t *testing.T) {
	l := newSparseOffsetLock()
	h := l.Acquire(42)
	l.Release(42, h)

	l.mu.Lock()
	_, exists := l.handles[42]
	l.mu.Unlock()
	require.False(t, exists)
}
