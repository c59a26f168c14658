package bucketcache

import "sync"

// offsetLockHandle is a reference-counted mutex for one engine offset.
type offsetLockHandle struct {
	mu   sync.Mutex
	refs int
}

// sparseOffsetLock maps a live offset to a reference-counted mutex,
// created on demand and removed once its last holder releases it. Used to
// serialize a read against a concurrent free of the same byte range (§4.3).
type sparseOffsetLock struct {
	mu      sync.Mutex
	handles map[uint64]*offsetLockHandle
}

func newSparseOffsetLock() *sparseOffsetLock {
	return &sparseOffsetLock{handles: make(map[uint64]*offsetLockHandle)}
}

// Acquire blocks until the offset's lock is held and returns the handle
// used to release it.
func (s *sparseOffsetLock) Acquire(offset uint64) *offsetLockHandle {
	s.mu.Lock()
	h, ok := s.handles[offset]
	if !ok {
		h = &offsetLockHandle{}
		s.handles[offset] = h
	}
	h.refs++
	s.mu.Unlock()

	h.mu.Lock()
	return h
}

// Release unlocks the handle and removes it from the table once no
// holder remains.
func (s *sparseOffsetLock) Release(offset uint64, h *offsetLockHandle) {
	h.mu.Unlock()

	s.mu.Lock()
	h.refs--
	if h.refs == 0 {
		delete(s.handles, offset)
	}
	s.mu.Unlock()
}
