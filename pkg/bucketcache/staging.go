package bucketcache

import "sync"

// ramStagingTable is the concurrent BlockKey -> RamEntry map holding
// blocks admitted but not yet committed to the backing map (§4.4).
type ramStagingTable struct {
	mu      sync.RWMutex
	entries map[BlockKey]*RamEntry
	count   int64
}

func newRamStagingTable() *ramStagingTable {
	return &ramStagingTable{entries: make(map[BlockKey]*RamEntry)}
}

// Contains reports whether key is currently staged.
func (t *ramStagingTable) Contains(key BlockKey) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[key]
	return ok
}

// Get returns the staged entry for key, if any.
func (t *ramStagingTable) Get(key BlockKey) (*RamEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

// Insert adds entry, overwriting any existing entry for the same key.
func (t *ramStagingTable) Insert(entry *RamEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[entry.Key]; !exists {
		t.count++
	}
	t.entries[entry.Key] = entry
}

// InsertIfAbsent inserts entry only if key is not already staged,
// returning false if a duplicate admission raced ahead of this one (§8
// scenario 6: concurrent duplicate admits enter the pipeline exactly
// once).
func (t *ramStagingTable) InsertIfAbsent(entry *RamEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[entry.Key]; exists {
		return false
	}
	t.entries[entry.Key] = entry
	t.count++
	return true
}

// Remove deletes key if present, returning the removed entry.
func (t *ramStagingTable) Remove(key BlockKey) (*RamEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	delete(t.entries, key)
	t.count--
	return e, true
}

// Count returns the number of staged entries.
func (t *ramStagingTable) Count() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Clear empties the table.
func (t *ramStagingTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[BlockKey]*RamEntry)
	t.count = 0
}
