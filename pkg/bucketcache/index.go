package bucketcache

import (
	"sort"
	"sync"
)

// secondaryIndex maps a file identity to the set of its cached block
// keys, maintained consistent with the backing map except during the
// brief windows of insert/evict (§3).
type secondaryIndex struct {
	mu     sync.RWMutex
	byFile map[string]map[uint64]struct{}
}

func newSecondaryIndex() *secondaryIndex {
	return &secondaryIndex{byFile: make(map[string]map[uint64]struct{})}
}

// Add records key in its file's offset set.
func (idx *secondaryIndex) Add(key BlockKey) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	offsets, ok := idx.byFile[key.FileID]
	if !ok {
		offsets = make(map[uint64]struct{})
		idx.byFile[key.FileID] = offsets
	}
	offsets[key.Offset] = struct{}{}
}

// Remove drops key from its file's offset set, cleaning up the file entry
// once empty.
func (idx *secondaryIndex) Remove(key BlockKey) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	offsets, ok := idx.byFile[key.FileID]
	if !ok {
		return
	}
	delete(offsets, key.Offset)
	if len(offsets) == 0 {
		delete(idx.byFile, key.FileID)
	}
}

// Keys returns a snapshot of fileID's keys sorted by ascending offset.
func (idx *secondaryIndex) Keys(fileID string) []BlockKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	offsets, ok := idx.byFile[fileID]
	if !ok {
		return nil
	}
	keys := make([]BlockKey, 0, len(offsets))
	for off := range offsets {
		keys = append(keys, BlockKey{FileID: fileID, Offset: off})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Offset < keys[j].Offset })
	return keys
}

// Clear empties the index.
func (idx *secondaryIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byFile = make(map[string]map[uint64]struct{})
}
