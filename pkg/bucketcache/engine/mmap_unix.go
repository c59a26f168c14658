//go:build !windows

// File format: a fixed-size memory-mapped region preceded by a small
// header. Unlike an append-only WAL, offsets here are allocator-managed
// and may be overwritten in place; the header only records a magic, a
// version and the capacity, not a log cursor. NewMmap writes the header
// when it creates or grows the file and does not read or verify it on
// reopen.
//
//	Header (32 bytes):
//	  Magic:    "BKTC" (4 bytes)
//	  Version:  uint16 (2 bytes)
//	  Reserved: 2 bytes
//	  Capacity: uint64 (8 bytes)
//	  Reserved: 16 bytes

package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	mmapMagic      = "BKTC"
	mmapVersion    = uint16(1)
	mmapHeaderSize = 32
)

// Mmap is a memory-mapped-file-backed Engine for on-disk/off-heap
// persistence. Its capacity is fixed at construction; offsets are caller
// (allocator) managed, not appended sequentially.
type Mmap struct {
	mu     sync.RWMutex
	file   *os.File
	data   []byte // header + payload region
	cap    uint64 // payload capacity, excluding the header
	closed bool
}

// NewMmap opens or creates path as a capacity-byte engine file.
func NewMmap(path string, capacity uint64) (*Mmap, error) {
	totalSize := int64(mmapHeaderSize) + int64(capacity)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("engine: stat %s: %w", path, err)
	}
	if info.Size() < totalSize {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("engine: truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("engine: mmap %s: %w", path, err)
	}

	m := &Mmap{file: f, data: data, cap: capacity}
	if info.Size() < totalSize {
		m.writeHeader()
	}
	return m, nil
}

func (m *Mmap) writeHeader() {
	copy(m.data[0:4], mmapMagic)
	binary.LittleEndian.PutUint16(m.data[4:6], mmapVersion)
	binary.LittleEndian.PutUint64(m.data[8:16], m.cap)
}

// Read copies len(dst) bytes starting at offset (relative to the payload
// region, header-excluded) into dst.
func (m *Mmap) Read(dst []byte, offset uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	end := offset + uint64(len(dst))
	if offset > m.cap || end > m.cap {
		return ErrOutOfRange
	}
	start := mmapHeaderSize + offset
	copy(dst, m.data[start:start+uint64(len(dst))])
	return nil
}

// Write copies src into the payload region starting at offset.
func (m *Mmap) Write(src []byte, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	end := offset + uint64(len(src))
	if offset > m.cap || end > m.cap {
		return ErrOutOfRange
	}
	start := mmapHeaderSize + offset
	copy(m.data[start:start+uint64(len(src))], src)
	return nil
}

// Sync flushes dirty pages to disk via msync(MS_SYNC).
func (m *Mmap) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("engine: msync: %w", err)
	}
	return nil
}

// Shutdown unmaps and closes the backing file. Idempotent.
func (m *Mmap) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	_ = unix.Msync(m.data, unix.MS_SYNC)
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("engine: munmap: %w", err)
	}
	m.data = nil
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("engine: close: %w", err)
	}
	return nil
}

// Capacity returns the engine's payload byte capacity, header excluded.
func (m *Mmap) Capacity() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cap
}
