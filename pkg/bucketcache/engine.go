package bucketcache

// Engine is a byte-addressable store backing the cache: on-process heap,
// off-process mapped memory, or a file. The core treats it as opaque and
// never assumes persistence across process restart.
//
// Implementations live outside this package (see pkg/bucketcache/engine
// for reference adapters) — the cache only depends on this interface.
type Engine interface {
	// Read fills dst with bytes starting at offset. Returns a non-nil
	// error on failure; the cache treats any error as an I/O failure.
	Read(dst []byte, offset uint64) error

	// Write writes all of src starting at offset. Returns a non-nil
	// error on failure; the cache treats any error as an I/O failure.
	Write(src []byte, offset uint64) error

	// Sync guarantees that writes visible before this call are durable
	// and ordered before any subsequent read observes them.
	Sync() error

	// Shutdown releases engine resources. Idempotent.
	Shutdown() error

	// Capacity returns the total addressable size of the engine in bytes.
	Capacity() uint64
}
