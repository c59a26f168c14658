package bucketcache

import "errors"

var (
	// ErrCacheClosed is returned by operations attempted after Shutdown.
	ErrCacheClosed = errors.New("bucketcache: cache is closed")

	// ErrCacheDisabled is returned when the cache has disabled itself
	// after sustained I/O errors (see the I/O error controller).
	ErrCacheDisabled = errors.New("bucketcache: cache is disabled")

	// ErrIOError is a sentinel an Engine may return for an I/O failure.
	// The cache treats every Engine error alike, whether or not it is
	// ErrIOError.
	ErrIOError = errors.New("bucketcache: engine I/O error")

	// ErrInvalidOffset is returned at Config.validate time when
	// SizeClasses/BucketCapacity would make the allocator hand out
	// engine offsets not aligned to the required 256 bytes. BlockKey.Offset,
	// the caller-supplied file-identity offset, has no such constraint.
	ErrInvalidOffset = errors.New("bucketcache: offset is not 256-byte aligned")

	// ErrCacheFull means no size class can ever satisfy the requested
	// length — fatal for that particular admission.
	ErrCacheFull = errors.New("bucketcache: no size class can hold this block")

	// ErrNoSpaceInSizeClass means the chosen size class has no free
	// slot right now and no all-free bucket is available to convert.
	// Recoverable: it triggers eviction.
	ErrNoSpaceInSizeClass = errors.New("bucketcache: no free slot in size class")

	// ErrCapacityTooLarge is returned at construction when the requested
	// capacity exceeds the 32TiB ceiling.
	ErrCapacityTooLarge = errors.New("bucketcache: capacity exceeds 32TiB")
)
