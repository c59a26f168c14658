package engine

import "errors"

var (
	// ErrUnsupportedPlatform is returned by Mmap on platforms without a
	// unix-style mmap syscall.
	ErrUnsupportedPlatform = errors.New("engine: mmap backing is not supported on this platform")

	// ErrClosed is returned by any operation on a shut-down engine.
	ErrClosed = errors.New("engine: engine is closed")

	// ErrOutOfRange is returned when an offset/length falls outside the
	// engine's capacity.
	ErrOutOfRange = errors.New("engine: offset out of range")
)
