// Package engine provides byte-store backends implementing
// bucketcache.Engine: an in-process heap engine and a memory-mapped file
// engine for off-heap/on-disk persistence.
package engine
