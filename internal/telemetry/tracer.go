package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used by cache span instrumentation.
const (
	AttrOffset      = "fs.offset" // I/O offset within a cached file
	AttrSize        = "fs.size"   // Payload size in bytes
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source" // "staging" or "backing"
	AttrCacheState  = "cache.state"  // "enabled" or "disabled"
	AttrCacheSize   = "cache.size"
)

// Span names for cache operations.
const (
	SpanCacheLookup = "cache.lookup"
	SpanCacheWrite  = "cache.write"
	SpanCacheEvict  = "cache.evict"
)

// FSOffset returns an attribute for an I/O offset.
func FSOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// FSSize returns an attribute for a payload size.
func FSSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// CacheHit returns an attribute for a cache hit/miss outcome.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute naming which tier served a hit.
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheState returns an attribute for the cache's enabled/disabled state.
func CacheState(state string) attribute.KeyValue {
	return attribute.String(AttrCacheState, state)
}

// StartCacheSpan starts a span for a cache operation, named "cache.<operation>".
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}
