// Package bucketmetrics exports bucketcache.Stats as Prometheus metrics,
// adapted from the cache metrics registered by the dittofs prometheus
// exporter.
package bucketmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/bucketcache/pkg/bucketcache"
)

// Collector mirrors a bucketcache.Stats snapshot into Prometheus gauges
// (plus one gauge vector), one gauge update per Collect call.
type Collector struct {
	failedBlockAdditions prometheus.Gauge
	total                prometheus.Gauge
	free                 prometheus.Gauge
	usedSize             prometheus.Gauge
	cacheSize            prometheus.Gauge
	accesses             prometheus.Gauge
	hits                 prometheus.Gauge
	ioHitsPerSecond      prometheus.Gauge
	ioTimePerHitMs       prometheus.Gauge
	hitRatio             prometheus.Gauge
	cachingAccesses      prometheus.Gauge
	cachingHits          prometheus.Gauge
	cachingHitRatio      prometheus.Gauge
	evictions            prometheus.Gauge
	evicted              prometheus.Gauge
	evictedPerRun        prometheus.Gauge
	evictedByPriority    *prometheus.GaugeVec
	blockCount           prometheus.Gauge
	heapSize             prometheus.Gauge
}

// NewCollector registers bucketcache_* metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		failedBlockAdditions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_failed_block_additions_total",
			Help: "Blocks dropped because the writer queue was full, allocation failed, or the batch sync failed.",
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_allocator_total_bytes",
			Help: "Total bytes carved into allocator buckets.",
		}),
		free: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_allocator_free_bytes",
			Help: "Unallocated allocator bytes.",
		}),
		usedSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_allocator_used_bytes",
			Help: "Allocated allocator bytes, including slot rounding.",
		}),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_persisted_bytes",
			Help: "Sum of persisted block lengths (realCacheSize).",
		}),
		accesses: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_accesses_total",
			Help: "Total Get calls.",
		}),
		hits: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_hits_total",
			Help: "Total Get calls that found a staged or persisted block.",
		}),
		ioHitsPerSecond: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_io_hits_per_second",
			Help: "Engine reads per second since the previous stats snapshot.",
		}),
		ioTimePerHitMs: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_io_time_per_hit_milliseconds",
			Help: "Average engine read latency per hit.",
		}),
		hitRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_hit_ratio",
			Help: "hits / accesses.",
		}),
		cachingAccesses: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_caching_accesses_total",
			Help: "Accesses flagged caching=true.",
		}),
		cachingHits: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_caching_hits_total",
			Help: "Hits among accesses flagged caching=true.",
		}),
		cachingHitRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_caching_hit_ratio",
			Help: "cachingHits / cachingAccesses.",
		}),
		evictions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_evictions_total",
			Help: "Number of eviction passes that freed space.",
		}),
		evicted: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_evicted_bytes_total",
			Help: "Bytes freed by eviction passes and by explicit Evict calls.",
		}),
		evictedPerRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_evicted_bytes_per_run",
			Help: "evicted / evictions.",
		}),
		evictedByPriority: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucketcache_evicted_bytes_by_priority",
			Help: "Bytes freed per eviction priority tier.",
		}, []string{"priority"}),
		blockCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_block_count",
			Help: "Persisted blocks in the backing map (staged blocks are not counted).",
		}),
		heapSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "bucketcache_heap_size_bytes",
			Help: "RAM staging table byte footprint.",
		}),
	}
}

// Collect pushes a Stats snapshot into the registered gauges.
func (c *Collector) Collect(s bucketcache.Stats) {
	c.failedBlockAdditions.Set(float64(s.FailedBlockAdditions))
	c.total.Set(float64(s.Total))
	c.free.Set(float64(s.Free))
	c.usedSize.Set(float64(s.UsedSize))
	c.cacheSize.Set(float64(s.CacheSize))
	c.accesses.Set(float64(s.Accesses))
	c.hits.Set(float64(s.Hits))
	c.ioHitsPerSecond.Set(s.IOHitsPerSecond)
	c.ioTimePerHitMs.Set(float64(s.IOTimePerHit.Milliseconds()))
	c.hitRatio.Set(s.HitRatio)
	c.cachingAccesses.Set(float64(s.CachingAccesses))
	c.cachingHits.Set(float64(s.CachingHits))
	c.cachingHitRatio.Set(s.CachingHitRatio)
	c.evictions.Set(float64(s.Evictions))
	c.evicted.Set(float64(s.Evicted))
	c.evictedPerRun.Set(s.EvictedPerRun)
	for p, n := range s.EvictedByPriority {
		c.evictedByPriority.WithLabelValues(p.String()).Set(float64(n))
	}
	c.blockCount.Set(float64(s.BlockCount))
	c.heapSize.Set(float64(s.HeapSize))
}
