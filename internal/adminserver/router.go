// Package adminserver exposes a cache's health, stats, and Prometheus
// metrics over HTTP, adapted from the control-plane API router's
// middleware and routing idiom.
package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/bucketcache/internal/bucketmetrics"
	"github.com/marmos91/bucketcache/internal/logger"
	"github.com/marmos91/bucketcache/pkg/bucketcache"
)

// NewRouter builds the admin HTTP server's router.
//
// Routes:
//   - GET  /healthz       - liveness probe, reports IsEnabled()
//   - GET  /stats         - JSON-encoded Stats snapshot
//   - POST /evict/{fileID} - evicts every block belonging to fileID
//   - POST /clear         - evicts every cached block
//   - GET  /metrics       - Prometheus exposition, populated from
//     cache.GetStats() on every scrape
func NewRouter(cache *bucketcache.Cache, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(cache))
	r.Get("/stats", statsHandler(cache))
	r.Post("/evict/{fileID}", evictHandler(cache))
	r.Post("/clear", clearHandler(cache))

	collector := bucketmetrics.NewCollector(reg)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		collector.Collect(cache.GetStats())
		handler.ServeHTTP(w, req)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	return r
}

func healthHandler(cache *bucketcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !cache.IsEnabled() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": cache.IsEnabled()})
	}
}

func statsHandler(cache *bucketcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cache.GetStats())
	}
}

func evictHandler(cache *bucketcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := chi.URLParam(r, "fileID")
		n := cache.EvictByFile(fileID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"evicted": n})
	}
}

func clearHandler(cache *bucketcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache.Clear()
		w.WriteHeader(http.StatusOK)
	}
}

// requestLogger logs request start/completion through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("admin request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("admin request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
