package commands

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/bucketcache/internal/adminserver"
	"github.com/marmos91/bucketcache/internal/logger"
	"github.com/marmos91/bucketcache/internal/telemetry"
	"github.com/marmos91/bucketcache/pkg/benchconfig"
	"github.com/marmos91/bucketcache/pkg/bucketcache"
	"github.com/marmos91/bucketcache/pkg/bucketcache/engine"
	"github.com/marmos91/bucketcache/pkg/bufpool"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the synthetic load generator against a bucketcache.Cache",
	Long: `run builds a Cache from the loaded configuration, drives concurrent
Cache/Get traffic against a synthetic keyspace, and serves /healthz, /stats,
/evict/{fileID}, /clear, and /metrics on the admin HTTP server until
interrupted or the configured duration elapses.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := benchconfig.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "bucketbench",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.Telemetry.Profiling)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("bucketbench starting",
		"config_source", getConfigSource(GetConfigFile()),
		"engine", cfg.Engine.Type,
		"concurrency", cfg.Workload.Concurrency)

	eng, engCapacity, err := buildEngine(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	cacheCfg := cfg.Cache.ToBucketCacheConfig()
	cacheCfg.Engine = eng

	cache, err := bucketcache.New(cacheCfg, engCapacity)
	if err != nil {
		return fmt.Errorf("failed to construct cache: %w", err)
	}

	var adminServer *http.Server
	if cfg.Metrics.Enabled {
		adminServer = &http.Server{
			Addr:    ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler: adminserver.NewRouter(cache, prometheus.NewRegistry()),
		}
		go func() {
			logger.Info("admin server listening", "addr", adminServer.Addr)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin server error", "error", err)
			}
		}()
	}

	runCtx := ctx
	if cfg.Workload.Duration > 0 {
		var runCancel context.CancelFunc
		runCtx, runCancel = context.WithTimeout(ctx, cfg.Workload.Duration)
		defer runCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	runWorkload(runCtx, cache, cfg.Workload)

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = adminServer.Shutdown(shutdownCtx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := cache.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cache shutdown failed: %w", err)
	}

	s := cache.GetStats()
	logger.Info("bucketbench finished",
		"accesses", s.Accesses,
		"hits", s.Hits,
		"hit_ratio", s.HitRatio,
		"evictions", s.Evictions)
	return nil
}

// buildEngine constructs the Engine selected by cfg, returning it along
// with the capacity the Cache should be sized to.
func buildEngine(cfg benchconfig.EngineConfig) (bucketcache.Engine, uint64, error) {
	capacity := cfg.Capacity.Uint64()
	switch cfg.Type {
	case "", "heap":
		return engine.NewHeap(capacity), capacity, nil
	case "mmap":
		if cfg.Path == "" {
			return nil, 0, fmt.Errorf("engine.path is required for the mmap engine")
		}
		e, err := engine.NewMmap(cfg.Path, capacity)
		if err != nil {
			return nil, 0, err
		}
		return e, capacity, nil
	default:
		return nil, 0, fmt.Errorf("unknown engine type %q", cfg.Type)
	}
}

// runWorkload drives cfg.Concurrency goroutines issuing random Cache/Get
// calls against a synthetic FileID/offset keyspace until ctx is done.
func runWorkload(ctx context.Context, cache *bucketcache.Cache, cfg benchconfig.WorkloadConfig) {
	var ops atomic.Uint64
	done := make(chan struct{})

	for i := 0; i < cfg.Concurrency; i++ {
		go func(worker int) {
			defer func() { done <- struct{}{} }()
			rng := rand.New(rand.NewSource(int64(worker) + time.Now().UnixNano()))
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				workloadStep(ctx, cache, cfg, rng)
				ops.Add(1)
			}
		}(i)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for i := 0; i < cfg.Concurrency; i++ {
				<-done
			}
			return
		case <-ticker.C:
			logger.Info("workload progress", "ops", ops.Load())
		}
	}
}

func workloadStep(ctx context.Context, cache *bucketcache.Cache, cfg benchconfig.WorkloadConfig, rng *rand.Rand) {
	fileID := "file-" + strconv.Itoa(rng.Intn(cfg.FileCount))
	offset := uint64(rng.Intn(cfg.OffsetsPerFile)) * uint64(cfg.BlockSize)
	key := bucketcache.BlockKey{FileID: fileID, Offset: offset}

	if _, ok := cache.Get(ctx, key, true); ok {
		return
	}

	payload := bufpool.GetUint32(uint32(cfg.BlockSize))
	defer bufpool.Put(payload)
	for i := range payload {
		payload[i] = byte(rng.Intn(256))
	}

	inMemory := rng.Float64() < cfg.MemoryFraction
	// Cache copies nothing: the staging table keeps this slice until the
	// writer persists it, so hand it a buffer of its own rather than the
	// pooled one returned above.
	owned := make([]byte, len(payload))
	copy(owned, payload)
	_ = cache.Cache(ctx, key, owned, inMemory, false)
}
