// Package benchconfig loads the bucketbench load generator's configuration
// from file, environment, and flags, and translates it into the types the
// bucketcache and adminserver packages actually consume.
package benchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/bucketcache/internal/bytesize"
	"github.com/marmos91/bucketcache/internal/telemetry"
	"github.com/marmos91/bucketcache/pkg/bucketcache"
)

// Config is the bucketbench configuration.
//
// Configuration sources (see Load):
//  1. Environment variables (BUCKETBENCH_*), which override only keys
//     that the configuration file sets
//  2. Configuration file (YAML)
//  3. Default values for every key the file does not set
//
// When no configuration file is found, Load returns the defaults and
// reads no environment variables. CLI flags are not merged into Config.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Workload  WorkloadConfig  `mapstructure:"workload" yaml:"workload"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool                      `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string                    `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool                      `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64                   `mapstructure:"sample_rate" yaml:"sample_rate"`
	Profiling  telemetry.ProfilingConfig `mapstructure:"-" yaml:"-"`
	Profile    ProfileConfig             `mapstructure:"profiling" yaml:"profiling"`
}

// ProfileConfig controls Pyroscope continuous profiling.
type ProfileConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the admin HTTP server's Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// EngineConfig selects and sizes the byte-store backing the cache.
type EngineConfig struct {
	// Type is "heap" (in-process, volatile) or "mmap" (file-backed).
	Type string `mapstructure:"type" yaml:"type"`

	// Path is the backing file for the mmap engine. Ignored for heap.
	Path string `mapstructure:"path" yaml:"path"`

	// Capacity is the engine's total byte capacity.
	Capacity bytesize.ByteSize `mapstructure:"capacity" yaml:"capacity"`
}

// CacheConfig mirrors bucketcache.Config's tunables in the shape a config
// file or environment override can set; ToBucketCacheConfig fills in the
// Engine field, which is constructed separately.
type CacheConfig struct {
	SizeClasses      []bytesize.ByteSize `mapstructure:"size_classes" yaml:"size_classes"`
	BucketCapacity   bytesize.ByteSize   `mapstructure:"bucket_capacity" yaml:"bucket_capacity"`
	WriterCount      int                 `mapstructure:"writer_count" yaml:"writer_count"`
	QueueCapacity    int                 `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	IOErrorTolerance time.Duration       `mapstructure:"io_error_tolerance" yaml:"io_error_tolerance"`
	StatsInterval    time.Duration       `mapstructure:"stats_interval" yaml:"stats_interval"`
	AcceptFactor     float64             `mapstructure:"accept_factor" yaml:"accept_factor"`
	MinFactor        float64             `mapstructure:"min_factor" yaml:"min_factor"`
	SingleFactor     float64             `mapstructure:"single_factor" yaml:"single_factor"`
	MultiFactor      float64             `mapstructure:"multi_factor" yaml:"multi_factor"`
	MemoryFactor     float64             `mapstructure:"memory_factor" yaml:"memory_factor"`
	ExtraFreeFactor  float64             `mapstructure:"extra_free_factor" yaml:"extra_free_factor"`
}

// ToBucketCacheConfig builds a bucketcache.Config from the loaded values,
// leaving Engine for the caller to attach.
func (c CacheConfig) ToBucketCacheConfig() bucketcache.Config {
	cfg := bucketcache.DefaultConfig()
	if len(c.SizeClasses) > 0 {
		cfg.SizeClasses = c.SizeClasses
	}
	cfg.BucketCapacity = c.BucketCapacity
	if c.WriterCount > 0 {
		cfg.WriterCount = c.WriterCount
	}
	if c.QueueCapacity > 0 {
		cfg.QueueCapacity = c.QueueCapacity
	}
	if c.IOErrorTolerance > 0 {
		cfg.IOErrorTolerance = c.IOErrorTolerance
	}
	cfg.StatsInterval = c.StatsInterval
	if c.AcceptFactor > 0 {
		cfg.AcceptFactor = c.AcceptFactor
	}
	if c.MinFactor > 0 {
		cfg.MinFactor = c.MinFactor
	}
	if c.SingleFactor > 0 {
		cfg.SingleFactor = c.SingleFactor
	}
	if c.MultiFactor > 0 {
		cfg.MultiFactor = c.MultiFactor
	}
	if c.MemoryFactor > 0 {
		cfg.MemoryFactor = c.MemoryFactor
	}
	if c.ExtraFreeFactor >= 0 {
		cfg.ExtraFreeFactor = c.ExtraFreeFactor
	}
	return cfg
}

// WorkloadConfig parameterizes the synthetic load generator run by `bucketbench run`.
type WorkloadConfig struct {
	// Concurrency is the number of goroutines issuing Cache/Get calls.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// Duration bounds how long the load generator runs. Zero runs until
	// interrupted.
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`

	// BlockSize is the payload size written per admitted block.
	BlockSize bytesize.ByteSize `mapstructure:"block_size" yaml:"block_size"`

	// FileCount is the number of distinct synthetic file IDs in the
	// working set; offsets within a file are drawn from [0, OffsetsPerFile).
	FileCount int `mapstructure:"file_count" yaml:"file_count"`

	// OffsetsPerFile bounds the offset space sampled within each file.
	OffsetsPerFile int `mapstructure:"offsets_per_file" yaml:"offsets_per_file"`

	// MemoryFraction is the approximate fraction of admissions marked
	// InMemory (pinned, MEMORY-priority) rather than ordinary SINGLE.
	MemoryFraction float64 `mapstructure:"memory_fraction" yaml:"memory_fraction"`
}

// DefaultConfig returns the bucketbench defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Profile: ProfileConfig{
				Enabled:      false,
				Endpoint:     "http://localhost:4040",
				ProfileTypes: []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"},
			},
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090},
		Engine:  EngineConfig{Type: "heap", Capacity: 256 * bytesize.MiB},
		Cache: CacheConfig{
			SizeClasses:      []bytesize.ByteSize{4 * bytesize.KiB, 8 * bytesize.KiB, 64 * bytesize.KiB, 1 * bytesize.MiB},
			WriterCount:      3,
			QueueCapacity:    64,
			IOErrorTolerance: 60 * time.Second,
			StatsInterval:    10 * time.Second,
			AcceptFactor:     0.95,
			MinFactor:        0.85,
			SingleFactor:     0.25,
			MultiFactor:      0.50,
			MemoryFactor:     0.25,
			ExtraFreeFactor:  0.10,
		},
		Workload: WorkloadConfig{
			Concurrency:    8,
			BlockSize:      4 * bytesize.KiB,
			FileCount:      64,
			OffsetsPerFile: 256,
			MemoryFraction: 0.05,
		},
	}
	cfg.Telemetry.Profiling = telemetry.ProfilingConfig{
		Enabled:      cfg.Telemetry.Profile.Enabled,
		Endpoint:     cfg.Telemetry.Profile.Endpoint,
		ProfileTypes: cfg.Telemetry.Profile.ProfileTypes,
	}
	return cfg
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to config file (empty string uses the default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Telemetry.Profiling = telemetry.ProfilingConfig{
		Enabled:      cfg.Telemetry.Profile.Enabled,
		Endpoint:     cfg.Telemetry.Profile.Endpoint,
		ProfileTypes: cfg.Telemetry.Profile.ProfileTypes,
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BUCKETBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration, mirroring the human-readable config syntax ("1Gi", "30s").
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bucketbench")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bucketbench")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
