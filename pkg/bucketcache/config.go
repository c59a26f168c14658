package bucketcache

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/bucketcache/internal/bytesize"
)

// maxCapacity is the hard ceiling on engine capacity (§8: "Capacity >
// 32TiB is rejected at construction").
const maxCapacity = 32 * uint64(bytesize.TiB)

// Config configures a Cache at construction time. Loading configuration
// from file/env/flags is an external concern (see cmd/bucketbench); this
// struct is the validated, in-process shape the Cache itself consumes.
type Config struct {
	// EngineName names the byte-store engine ("heap" or "offheap").
	// Informational only: New does not construct an engine from it, and
	// Engine must always be supplied.
	EngineName string `mapstructure:"engine" yaml:"engine" validate:"omitempty,oneof=heap offheap"`

	// Engine is the byte-store backing the cache. Required.
	Engine Engine `mapstructure:"-" yaml:"-" validate:"required"`

	// SizeClasses is the strictly increasing, positive vector of bucket
	// slot sizes. The smallest size class >= a requested length is
	// chosen at allocation time.
	SizeClasses []bytesize.ByteSize `mapstructure:"size_classes" yaml:"size_classes" validate:"required,min=1,dive,gt=0"`

	// BucketCapacity is the size of one bucket, carved into
	// BucketCapacity/itemSize fixed slots per size class. Must be a
	// power-of-two multiple of the largest size class. Zero selects a
	// sensible default.
	BucketCapacity bytesize.ByteSize `mapstructure:"bucket_capacity" yaml:"bucket_capacity"`

	// WriterCount is the number of writer worker queues/goroutines.
	WriterCount int `mapstructure:"writer_count" yaml:"writer_count" validate:"gte=1"`

	// QueueCapacity bounds each writer's FIFO queue.
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity" validate:"gte=1"`

	// IOErrorTolerance is how long sustained engine failures are
	// tolerated before the cache disables itself.
	IOErrorTolerance time.Duration `mapstructure:"io_error_tolerance" yaml:"io_error_tolerance" validate:"gt=0"`

	// StatsInterval is the period between stats log lines. Zero disables
	// the periodic logger.
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`

	// AcceptFactor/MinFactor/{Single,Multi,Memory}Factor/ExtraFreeFactor
	// are the eviction engine tunables from §4.6, expressed as fractions
	// of total allocator size.
	AcceptFactor    float64 `mapstructure:"accept_factor" yaml:"accept_factor" validate:"gt=0,lte=1"`
	MinFactor       float64 `mapstructure:"min_factor" yaml:"min_factor" validate:"gt=0,lte=1"`
	SingleFactor    float64 `mapstructure:"single_factor" yaml:"single_factor" validate:"gt=0,lt=1"`
	MultiFactor     float64 `mapstructure:"multi_factor" yaml:"multi_factor" validate:"gt=0,lt=1"`
	MemoryFactor    float64 `mapstructure:"memory_factor" yaml:"memory_factor" validate:"gt=0,lt=1"`
	ExtraFreeFactor float64 `mapstructure:"extra_free_factor" yaml:"extra_free_factor" validate:"gte=0"`
}

// DefaultConfig returns the defaults named throughout §4.6 and §6. Engine
// and SizeClasses are left unset — callers must supply both.
func DefaultConfig() Config {
	return Config{
		EngineName:       "heap",
		WriterCount:      3,
		QueueCapacity:    64,
		IOErrorTolerance: 60 * time.Second,
		StatsInterval:    30 * time.Second,
		AcceptFactor:     0.95,
		MinFactor:        0.85,
		SingleFactor:     0.25,
		MultiFactor:      0.50,
		MemoryFactor:     0.25,
		ExtraFreeFactor:  0.10,
	}
}

// ConfigError reports a configuration validation failure.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// validate checks Config against struct-tag rules plus the boundary rules
// from §8 that a tag alone cannot express (strictly increasing size
// classes, capacity ceiling).
func (c *Config) validate(capacity uint64) error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return &ConfigError{msg: fmt.Sprintf("bucketcache: invalid config: %v", err)}
	}

	if capacity == 0 {
		return &ConfigError{msg: "bucketcache: capacity must be > 0"}
	}
	if capacity > maxCapacity {
		return &ConfigError{msg: ErrCapacityTooLarge.Error()}
	}

	for i, sc := range c.SizeClasses {
		if i > 0 && sc <= c.SizeClasses[i-1] {
			return &ConfigError{msg: "bucketcache: size_classes must be strictly increasing"}
		}
		if uint64(sc)%offsetAlignment != 0 {
			return &ConfigError{msg: fmt.Sprintf("bucketcache: size_classes must be multiples of 256 bytes: %v", ErrInvalidOffset)}
		}
	}
	if c.BucketCapacity != 0 && uint64(c.BucketCapacity)%offsetAlignment != 0 {
		return &ConfigError{msg: fmt.Sprintf("bucketcache: bucket_capacity must be a multiple of 256 bytes: %v", ErrInvalidOffset)}
	}

	factorSum := c.SingleFactor + c.MultiFactor + c.MemoryFactor
	if factorSum > 1.0001 {
		return &ConfigError{msg: "bucketcache: single_factor+multi_factor+memory_factor must not exceed 1"}
	}
	if c.MinFactor > c.AcceptFactor {
		return &ConfigError{msg: "bucketcache: min_factor must be <= accept_factor"}
	}

	return nil
}
