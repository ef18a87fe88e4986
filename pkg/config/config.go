// Package config defines the engine configuration and its loader.
// A single Config structure covers memory management, file reading and
// writing defaults, and logging. Values come from an optional YAML file
// with STRATUM_-prefixed environment overrides layered on top.
//
// Example:
//
//	cfg, err := config.Load("stratum.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := cfg.Memory.BuildResource()
package config

import (
	"runtime"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// Config is the root engine configuration.
type Config struct {
	// Memory controls how column buffers are allocated.
	Memory MemoryConfig `yaml:"memory" mapstructure:"memory"`

	// Read sets defaults for file readers.
	Read ReadConfig `yaml:"read" mapstructure:"read"`

	// Write sets defaults for file writers.
	Write WriteConfig `yaml:"write" mapstructure:"write"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// MemoryConfig selects and sizes the buffer allocator.
type MemoryConfig struct {
	// Pooling recycles freed buffers through size-class free lists.
	Pooling bool `yaml:"pooling" mapstructure:"pooling"`
	// Tracking wraps the allocator with outstanding-byte accounting.
	Tracking bool `yaml:"tracking" mapstructure:"tracking"`
}

// ReadConfig holds reader defaults shared by all formats.
type ReadConfig struct {
	// Parallelism bounds concurrent stripe or row-group decodes.
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism"`
}

// WriteConfig holds writer defaults shared by all formats.
type WriteConfig struct {
	// Compression names the block codec: none, zlib, snappy, lz4, zstd.
	Compression string `yaml:"compression" mapstructure:"compression"`
	// CompressionBlockSize caps one compression block's payload.
	CompressionBlockSize uint64 `yaml:"compression_block_size" mapstructure:"compression_block_size"`
	// StripeSizeBytes is the target encoded stripe size.
	StripeSizeBytes int64 `yaml:"stripe_size_bytes" mapstructure:"stripe_size_bytes"`
	// RowIndexStride is the row-group granularity within a stripe.
	RowIndexStride int `yaml:"row_index_stride" mapstructure:"row_index_stride"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			Pooling:  true,
			Tracking: false,
		},
		Read: ReadConfig{
			Parallelism: runtime.NumCPU(),
		},
		Write: WriteConfig{
			Compression:          "snappy",
			CompressionBlockSize: 256 * 1024,
			StripeSizeBytes:      64 * 1024 * 1024,
			RowIndexStride:       10_000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks field ranges and enum values.
func (c *Config) Validate() error {
	if c.Read.Parallelism <= 0 {
		return errors.New(errors.ErrorTypeConfig, "read.parallelism must be positive")
	}
	if _, err := c.Write.CompressionKind(); err != nil {
		return err
	}
	if c.Write.CompressionBlockSize == 0 {
		return errors.New(errors.ErrorTypeConfig, "write.compression_block_size must be positive")
	}
	if c.Write.StripeSizeBytes <= 0 {
		return errors.New(errors.ErrorTypeConfig, "write.stripe_size_bytes must be positive")
	}
	if c.Write.RowIndexStride <= 0 {
		return errors.New(errors.ErrorTypeConfig, "write.row_index_stride must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "logging.level %q is not a log level", c.Logging.Level)
	}
	return nil
}

// CompressionKind resolves the configured codec name.
func (w *WriteConfig) CompressionKind() (compression.Kind, error) {
	switch w.Compression {
	case "", "none":
		return compression.None, nil
	case "zlib":
		return compression.Zlib, nil
	case "snappy":
		return compression.Snappy, nil
	case "lz4":
		return compression.Lz4, nil
	case "zstd":
		return compression.Zstd, nil
	}
	return compression.None, errors.Newf(errors.ErrorTypeConfig,
		"write.compression %q is not a codec", w.Compression)
}

// BuildResource assembles the allocator stack the configuration asks for.
func (m *MemoryConfig) BuildResource() memory.Resource {
	var res memory.Resource = memory.NewStandardResource()
	if m.Pooling {
		res = memory.NewPooledResource(res)
	}
	if m.Tracking {
		res = memory.NewTrackingResource(res)
	}
	return res
}
