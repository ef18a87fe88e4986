package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/stratumdb/stratum/pkg/errors"
)

// envPrefix namespaces environment overrides, e.g. STRATUM_READ_PARALLELISM.
const envPrefix = "STRATUM"

// Load builds a Config from defaults, an optional YAML file and
// environment overrides, in that precedence order. An empty path skips
// the file; a named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "opening config %q", path)
		}
		defer f.Close()
		if err := v.ReadConfig(f); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "parsing config %q", path)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("memory.pooling", cfg.Memory.Pooling)
	v.SetDefault("memory.tracking", cfg.Memory.Tracking)
	v.SetDefault("read.parallelism", cfg.Read.Parallelism)
	v.SetDefault("write.compression", cfg.Write.Compression)
	v.SetDefault("write.compression_block_size", cfg.Write.CompressionBlockSize)
	v.SetDefault("write.stripe_size_bytes", cfg.Write.StripeSizeBytes)
	v.SetDefault("write.row_index_stride", cfg.Write.RowIndexStride)
	v.SetDefault("logging.level", cfg.Logging.Level)
}
