package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	kind, err := cfg.Write.CompressionKind()
	require.NoError(t, err)
	assert.Equal(t, compression.Snappy, kind)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Write.StripeSizeBytes, cfg.Write.StripeSizeBytes)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratum.yaml")
	body := `
read:
  parallelism: 2
write:
  compression: zstd
  stripe_size_bytes: 1048576
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Read.Parallelism)
	assert.Equal(t, int64(1048576), cfg.Write.StripeSizeBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)

	kind, err := cfg.Write.CompressionKind()
	require.NoError(t, err)
	assert.Equal(t, compression.Zstd, kind)

	// Unset keys keep their defaults.
	assert.Equal(t, Default().Write.RowIndexStride, cfg.Write.RowIndexStride)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("STRATUM_WRITE_COMPRESSION", "lz4")

	cfg, err := Load("")
	require.NoError(t, err)
	kind, err := cfg.Write.CompressionKind()
	require.NoError(t, err)
	assert.Equal(t, compression.Lz4, kind)
}

func TestInvalidValuesRejected(t *testing.T) {
	cfg := Default()
	cfg.Write.Compression = "brotli"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	cfg = Default()
	cfg.Read.Parallelism = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestMissingFileRejected(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestBuildResourceStacks(t *testing.T) {
	m := MemoryConfig{Pooling: true, Tracking: true}
	res := m.BuildResource()
	assert.Equal(t, "tracking(pooled(standard))", res.Name())

	m = MemoryConfig{}
	assert.Equal(t, "standard", m.BuildResource().Name())
}
