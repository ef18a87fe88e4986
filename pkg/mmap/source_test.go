package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenAndReadAt(t *testing.T) {
	data := []byte("hello, mapped world")
	src, err := Open(writeTemp(t, data))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(len(data)), src.Size())

	got, err := src.ReadAt(7, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("mapped"), got)

	got, err = src.ReadAt(0, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadAtBounds(t *testing.T) {
	src, err := Open(writeTemp(t, []byte("abc")))
	require.NoError(t, err)
	defer src.Close()

	_, err = src.ReadAt(1, 3)
	assert.Error(t, err)
	_, err = src.ReadAt(-1, 1)
	assert.Error(t, err)

	got, err := src.ReadAt(3, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmptyFileRejected(t *testing.T) {
	_, err := Open(writeTemp(t, nil))
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	src, err := Open(writeTemp(t, []byte("abc")))
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
