package iocore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSourceBounds(t *testing.T) {
	src := NewBufferSource([]byte("hello world"))
	assert.Equal(t, int64(11), src.Size())

	b, err := src.ReadAt(6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	_, err = src.ReadAt(8, 10)
	assert.Error(t, err)
	_, err = src.ReadAt(-1, 1)
	assert.Error(t, err)
}

func TestFileSinkAndSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	sink, err := CreateFile(path)
	require.NoError(t, err)
	require.NoError(t, sink.Write([]byte("abc")))
	require.NoError(t, sink.Write([]byte("defg")))
	assert.Equal(t, int64(7), sink.BytesWritten())
	require.NoError(t, sink.Close())

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(7), src.Size())
	b, err := src.ReadAt(3, 4)
	require.NoError(t, err)
	assert.Equal(t, "defg", string(b))
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(os.TempDir(), "does-not-exist-stratum"))
	assert.Error(t, err)
}

func TestVoidSinkCounts(t *testing.T) {
	sink := NewVoidSink()
	require.NoError(t, sink.Write(make([]byte, 100)))
	require.NoError(t, sink.Write(make([]byte, 20)))
	assert.Equal(t, int64(120), sink.BytesWritten())
}

func TestBufferSink(t *testing.T) {
	sink := NewBufferSink()
	require.NoError(t, sink.Write([]byte{1, 2}))
	require.NoError(t, sink.Write([]byte{3}))
	assert.Equal(t, []byte{1, 2, 3}, sink.Bytes())
}
