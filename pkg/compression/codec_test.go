package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
)

func sample() []byte {
	var buf bytes.Buffer
	for i := 0; i < 500; i++ {
		buf.WriteString("columnar data compresses well when it repeats. ")
	}
	return buf.Bytes()
}

func TestRoundTripAllKinds(t *testing.T) {
	data := sample()
	for _, kind := range []Kind{None, Zlib, Snappy, Lz4, Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			codec, err := NewCodec(kind)
			require.NoError(t, err)
			assert.Equal(t, kind, codec.Kind())

			comp, err := codec.Compress(data)
			require.NoError(t, err)
			if kind != None {
				assert.Less(t, len(comp), len(data))
			}

			out, err := codec.Decompress(comp, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestUnsupportedKind(t *testing.T) {
	_, err := NewCodec(Lzo)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}

func TestDecompressSizeBound(t *testing.T) {
	data := sample()
	for _, kind := range []Kind{Zlib, Snappy, Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			codec, err := NewCodec(kind)
			require.NoError(t, err)
			comp, err := codec.Compress(data)
			require.NoError(t, err)

			_, err = codec.Decompress(comp, len(data)/2)
			require.Error(t, err)
			assert.True(t, errors.IsMalformed(err))
		})
	}
}

func TestGarbageInput(t *testing.T) {
	garbage := []byte{0xff, 0x00, 0xab, 0xcd, 0xef, 0x01, 0x02}
	for _, kind := range []Kind{Zlib, Snappy, Zstd} {
		codec, err := NewCodec(kind)
		require.NoError(t, err)
		_, err = codec.Decompress(garbage, 1 << 20)
		assert.Error(t, err, kind.String())
	}
}

func TestZlibWriterReuse(t *testing.T) {
	codec, err := NewCodec(Zlib)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		comp, err := codec.Compress(sample())
		require.NoError(t, err)
		out, err := codec.Decompress(comp, 0)
		require.NoError(t, err)
		assert.Equal(t, sample(), out)
	}
}
