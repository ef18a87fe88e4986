// Package compression provides the block codecs used by the columnar file
// readers and writers. Codecs operate on whole blocks (a compression chunk
// of an ORC stripe or a Parquet page), not streams.
//
// Speed (fastest to slowest): LZ4 > Snappy > Zstd > Zlib
// Compression ratio (best to worst): Zstd > Zlib > Snappy > LZ4
package compression

import (
	"bytes"
	"compress/flate"
	"io"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Kind identifies a block compression algorithm. The numeric values match
// the ORC CompressionKind enumeration so they can be written to file
// postscripts directly.
type Kind uint8

const (
	// None performs no compression
	None Kind = 0
	// Zlib is raw DEFLATE (no zlib wrapper), as used by ORC
	Zlib Kind = 1
	// Snappy is the snappy block format
	Snappy Kind = 2
	// Lzo is unsupported but reserved to keep enum values aligned
	Lzo Kind = 3
	// Lz4 is the lz4 block format
	Lz4 Kind = 4
	// Zstd is zstandard
	Zstd Kind = 5
)

// String returns the canonical codec name.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case Snappy:
		return "snappy"
	case Lzo:
		return "lzo"
	case Lz4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return "invalid"
}

// Codec compresses and decompresses whole blocks. Implementations are safe
// for concurrent use.
type Codec interface {
	// Compress returns the compressed form of data.
	Compress(data []byte) ([]byte, error)
	// Decompress returns the original bytes. maxSize bounds the expected
	// decompressed size; a result exceeding it is a malformed-input error.
	Decompress(data []byte, maxSize int) ([]byte, error)
	// Kind returns the codec's kind tag.
	Kind() Kind
}

// NewCodec returns the codec for a kind.
func NewCodec(kind Kind) (Codec, error) {
	switch kind {
	case None:
		return noneCodec{}, nil
	case Zlib:
		return &zlibCodec{}, nil
	case Snappy:
		return snappyCodec{}, nil
	case Lz4:
		return lz4Codec{}, nil
	case Zstd:
		return newZstdCodec(), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "compression kind %s", kind)
	}
}

type noneCodec struct{}

func (noneCodec) Compress(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Decompress(data []byte, _ int) ([]byte, error) {
	return data, nil
}
func (noneCodec) Kind() Kind { return None }

type zlibCodec struct {
	writerPool sync.Pool
}

func (c *zlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, ok := c.writerPool.Get().(*flate.Writer)
	if !ok {
		var err error
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
	} else {
		w.Reset(&buf)
	}
	defer c.writerPool.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *zlibCodec) Decompress(data []byte, maxSize int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := readBounded(r, maxSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "zlib block decode")
	}
	return out, nil
}

func (c *zlibCodec) Kind() Kind { return Zlib }

type snappyCodec struct{}

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decompress(data []byte, maxSize int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "snappy block header")
	}
	if maxSize > 0 && n > maxSize {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"snappy block claims %d bytes, limit is %d", n, maxSize)
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "snappy block decode")
	}
	return out, nil
}

func (snappyCodec) Kind() Kind { return Snappy }

type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (lz4Codec) Decompress(data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = len(data) * 255
	}
	buf := make([]byte, maxSize)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "lz4 block decode")
	}
	return buf[:n], nil
}

func (lz4Codec) Kind() Kind { return Lz4 }

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ := zstd.NewReader(nil)
	return &zstdCodec{enc: enc, dec: dec}
}

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte, maxSize int) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "zstd block decode")
	}
	if maxSize > 0 && len(out) > maxSize {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"zstd block decoded to %d bytes, limit is %d", len(out), maxSize)
	}
	return out, nil
}

func (c *zstdCodec) Kind() Kind { return Zstd }

// readBounded reads all of r, failing once the size limit is exceeded.
func readBounded(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(r)
	}
	limited := io.LimitReader(r, int64(maxSize)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(out) > maxSize {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"block decoded past the %d byte limit", maxSize)
	}
	return out, nil
}
