package orc

import (
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
)

// Compressed sections are sequences of blocks, each preceded by a 3-byte
// little-endian header: bit 0 set means the block is stored uncompressed,
// the remaining 23 bits are the stored length.
const blockHeaderSize = 3

func putBlockHeader(dst []byte, length int, uncompressed bool) {
	v := uint32(length) << 1
	if uncompressed {
		v |= 1
	}
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

func parseBlockHeader(src []byte) (length int, uncompressed bool) {
	v := uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
	return int(v >> 1), v&1 != 0
}

// decodeSection decompresses a block-framed section. With compression.None
// the section bytes are the payload itself, unframed. expected bounds the
// decompressed size when known (0 means unknown); a framed section that
// decompresses to zero bytes while blocks remain is malformed.
func decodeSection(src []byte, kind compression.Kind, blockSize uint64, expected int) ([]byte, error) {
	if kind == compression.None {
		return src, nil
	}
	codec, err := compression.NewCodec(kind)
	if err != nil {
		return nil, err
	}

	var out []byte
	for len(src) > 0 {
		if len(src) < blockHeaderSize {
			return nil, errors.Newf(errors.ErrorTypeMalformed,
				"truncated block header: %d trailing bytes", len(src))
		}
		stored, uncompressed := parseBlockHeader(src)
		src = src[blockHeaderSize:]
		if stored <= 0 || stored > len(src) {
			return nil, errors.Newf(errors.ErrorTypeMalformed,
				"block length %d exceeds remaining %d bytes", stored, len(src))
		}
		block := src[:stored]
		src = src[stored:]

		if uncompressed {
			out = append(out, block...)
			continue
		}
		limit := int(blockSize)
		if limit <= 0 {
			limit = 1 << 23
		}
		dec, err := codec.Decompress(block, limit)
		if err != nil {
			return nil, err
		}
		if len(dec) == 0 && len(src) > 0 {
			return nil, errors.New(errors.ErrorTypeMalformed,
				"block decompressed to zero bytes with data remaining")
		}
		out = append(out, dec...)
	}
	if expected > 0 && len(out) < expected {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"section decompressed to %d bytes, expected %d", len(out), expected)
	}
	return out, nil
}

// encodeSection frames and compresses a payload into blocks of at most
// blockSize bytes. Blocks that do not shrink are stored uncompressed.
func encodeSection(payload []byte, kind compression.Kind, blockSize uint64) ([]byte, error) {
	if kind == compression.None {
		return payload, nil
	}
	codec, err := compression.NewCodec(kind)
	if err != nil {
		return nil, err
	}

	var out []byte
	for len(payload) > 0 {
		n := len(payload)
		if blockSize > 0 && uint64(n) > blockSize {
			n = int(blockSize)
		}
		block := payload[:n]
		payload = payload[n:]

		comp, err := codec.Compress(block)
		if err != nil {
			return nil, err
		}
		header := make([]byte, blockHeaderSize)
		if len(comp) < len(block) {
			putBlockHeader(header, len(comp), false)
			out = append(out, header...)
			out = append(out, comp...)
		} else {
			putBlockHeader(header, len(block), true)
			out = append(out, header...)
			out = append(out, block...)
		}
	}
	return out, nil
}
