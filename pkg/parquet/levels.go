package parquet

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Definition levels for flat optional columns use the RLE/bit-packed hybrid
// at bit width 1. The stream is a sequence of runs: an even header varint
// (count<<1) starts an RLE run followed by one value byte; an odd header
// ((groups<<1)|1) starts a bit-packed run of groups*8 values, LSB first.

// encodeLevels1 emits one bit-packed run covering all levels.
func encodeLevels1(levels []bool) []byte {
	groups := (len(levels) + 7) / 8
	var out []byte
	header := uint64(groups)<<1 | 1
	for header >= 0x80 {
		out = append(out, byte(header)|0x80)
		header >>= 7
	}
	out = append(out, byte(header))
	var cur byte
	for i, l := range levels {
		if l {
			cur |= 1 << (i % 8)
		}
		if i%8 == 7 {
			out = append(out, cur)
			cur = 0
		}
	}
	if len(levels)%8 != 0 {
		out = append(out, cur)
	}
	return out
}

// decodeLevels1 consumes runs until n levels are produced.
func decodeLevels1(data []byte, n int) ([]bool, error) {
	r := newCpReader(data)
	out := make([]bool, 0, n)
	for len(out) < n {
		header, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		if header&1 == 0 {
			// RLE run: count repeats of one value byte.
			count := int(header >> 1)
			b, err := r.readByte()
			if err != nil {
				return nil, err
			}
			if count > n-len(out) {
				count = n - len(out)
			}
			for i := 0; i < count; i++ {
				out = append(out, b&1 != 0)
			}
			continue
		}
		groups := int(header >> 1)
		if r.remaining() < groups {
			return nil, errors.New(errors.ErrorTypeMalformed, "truncated bit-packed level run")
		}
		for g := 0; g < groups; g++ {
			b, _ := r.readByte()
			for bit := 0; bit < 8 && len(out) < n; bit++ {
				out = append(out, b&(1<<bit) != 0)
			}
		}
	}
	return out, nil
}
