package orc

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Value streams use direct encodings: zigzag varints for integral data,
// fixed-width little-endian words for floating data, packed bits (LSB
// first) for booleans and PRESENT, and unsigned varints for lengths and
// dictionary indices.

func appendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func appendVarint(dst []byte, v int64) []byte {
	return appendUvarint(dst, uint64(v<<1)^uint64(v>>63))
}

func appendFixed(dst []byte, v uint64, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// appendPackedBits packs booleans LSB first, one bit per entry.
func appendPackedBits(dst []byte, bits []bool) []byte {
	var cur byte
	for i, b := range bits {
		if b {
			cur |= 1 << (i % 8)
		}
		if i%8 == 7 {
			dst = append(dst, cur)
			cur = 0
		}
	}
	if len(bits)%8 != 0 {
		dst = append(dst, cur)
	}
	return dst
}

// decodeVarints reads count zigzag varints.
func decodeVarints(data []byte, count int) ([]int64, error) {
	r := newPbReader(data)
	out := make([]int64, count)
	for i := range out {
		v, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeUvarints reads count unsigned varints.
func decodeUvarints(data []byte, count int) ([]uint64, error) {
	r := newPbReader(data)
	out := make([]uint64, count)
	for i := range out {
		v, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeFixed reads count little-endian words of the given byte width.
func decodeFixed(data []byte, count, width int) ([]uint64, error) {
	if len(data) < count*width {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"fixed-width stream has %d bytes, need %d", len(data), count*width)
	}
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		var v uint64
		for j := 0; j < width; j++ {
			v |= uint64(data[i*width+j]) << (8 * j)
		}
		out[i] = v
	}
	return out, nil
}

// decodePackedBits unpacks count bits, LSB first.
func decodePackedBits(data []byte, count int) ([]bool, error) {
	if len(data)*8 < count {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"bit stream has %d bytes, need %d bits", len(data), count)
	}
	out := make([]bool, count)
	for i := range out {
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out, nil
}
