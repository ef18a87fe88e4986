package column

import "math/bits"

// Null bitmasks are packed little-endian bit vectors, one bit per row,
// bit set = valid (non-null).

// BitmaskBytes returns the number of bytes needed to hold n bits.
func BitmaskBytes(n int) int { return (n + 7) / 8 }

// GetBit reports whether bit i is set.
func GetBit(mask []byte, i int) bool {
	return mask[i>>3]&(1<<uint(i&7)) != 0
}

// SetBit sets bit i.
func SetBit(mask []byte, i int) {
	mask[i>>3] |= 1 << uint(i&7)
}

// ClearBit clears bit i.
func ClearBit(mask []byte, i int) {
	mask[i>>3] &^= 1 << uint(i&7)
}

// FillBits sets all of the first n bits.
func FillBits(mask []byte, n int) {
	full := n >> 3
	for i := 0; i < full; i++ {
		mask[i] = 0xff
	}
	if rem := n & 7; rem != 0 {
		mask[full] |= byte(1<<uint(rem)) - 1
	}
}

// CountSetBits counts set bits in mask[offset : offset+length) (bit indices).
func CountSetBits(mask []byte, offset, length int) int {
	if length <= 0 {
		return 0
	}
	count := 0
	i := offset
	end := offset + length
	// Leading partial byte.
	for ; i < end && i&7 != 0; i++ {
		if GetBit(mask, i) {
			count++
		}
	}
	// Whole bytes.
	for ; i+8 <= end; i += 8 {
		count += bits.OnesCount8(mask[i>>3])
	}
	// Trailing partial byte.
	for ; i < end; i++ {
		if GetBit(mask, i) {
			count++
		}
	}
	return count
}

// CopyBits copies length bits from src starting at bit srcOff into dst
// starting at bit dstOff. Bits outside the destination range are preserved.
func CopyBits(dst []byte, dstOff int, src []byte, srcOff, length int) {
	for i := 0; i < length; i++ {
		if GetBit(src, srcOff+i) {
			SetBit(dst, dstOff+i)
		} else {
			ClearBit(dst, dstOff+i)
		}
	}
}
