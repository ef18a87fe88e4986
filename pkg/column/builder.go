package column

import (
	"unsafe"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// Construction helpers building owning columns from host slices. A nil
// valid slice produces a non-nullable column; otherwise valid[i]==false
// marks row i null.

func makeValidity(valid []bool, r memory.Resource, stream *memory.Stream) (*memory.Buffer, int, error) {
	if valid == nil {
		return nil, 0, nil
	}
	buf, err := memory.NewBuffer(BitmaskBytes(len(valid)), r, stream)
	if err != nil {
		return nil, 0, err
	}
	nulls := 0
	mask := buf.Bytes()
	for i, ok := range valid {
		if ok {
			SetBit(mask, i)
		} else {
			nulls++
		}
	}
	return buf, nulls, nil
}

// FromNumeric builds a fixed-width column of the given type from a typed
// slice. The element width of T must match the type tag.
func FromNumeric[T any](dtype DataType, vals []T, valid []bool, r memory.Resource, stream *memory.Stream) (*Column, error) {
	var zero T
	width := int(unsafe.Sizeof(zero))
	if width != SizeOf(dtype) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"element width %d does not match %s", width, dtype)
	}
	if valid != nil && len(valid) != len(vals) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"%d validity entries for %d values", len(valid), len(vals))
	}
	data, err := memory.NewBuffer(len(vals)*width, r, stream)
	if err != nil {
		return nil, err
	}
	if len(vals) > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), len(vals)*width)
		copy(data.Bytes(), src)
	}
	validity, nulls, err := makeValidity(valid, r, stream)
	if err != nil {
		data.Close()
		return nil, err
	}
	return New(dtype, len(vals), data, validity, nulls)
}

// FromInt64s builds an int64 column.
func FromInt64s(vals []int64, valid []bool) (*Column, error) {
	return FromNumeric(Int64, vals, valid, nil, nil)
}

// FromInt32s builds an int32 column.
func FromInt32s(vals []int32, valid []bool) (*Column, error) {
	return FromNumeric(Int32, vals, valid, nil, nil)
}

// FromFloat64s builds a float64 column.
func FromFloat64s(vals []float64, valid []bool) (*Column, error) {
	return FromNumeric(Float64, vals, valid, nil, nil)
}

// FromBools builds a bool8 column.
func FromBools(vals []bool, valid []bool) (*Column, error) {
	bytes8 := make([]uint8, len(vals))
	for i, v := range vals {
		if v {
			bytes8[i] = 1
		}
	}
	return FromNumeric(Bool8, bytes8, valid, nil, nil)
}

// FromStrings builds a string column with an int32 offsets child.
func FromStrings(vals []string, valid []bool) (*Column, error) {
	return FromStringsOn(vals, valid, nil, nil)
}

// FromStringsOn is FromStrings with an explicit resource and stream.
func FromStringsOn(vals []string, valid []bool, r memory.Resource, stream *memory.Stream) (*Column, error) {
	if valid != nil && len(valid) != len(vals) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"%d validity entries for %d values", len(valid), len(vals))
	}
	offsets := make([]int32, len(vals)+1)
	total := 0
	for i, s := range vals {
		total += len(s)
		offsets[i+1] = int32(total)
	}
	chars, err := memory.NewBuffer(total, r, stream)
	if err != nil {
		return nil, err
	}
	pos := 0
	for _, s := range vals {
		pos += copy(chars.Bytes()[pos:], s)
	}
	offCol, err := FromNumeric(Int32, offsets, nil, r, stream)
	if err != nil {
		chars.Close()
		return nil, err
	}
	validity, nulls, err := makeValidity(valid, r, stream)
	if err != nil {
		chars.Close()
		offCol.Release()
		return nil, err
	}
	return New(String, len(vals), chars, validity, nulls, offCol)
}

// NewEmpty returns a zero-row column of the given type.
func NewEmpty(dtype DataType) (*Column, error) {
	if dtype == String {
		return FromStrings(nil, nil)
	}
	return New(dtype, 0, nil, nil, 0)
}
