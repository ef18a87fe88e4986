package column

import (
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// Concat builds a new contiguous column holding the rows of all inputs in
// order. All inputs must share a data type; a mismatch is a hard error.
// Child offsets are rewritten to be globally monotonic and validity bits
// are copied per segment, so the result's null count is the sum of the
// inputs' null counts.
func Concat(cols []*Column, r memory.Resource, stream *memory.Stream) (*Column, error) {
	if len(cols) == 0 {
		return nil, errors.New(errors.ErrorTypeLogic, "concat of zero columns")
	}
	dtype := cols[0].DType()
	for i, c := range cols {
		if c.DType() != dtype {
			return nil, errors.Newf(errors.ErrorTypeLogic,
				"concat type mismatch: input 0 is %s, input %d is %s", dtype, i, c.DType())
		}
	}

	total := 0
	anyNullable := false
	for _, c := range cols {
		total += c.Size()
		if c.Nullable() {
			anyNullable = true
		}
	}

	var validity *memory.Buffer
	nulls := 0
	if anyNullable {
		var err error
		validity, err = memory.NewBuffer(BitmaskBytes(total), r, stream)
		if err != nil {
			return nil, err
		}
		FillBits(validity.Bytes(), total)
		row := 0
		for _, c := range cols {
			if c.Nullable() {
				CopyBits(validity.Bytes(), row, c.Validity().Bytes(), 0, c.Size())
				nulls += c.NullCount()
			}
			row += c.Size()
		}
	}

	switch {
	case IsFixedWidth(dtype):
		width := SizeOf(dtype)
		data, err := memory.NewBuffer(total*width, r, stream)
		if err != nil {
			validity.Close()
			return nil, err
		}
		pos := 0
		for _, c := range cols {
			pos += copy(data.Bytes()[pos:], c.Data().Bytes()[:c.Size()*width])
		}
		return New(dtype, total, data, validity, nulls)

	case dtype == String:
		charsTotal := 0
		for _, c := range cols {
			offs := Values[int32](c.Child(0))
			if len(offs) > 0 {
				charsTotal += int(offs[c.Size()] - offs[0])
			}
		}
		chars, err := memory.NewBuffer(charsTotal, r, stream)
		if err != nil {
			validity.Close()
			return nil, err
		}
		offsets := make([]int32, total+1)
		row, pos := 0, 0
		for _, c := range cols {
			offs := Values[int32](c.Child(0))
			for i := 0; i < c.Size(); i++ {
				n := int(offs[i+1] - offs[i])
				copy(chars.Bytes()[pos:], c.Data().Bytes()[offs[i]:offs[i+1]])
				pos += n
				offsets[row+i+1] = int32(pos)
			}
			row += c.Size()
		}
		offCol, err := FromNumeric(Int32, offsets, nil, r, stream)
		if err != nil {
			validity.Close()
			chars.Close()
			return nil, err
		}
		return New(String, total, chars, validity, nulls, offCol)

	default:
		validity.Close()
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "concat of %s columns", dtype)
	}
}
