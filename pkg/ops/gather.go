// Package ops implements relational operations over columns and tables:
// gather, filter, sort, group-by aggregation, hash joins, reductions and
// string transforms. Operations allocate their outputs on the caller's
// memory resource and never mutate their inputs.
package ops

import (
	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// nullIndex marks a gather row that produces a null output.
const nullIndex = -1

// Gather builds a new column whose row i is src[indices[i]]. An index of
// nullIndex, a null index row, or a null source row produces a null output
// row. Out-of-range indices are logic errors.
func Gather(src *column.Column, indices []int32, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	n := len(indices)
	valid := make([]bool, n)
	anyNull := false
	for i, idx := range indices {
		switch {
		case idx == nullIndex:
			anyNull = true
		case idx < 0 || int(idx) >= src.Size():
			return nil, errors.Newf(errors.ErrorTypeLogic,
				"gather index %d out of range for column of %d rows", idx, src.Size())
		case !src.IsValid(int(idx)):
			anyNull = true
		default:
			valid[i] = true
		}
	}
	mask := valid
	if !anyNull {
		mask = nil
	}

	if src.DType() == column.String {
		vals := make([]string, n)
		for i, idx := range indices {
			if valid[i] {
				vals[i] = column.StringAt(src, int(idx))
			}
		}
		return column.FromStringsOn(vals, mask, res, stream)
	}
	if !column.IsFixedWidth(src.DType()) {
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "gathering %s columns", src.DType())
	}

	width := column.SizeOf(src.DType())
	data, err := memory.NewBuffer(n*width, res, stream)
	if err != nil {
		return nil, err
	}
	srcBytes := src.Data().Bytes()
	dst := data.Bytes()
	for i, idx := range indices {
		if valid[i] {
			copy(dst[i*width:(i+1)*width], srcBytes[int(idx)*width:(int(idx)+1)*width])
		}
	}

	validity, nulls, err := makeMask(mask, res, stream)
	if err != nil {
		data.Close()
		return nil, err
	}
	return column.New(src.DType(), n, data, validity, nulls)
}

// GatherTable gathers every column of a table with the same index list.
func GatherTable(tbl *column.Table, indices []int32, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	cols := make([]*column.Column, tbl.NumColumns())
	for i := 0; i < tbl.NumColumns(); i++ {
		out, err := Gather(tbl.Column(i), indices, res, stream)
		if err != nil {
			for _, c := range cols[:i] {
				c.Release()
			}
			return nil, err
		}
		cols[i] = out
	}
	return column.NewTable(tbl.Names(), cols)
}

func makeMask(valid []bool, res memory.Resource, stream *memory.Stream) (*memory.Buffer, int, error) {
	if valid == nil {
		return nil, 0, nil
	}
	buf, err := memory.NewBuffer(column.BitmaskBytes(len(valid)), res, stream)
	if err != nil {
		return nil, 0, err
	}
	nulls := 0
	for i, ok := range valid {
		if ok {
			column.SetBit(buf.Bytes(), i)
		} else {
			nulls++
		}
	}
	return buf, nulls, nil
}

// Filter keeps the rows where mask is non-null and true. The mask must be
// a bool8 column of the same length as the table.
func Filter(tbl *column.Table, mask *column.Column, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	if mask.DType() != column.Bool8 {
		return nil, errors.Newf(errors.ErrorTypeLogic, "filter mask is %s, want bool8", mask.DType())
	}
	if mask.Size() != tbl.NumRows() {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"filter mask has %d rows, table has %d", mask.Size(), tbl.NumRows())
	}
	vals := column.Values[uint8](mask)
	var indices []int32
	for i := range vals {
		if mask.IsValid(i) && vals[i] != 0 {
			indices = append(indices, int32(i))
		}
	}
	return GatherTable(tbl, indices, res, stream)
}
