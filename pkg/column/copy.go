package column

import (
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// CopyView materializes a view's row range into a new owning column.
func CopyView(v View, r memory.Resource, stream *memory.Stream) (*Column, error) {
	col := v.col
	var valid []bool
	if col.Nullable() {
		valid = make([]bool, v.length)
		for i := range valid {
			valid[i] = v.IsValid(i)
		}
	}

	switch {
	case col.dtype == String:
		vals := make([]string, v.length)
		for i := range vals {
			vals[i] = ViewStringAt(v, i)
		}
		return FromStringsOn(vals, valid, r, stream)

	case IsFixedWidth(col.dtype):
		width := SizeOf(col.dtype)
		data, err := memory.NewBuffer(v.length*width, r, stream)
		if err != nil {
			return nil, err
		}
		src := col.data.Bytes()[v.offset*width : (v.offset+v.length)*width]
		copy(data.Bytes(), src)

		validity, nulls, err := makeValidity(valid, r, stream)
		if err != nil {
			data.Close()
			return nil, err
		}
		return New(col.dtype, v.length, data, validity, nulls)
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "copying %s view", col.dtype)
}
