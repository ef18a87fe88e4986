package ops

import (
	"strings"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

func requireString(col *column.Column, op string) error {
	if col.DType() != column.String {
		return errors.Newf(errors.ErrorTypeUnsupported,
			"operation %q has no implementation for type %s", op, col.DType())
	}
	return nil
}

// transform applies fn to every non-null row of a string column. Null rows
// stay null.
func transform(col *column.Column, fn func(string) string, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	n := col.Size()
	vals := make([]string, n)
	var valid []bool
	if col.Nullable() {
		valid = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		if col.IsValid(i) {
			vals[i] = fn(column.StringAt(col, i))
			if valid != nil {
				valid[i] = true
			}
		}
	}
	return column.FromStringsOn(vals, valid, res, stream)
}

// Lower lowercases every row of a string column.
func Lower(col *column.Column, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	if err := requireString(col, "lower"); err != nil {
		return nil, err
	}
	return transform(col, strings.ToLower, res, stream)
}

// Upper uppercases every row of a string column.
func Upper(col *column.Column, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	if err := requireString(col, "upper"); err != nil {
		return nil, err
	}
	return transform(col, strings.ToUpper, res, stream)
}

// Contains returns a bool8 column marking rows containing substr. Null
// rows stay null.
func Contains(col *column.Column, substr string, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	if err := requireString(col, "contains"); err != nil {
		return nil, err
	}
	n := col.Size()
	out := make([]bool, n)
	var valid []bool
	if col.Nullable() {
		valid = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		if col.IsValid(i) {
			out[i] = strings.Contains(column.StringAt(col, i), substr)
			if valid != nil {
				valid[i] = true
			}
		}
	}
	bytes8 := make([]uint8, n)
	for i, b := range out {
		if b {
			bytes8[i] = 1
		}
	}
	return column.FromNumeric(column.Bool8, bytes8, valid, res, stream)
}
