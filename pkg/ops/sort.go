package ops

import (
	"sort"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// Order is a sort direction.
type Order int8

const (
	Ascending Order = iota
	Descending
)

// NullOrder places nulls before or after all values.
type NullOrder int8

const (
	NullsFirst NullOrder = iota
	NullsLast
)

// SortKey names one key column and its ordering.
type SortKey struct {
	Name  string
	Order Order
	Nulls NullOrder
}

// OrderBy computes the stable permutation that sorts the table by the
// given keys. Equal rows keep their input order.
func OrderBy(tbl *column.Table, keys []SortKey) ([]int32, error) {
	if len(keys) == 0 {
		return nil, errors.New(errors.ErrorTypeLogic, "no sort keys")
	}
	cmps := make([]func(a, b int) int, len(keys))
	for k, key := range keys {
		col := tbl.ColumnByName(key.Name)
		if col == nil {
			return nil, errors.Newf(errors.ErrorTypeLogic, "sort key %q not in table", key.Name)
		}
		cmp, err := comparator(col)
		if err != nil {
			return nil, err
		}
		cmps[k] = wrapNullOrder(col, cmp, key)
	}

	indices := make([]int32, tbl.NumRows())
	for i := range indices {
		indices[i] = int32(i)
	}
	sort.SliceStable(indices, func(x, y int) bool {
		a, b := int(indices[x]), int(indices[y])
		for _, cmp := range cmps {
			if c := cmp(a, b); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return indices, nil
}

// SortBy sorts the table by the given keys.
func SortBy(tbl *column.Table, keys []SortKey, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	indices, err := OrderBy(tbl, keys)
	if err != nil {
		return nil, err
	}
	return GatherTable(tbl, indices, res, stream)
}

func wrapNullOrder(col *column.Column, cmp func(a, b int) int, key SortKey) func(a, b int) int {
	return func(a, b int) int {
		av, bv := col.IsValid(a), col.IsValid(b)
		if av != bv {
			nullCmp := -1 // the null row sorts first
			if key.Nulls == NullsLast {
				nullCmp = 1
			}
			if !av {
				return nullCmp
			}
			return -nullCmp
		}
		if !av {
			return 0
		}
		c := cmp(a, b)
		if key.Order == Descending {
			return -c
		}
		return c
	}
}

// comparator returns a three-way row comparison for a column.
func comparator(col *column.Column) (func(a, b int) int, error) {
	switch col.DType() {
	case column.Int8:
		return cmpSlice(column.Values[int8](col)), nil
	case column.Int16:
		return cmpSlice(column.Values[int16](col)), nil
	case column.Int32:
		return cmpSlice(column.Values[int32](col)), nil
	case column.Int64, column.TimestampSeconds, column.TimestampMillis,
		column.TimestampMicros, column.TimestampNanos, column.DurationNanos, column.Decimal64:
		return cmpSlice(column.Values[int64](col)), nil
	case column.Uint8, column.Bool8:
		return cmpSlice(column.Values[uint8](col)), nil
	case column.Uint16:
		return cmpSlice(column.Values[uint16](col)), nil
	case column.Uint32:
		return cmpSlice(column.Values[uint32](col)), nil
	case column.Uint64:
		return cmpSlice(column.Values[uint64](col)), nil
	case column.Float32:
		return cmpSlice(column.Values[float32](col)), nil
	case column.Float64:
		return cmpSlice(column.Values[float64](col)), nil
	case column.String:
		return func(a, b int) int {
			sa, sb := column.StringAt(col, a), column.StringAt(col, b)
			switch {
			case sa < sb:
				return -1
			case sa > sb:
				return 1
			}
			return 0
		}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "sorting %s columns", col.DType())
}

func cmpSlice[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64](vals []T) func(a, b int) int {
	return func(a, b int) int {
		switch {
		case vals[a] < vals[b]:
			return -1
		case vals[a] > vals[b]:
			return 1
		}
		return 0
	}
}
