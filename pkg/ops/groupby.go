package ops

import (
	"encoding/binary"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// AggOp is a group-by aggregation operator.
type AggOp int8

const (
	AggSum AggOp = iota
	AggMin
	AggMax
	AggCount
	AggMean
)

func (op AggOp) String() string {
	switch op {
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	case AggMean:
		return "mean"
	}
	return "invalid"
}

// Agg requests one aggregation over one value column. The output column is
// named Name, or "<op>_<column>" when Name is empty.
type Agg struct {
	Column string
	Op     AggOp
	Name   string
}

// rowKey builds a byte key identifying one row's key-column tuple. Nulls
// are distinguished from every value.
func rowKey(dst []byte, cols []*column.Column, row int) ([]byte, error) {
	for _, col := range cols {
		if !col.IsValid(row) {
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, 1)
		switch col.DType() {
		case column.String:
			s := column.StringAt(col, row)
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
			dst = append(dst, s...)
		default:
			if !column.IsFixedWidth(col.DType()) {
				return nil, errors.Newf(errors.ErrorTypeUnsupported, "grouping by %s columns", col.DType())
			}
			width := column.SizeOf(col.DType())
			dst = append(dst, col.Data().Bytes()[row*width:(row+1)*width]...)
		}
	}
	return dst, nil
}

// GroupBy groups the table by the named key columns and computes the
// requested aggregations. Output groups appear in first-occurrence order,
// so results are deterministic for a fixed input.
func GroupBy(tbl *column.Table, keyNames []string, aggs []Agg, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	if len(keyNames) == 0 {
		return nil, errors.New(errors.ErrorTypeLogic, "no group keys")
	}
	keyCols := make([]*column.Column, len(keyNames))
	for i, name := range keyNames {
		if keyCols[i] = tbl.ColumnByName(name); keyCols[i] == nil {
			return nil, errors.Newf(errors.ErrorTypeLogic, "group key %q not in table", name)
		}
	}

	groups := make(map[string]int)
	var firstRows []int32
	groupOf := make([]int, tbl.NumRows())
	var keyBuf []byte
	for row := 0; row < tbl.NumRows(); row++ {
		var err error
		keyBuf, err = rowKey(keyBuf[:0], keyCols, row)
		if err != nil {
			return nil, err
		}
		g, ok := groups[string(keyBuf)]
		if !ok {
			g = len(firstRows)
			groups[string(keyBuf)] = g
			firstRows = append(firstRows, int32(row))
		}
		groupOf[row] = g
	}

	names := append([]string(nil), keyNames...)
	cols := make([]*column.Column, 0, len(keyNames)+len(aggs))
	for _, kc := range keyCols {
		out, err := Gather(kc, firstRows, res, stream)
		if err != nil {
			return nil, err
		}
		cols = append(cols, out)
	}

	for _, agg := range aggs {
		vc := tbl.ColumnByName(agg.Column)
		if vc == nil {
			return nil, errors.Newf(errors.ErrorTypeLogic, "aggregation column %q not in table", agg.Column)
		}
		out, err := aggregate(vc, agg.Op, groupOf, len(firstRows), res, stream)
		if err != nil {
			return nil, err
		}
		name := agg.Name
		if name == "" {
			name = agg.Op.String() + "_" + agg.Column
		}
		names = append(names, name)
		cols = append(cols, out)
	}
	return column.NewTable(names, cols)
}

// aggregate folds one value column into per-group results. Null rows are
// skipped; a group with no non-null rows yields a null (count yields 0).
func aggregate(col *column.Column, op AggOp, groupOf []int, numGroups int, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	if op == AggCount {
		counts := make([]int64, numGroups)
		for row, g := range groupOf {
			if col.IsValid(row) {
				counts[g]++
			}
		}
		return column.FromNumeric(column.Int64, counts, nil, res, stream)
	}

	get, err := floatGetter(col)
	if err != nil {
		return nil, err
	}
	sums := make([]float64, numGroups)
	mins := make([]float64, numGroups)
	maxs := make([]float64, numGroups)
	counts := make([]int64, numGroups)
	for row, g := range groupOf {
		if !col.IsValid(row) {
			continue
		}
		v := get(row)
		if counts[g] == 0 {
			mins[g], maxs[g] = v, v
		} else {
			if v < mins[g] {
				mins[g] = v
			}
			if v > maxs[g] {
				maxs[g] = v
			}
		}
		sums[g] += v
		counts[g]++
	}

	valid := make([]bool, numGroups)
	anyEmpty := false
	for g := range valid {
		valid[g] = counts[g] > 0
		if !valid[g] {
			anyEmpty = true
		}
	}
	mask := valid
	if !anyEmpty {
		mask = nil
	}

	switch op {
	case AggMean:
		out := make([]float64, numGroups)
		for g := range out {
			if counts[g] > 0 {
				out[g] = sums[g] / float64(counts[g])
			}
		}
		return column.FromNumeric(column.Float64, out, mask, res, stream)
	case AggSum, AggMin, AggMax:
		src := sums
		if op == AggMin {
			src = mins
		} else if op == AggMax {
			src = maxs
		}
		if isIntegral(col.DType()) {
			out := make([]int64, numGroups)
			for g := range out {
				out[g] = int64(src[g])
			}
			return column.FromNumeric(column.Int64, out, mask, res, stream)
		}
		return column.FromNumeric(column.Float64, src, mask, res, stream)
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "aggregation %s", op)
}

func isIntegral(dt column.DataType) bool {
	switch dt {
	case column.Float32, column.Float64:
		return false
	}
	return column.IsNumeric(dt) || dt == column.Bool8
}

// floatGetter widens any numeric column's rows to float64.
func floatGetter(col *column.Column) (func(int) float64, error) {
	switch col.DType() {
	case column.Int8:
		v := column.Values[int8](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Int16:
		v := column.Values[int16](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Int32:
		v := column.Values[int32](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Int64, column.TimestampSeconds, column.TimestampMillis,
		column.TimestampMicros, column.TimestampNanos, column.DurationNanos:
		v := column.Values[int64](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Uint8, column.Bool8:
		v := column.Values[uint8](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Uint16:
		v := column.Values[uint16](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Uint32:
		v := column.Values[uint32](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Uint64:
		v := column.Values[uint64](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Float32:
		v := column.Values[float32](col)
		return func(i int) float64 { return float64(v[i]) }, nil
	case column.Float64:
		v := column.Values[float64](col)
		return func(i int) float64 { return v[i] }, nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "aggregating %s columns", col.DType())
}
