package ops

import (
	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
)

// Reductions run through a type dispatch table per operator: each numeric
// type tag resolves to a widening fold, and unregistered tags surface an
// unsupported-operation error naming the operator and type.
var (
	sumTable  = buildReduceTable("sum")
	minTable  = buildReduceTable("min")
	maxTable  = buildReduceTable("max")
	meanTable = buildReduceTable("mean")
)

func buildReduceTable(op string) *column.DispatchTable {
	t := column.NewDispatchTable(op)
	fn := func(args ...interface{}) (interface{}, error) {
		col := args[0].(*column.Column)
		return foldNumeric(col, op)
	}
	t.RegisterMany(column.NumericTypes, fn)
	t.Register(column.Bool8, fn)
	return t
}

func foldNumeric(col *column.Column, op string) (column.Scalar, error) {
	get, err := floatGetter(col)
	if err != nil {
		return column.Scalar{}, err
	}
	var sum, min, max float64
	count := 0
	for i := 0; i < col.Size(); i++ {
		if !col.IsValid(i) {
			continue
		}
		v := get(i)
		if count == 0 {
			min, max = v, v
		} else {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sum += v
		count++
	}
	if count == 0 {
		return column.NullScalar(resultType(col.DType(), op)), nil
	}
	switch op {
	case "sum":
		return numericScalar(col.DType(), sum), nil
	case "min":
		return numericScalar(col.DType(), min), nil
	case "max":
		return numericScalar(col.DType(), max), nil
	case "mean":
		return column.Float64Scalar(sum / float64(count)), nil
	}
	return column.Scalar{}, errors.Newf(errors.ErrorTypeUnsupported, "reduction %s", op)
}

func resultType(dt column.DataType, op string) column.DataType {
	if op == "mean" || dt == column.Float32 || dt == column.Float64 {
		return column.Float64
	}
	return column.Int64
}

func numericScalar(dt column.DataType, v float64) column.Scalar {
	if dt == column.Float32 || dt == column.Float64 {
		return column.Float64Scalar(v)
	}
	return column.Int64Scalar(column.Int64, int64(v))
}

func dispatchReduce(t *column.DispatchTable, col *column.Column) (column.Scalar, error) {
	out, err := t.Dispatch(col.DType(), col)
	if err != nil {
		return column.Scalar{}, err
	}
	return out.(column.Scalar), nil
}

// Sum reduces a numeric column to its sum. Null rows are skipped; an
// all-null or empty column yields a null scalar.
func Sum(col *column.Column) (column.Scalar, error) { return dispatchReduce(sumTable, col) }

// Min reduces a numeric column to its minimum.
func Min(col *column.Column) (column.Scalar, error) { return dispatchReduce(minTable, col) }

// Max reduces a numeric column to its maximum.
func Max(col *column.Column) (column.Scalar, error) { return dispatchReduce(maxTable, col) }

// Mean reduces a numeric column to its arithmetic mean as float64.
func Mean(col *column.Column) (column.Scalar, error) { return dispatchReduce(meanTable, col) }

// Count returns the number of non-null rows of any column.
func Count(col *column.Column) int {
	return col.Size() - col.NullCount()
}
