// Package arrowconv converts between the engine's columns and Arrow arrays,
// so tables can cross into the Arrow ecosystem (IPC, Flight, interop with
// other engines) without bespoke glue at every call site.
package arrowconv

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// Allocator adapts a memory.Resource to Arrow's allocator interface, so
// Arrow buffers are accounted by the same resource as column buffers.
type Allocator struct {
	res memory.Resource
}

// NewAllocator wraps a resource; nil wraps the default resource.
func NewAllocator(res memory.Resource) *Allocator {
	if res == nil {
		res = memory.Default()
	}
	return &Allocator{res: res}
}

// Allocate obtains a buffer from the underlying resource.
func (a *Allocator) Allocate(size int) []byte {
	b, err := a.res.Allocate(size, nil)
	if err != nil {
		panic(err)
	}
	return b
}

// Reallocate grows or shrinks a buffer, copying its prefix.
func (a *Allocator) Reallocate(size int, b []byte) []byte {
	out := a.Allocate(size)
	copy(out, b)
	a.Free(b)
	return out
}

// Free returns a buffer to the underlying resource.
func (a *Allocator) Free(b []byte) {
	if len(b) > 0 {
		a.res.Deallocate(b, nil)
	}
}

// ArrowType maps a column type to its Arrow data type.
func ArrowType(dt column.DataType) (arrow.DataType, error) {
	switch dt {
	case column.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case column.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case column.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case column.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case column.Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case column.Uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case column.Uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case column.Uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case column.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case column.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case column.Bool8:
		return arrow.FixedWidthTypes.Boolean, nil
	case column.String:
		return arrow.BinaryTypes.String, nil
	case column.TimestampSeconds:
		return &arrow.TimestampType{Unit: arrow.Second}, nil
	case column.TimestampMillis:
		return &arrow.TimestampType{Unit: arrow.Millisecond}, nil
	case column.TimestampMicros:
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	case column.TimestampNanos:
		return &arrow.TimestampType{Unit: arrow.Nanosecond}, nil
	case column.DurationNanos:
		return &arrow.DurationType{Unit: arrow.Nanosecond}, nil
	case column.Decimal64:
		return &arrow.Decimal128Type{Precision: 18, Scale: 0}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "converting %s to arrow", dt)
}

// ToArrow converts a column to an Arrow array on the given allocator.
func ToArrow(col *column.Column, mem arrowmem.Allocator) (arrow.Array, error) {
	if mem == nil {
		mem = arrowmem.DefaultAllocator
	}
	n := col.Size()

	switch col.DType() {
	case column.Int8:
		return buildNumeric(col, array.NewInt8Builder(mem), column.Values[int8](col)), nil
	case column.Int16:
		return buildNumeric(col, array.NewInt16Builder(mem), column.Values[int16](col)), nil
	case column.Int32:
		return buildNumeric(col, array.NewInt32Builder(mem), column.Values[int32](col)), nil
	case column.Int64:
		return buildNumeric(col, array.NewInt64Builder(mem), column.Values[int64](col)), nil
	case column.Uint8:
		return buildNumeric(col, array.NewUint8Builder(mem), column.Values[uint8](col)), nil
	case column.Uint16:
		return buildNumeric(col, array.NewUint16Builder(mem), column.Values[uint16](col)), nil
	case column.Uint32:
		return buildNumeric(col, array.NewUint32Builder(mem), column.Values[uint32](col)), nil
	case column.Uint64:
		return buildNumeric(col, array.NewUint64Builder(mem), column.Values[uint64](col)), nil
	case column.Float32:
		return buildNumeric(col, array.NewFloat32Builder(mem), column.Values[float32](col)), nil
	case column.Float64:
		return buildNumeric(col, array.NewFloat64Builder(mem), column.Values[float64](col)), nil

	case column.Bool8:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		vals := column.Values[uint8](col)
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				b.Append(vals[i] != 0)
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil

	case column.String:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				b.Append(column.StringAt(col, i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil

	case column.TimestampSeconds, column.TimestampMillis, column.TimestampMicros, column.TimestampNanos:
		dt, _ := ArrowType(col.DType())
		b := array.NewTimestampBuilder(mem, dt.(*arrow.TimestampType))
		defer b.Release()
		vals := column.Values[int64](col)
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				b.Append(arrow.Timestamp(vals[i]))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil

	case column.DurationNanos:
		b := array.NewDurationBuilder(mem, &arrow.DurationType{Unit: arrow.Nanosecond})
		defer b.Release()
		vals := column.Values[int64](col)
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				b.Append(arrow.Duration(vals[i]))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil

	case column.Decimal64:
		b := array.NewDecimal128Builder(mem, &arrow.Decimal128Type{Precision: 18, Scale: 0})
		defer b.Release()
		vals := column.Values[int64](col)
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				b.Append(decimal128.FromI64(vals[i]))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "converting %s to arrow", col.DType())
}

// numericBuilder is the shared surface of Arrow's fixed-width builders.
type numericBuilder[T any] interface {
	Append(T)
	AppendNull()
	NewArray() arrow.Array
	Release()
}

func buildNumeric[T any](col *column.Column, b numericBuilder[T], vals []T) arrow.Array {
	defer b.Release()
	for i := 0; i < col.Size(); i++ {
		if col.IsValid(i) {
			b.Append(vals[i])
		} else {
			b.AppendNull()
		}
	}
	return b.NewArray()
}

// FromArrow converts an Arrow array to an owning column.
func FromArrow(arr arrow.Array, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	n := arr.Len()
	var valid []bool
	if arr.NullN() > 0 {
		valid = make([]bool, n)
		for i := 0; i < n; i++ {
			valid[i] = arr.IsValid(i)
		}
	}

	switch a := arr.(type) {
	case *array.Int8:
		return column.FromNumeric(column.Int8, a.Int8Values(), valid, res, stream)
	case *array.Int16:
		return column.FromNumeric(column.Int16, a.Int16Values(), valid, res, stream)
	case *array.Int32:
		return column.FromNumeric(column.Int32, a.Int32Values(), valid, res, stream)
	case *array.Int64:
		return column.FromNumeric(column.Int64, a.Int64Values(), valid, res, stream)
	case *array.Uint8:
		return column.FromNumeric(column.Uint8, a.Uint8Values(), valid, res, stream)
	case *array.Uint16:
		return column.FromNumeric(column.Uint16, a.Uint16Values(), valid, res, stream)
	case *array.Uint32:
		return column.FromNumeric(column.Uint32, a.Uint32Values(), valid, res, stream)
	case *array.Uint64:
		return column.FromNumeric(column.Uint64, a.Uint64Values(), valid, res, stream)
	case *array.Float32:
		return column.FromNumeric(column.Float32, a.Float32Values(), valid, res, stream)
	case *array.Float64:
		return column.FromNumeric(column.Float64, a.Float64Values(), valid, res, stream)

	case *array.Boolean:
		vals := make([]uint8, n)
		for i := 0; i < n; i++ {
			if a.Value(i) {
				vals[i] = 1
			}
		}
		return column.FromNumeric(column.Bool8, vals, valid, res, stream)

	case *array.String:
		vals := make([]string, n)
		for i := 0; i < n; i++ {
			if arr.IsValid(i) {
				vals[i] = a.Value(i)
			}
		}
		return column.FromStringsOn(vals, valid, res, stream)

	case *array.Timestamp:
		dt, err := timestampDType(a.DataType().(*arrow.TimestampType))
		if err != nil {
			return nil, err
		}
		vals := make([]int64, n)
		for i := 0; i < n; i++ {
			vals[i] = int64(a.Value(i))
		}
		return column.FromNumeric(dt, vals, valid, res, stream)

	case *array.Duration:
		vals := make([]int64, n)
		for i := 0; i < n; i++ {
			vals[i] = int64(a.Value(i))
		}
		return column.FromNumeric(column.DurationNanos, vals, valid, res, stream)

	case *array.Decimal128:
		vals := make([]int64, n)
		for i := 0; i < n; i++ {
			vals[i] = int64(a.Value(i).LowBits())
		}
		return column.FromNumeric(column.Decimal64, vals, valid, res, stream)

	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return nil, errors.New(errors.ErrorTypeUnsupported, "non-string dictionary arrays")
		}
		vals := make([]string, n)
		for i := 0; i < n; i++ {
			if arr.IsValid(i) {
				vals[i] = dict.Value(a.GetValueIndex(i))
			}
		}
		return column.FromStringsOn(vals, valid, res, stream)
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "converting %s from arrow", arr.DataType())
}

// timestampDType maps an Arrow timestamp unit to a column type.
func timestampDType(t *arrow.TimestampType) (column.DataType, error) {
	switch t.Unit {
	case arrow.Second:
		return column.TimestampSeconds, nil
	case arrow.Millisecond:
		return column.TimestampMillis, nil
	case arrow.Microsecond:
		return column.TimestampMicros, nil
	case arrow.Nanosecond:
		return column.TimestampNanos, nil
	}
	return column.Empty, errors.Newf(errors.ErrorTypeUnsupported, "timestamp unit %s", t.Unit)
}

// ToRecord converts a table to an Arrow record batch.
func ToRecord(tbl *column.Table, mem arrowmem.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = arrowmem.DefaultAllocator
	}
	fields := make([]arrow.Field, tbl.NumColumns())
	arrays := make([]arrow.Array, tbl.NumColumns())
	for i := 0; i < tbl.NumColumns(); i++ {
		dt, err := ArrowType(tbl.Column(i).DType())
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: tbl.Name(i), Type: dt, Nullable: true}
		arr, err := ToArrow(tbl.Column(i), mem)
		if err != nil {
			return nil, err
		}
		arrays[i] = arr
	}
	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, arrays, int64(tbl.NumRows())), nil
}

// FromRecord converts an Arrow record batch to a table.
func FromRecord(rec arrow.Record, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	names := make([]string, rec.NumCols())
	cols := make([]*column.Column, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		names[i] = rec.Schema().Field(i).Name
		col, err := FromArrow(rec.Column(i), res, stream)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return column.NewTable(names, cols)
}
