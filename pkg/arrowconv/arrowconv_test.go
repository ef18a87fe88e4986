package arrowconv

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/memory"
)

func TestInt64RoundTrip(t *testing.T) {
	col, err := column.FromInt64s([]int64{1, 0, 3}, []bool{true, false, true})
	require.NoError(t, err)
	defer col.Release()

	arr, err := ToArrow(col, nil)
	require.NoError(t, err)
	defer arr.Release()

	assert.Equal(t, 3, arr.Len())
	assert.Equal(t, 1, arr.NullN())
	ints := arr.(*array.Int64)
	assert.Equal(t, int64(1), ints.Value(0))
	assert.False(t, ints.IsValid(1))

	back, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []int64{1, 0, 3}, column.Values[int64](back))
	assert.Equal(t, 1, back.NullCount())
}

func TestStringRoundTrip(t *testing.T) {
	col, err := column.FromStrings([]string{"a", "", "ccc"}, []bool{true, false, true})
	require.NoError(t, err)
	defer col.Release()

	arr, err := ToArrow(col, nil)
	require.NoError(t, err)
	defer arr.Release()

	back, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, "a", column.StringAt(back, 0))
	assert.False(t, back.IsValid(1))
	assert.Equal(t, "ccc", column.StringAt(back, 2))
}

func TestBoolBitPacking(t *testing.T) {
	vals := make([]bool, 20)
	for i := range vals {
		vals[i] = i%3 == 0
	}
	col, err := column.FromBools(vals, nil)
	require.NoError(t, err)
	defer col.Release()

	arr, err := ToArrow(col, nil)
	require.NoError(t, err)
	defer arr.Release()

	bools := arr.(*array.Boolean)
	for i, want := range vals {
		assert.Equal(t, want, bools.Value(i))
	}

	back, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	got := column.Values[uint8](back)
	for i, want := range vals {
		assert.Equal(t, want, got[i] != 0)
	}
}

func TestTimestampUnitPreserved(t *testing.T) {
	col, err := column.FromNumeric(column.TimestampMicros, []int64{7, 8}, nil, nil, nil)
	require.NoError(t, err)
	defer col.Release()

	arr, err := ToArrow(col, nil)
	require.NoError(t, err)
	defer arr.Release()
	ts := arr.DataType().(*arrow.TimestampType)
	assert.Equal(t, arrow.Microsecond, ts.Unit)

	back, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, column.TimestampMicros, back.DType())
	assert.Equal(t, []int64{7, 8}, column.Values[int64](back))
}

func TestDecimalWidening(t *testing.T) {
	col, err := column.FromNumeric(column.Decimal64, []int64{123456, -99}, nil, nil, nil)
	require.NoError(t, err)
	defer col.Release()

	arr, err := ToArrow(col, nil)
	require.NoError(t, err)
	defer arr.Release()
	assert.Equal(t, arrow.DECIMAL128, arr.DataType().ID())

	back, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []int64{123456, -99}, column.Values[int64](back))
}

func TestDictionaryArrayDecoded(t *testing.T) {
	mem := arrowmem.DefaultAllocator
	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	b := array.NewDictionaryBuilder(mem, dt).(*array.BinaryDictionaryBuilder)
	defer b.Release()
	require.NoError(t, b.AppendString("x"))
	require.NoError(t, b.AppendString("y"))
	require.NoError(t, b.AppendString("x"))
	arr := b.NewArray()
	defer arr.Release()

	col, err := FromArrow(arr, nil, nil)
	require.NoError(t, err)
	defer col.Release()
	assert.Equal(t, column.String, col.DType())
	assert.Equal(t, "x", column.StringAt(col, 0))
	assert.Equal(t, "y", column.StringAt(col, 1))
	assert.Equal(t, "x", column.StringAt(col, 2))
}

func TestRecordRoundTrip(t *testing.T) {
	a, err := column.FromInt64s([]int64{1, 2}, nil)
	require.NoError(t, err)
	b, err := column.FromStrings([]string{"p", "q"}, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"a", "b"}, []*column.Column{a, b})
	require.NoError(t, err)
	defer tbl.Release()

	rec, err := ToRecord(tbl, nil)
	require.NoError(t, err)
	defer rec.Release()
	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, int64(2), rec.NumCols())

	back, err := FromRecord(rec, nil, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []int64{1, 2}, column.Values[int64](back.ColumnByName("a")))
	assert.Equal(t, "q", column.StringAt(back.ColumnByName("b"), 1))
}

func TestAllocatorTracksArrowBuffers(t *testing.T) {
	tr := memory.NewTrackingResource(nil)
	alloc := NewAllocator(tr)

	buf := alloc.Allocate(128)
	assert.GreaterOrEqual(t, tr.OutstandingBytes(), int64(128))
	buf = alloc.Reallocate(256, buf)
	assert.Len(t, buf, 256)
	alloc.Free(buf)
	assert.Equal(t, int64(0), tr.OutstandingBytes())
}
