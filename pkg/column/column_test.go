package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

func TestFromInt64sRoundValues(t *testing.T) {
	col, err := FromInt64s([]int64{1, -2, 3}, nil)
	require.NoError(t, err)
	defer col.Release()

	assert.Equal(t, Int64, col.DType())
	assert.Equal(t, 3, col.Size())
	assert.False(t, col.Nullable())
	assert.Equal(t, 0, col.NullCount())
	assert.Equal(t, []int64{1, -2, 3}, Values[int64](col))
}

func TestNullCountLazyRecompute(t *testing.T) {
	vals := []int64{1, 2, 3, 4}
	valid := []bool{true, false, true, false}
	col, err := FromInt64s(vals, valid)
	require.NoError(t, err)
	defer col.Release()

	// Force the unknown sentinel and verify recomputation from the mask.
	col.nullCount = UnknownNullCount
	assert.Equal(t, 2, col.NullCount())
	assert.True(t, col.HasNulls())
	assert.True(t, col.IsValid(0))
	assert.False(t, col.IsValid(1))
}

func TestNullCountInvariants(t *testing.T) {
	data, err := memory.NewBuffer(8, nil, nil)
	require.NoError(t, err)

	_, err = New(Int64, 1, data, nil, 5)
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestSliceProperties(t *testing.T) {
	vals := []int64{10, 20, 30, 40, 50, 60}
	valid := []bool{true, true, false, true, false, true}
	col, err := FromInt64s(vals, valid)
	require.NoError(t, err)
	defer col.Release()

	tr := memory.NewTrackingResource(nil)
	prev := memory.SetDefault(tr)
	defer memory.SetDefault(prev)

	v, err := col.View().Slice(2, 3)
	require.NoError(t, err)

	// Slicing must not allocate.
	assert.Equal(t, int64(0), tr.AllocationCount())

	assert.Equal(t, 3, v.Size())
	got := ViewValues[int64](v)
	for i := range got {
		assert.Equal(t, vals[2+i], got[i], "slice[%d] == col[off+%d]", i, i)
	}

	// Range-local null count: rows 2..4 have nulls at 2 and 4.
	assert.Equal(t, 2, v.NullCount())

	// Nested slice composes offsets.
	vv, err := v.Slice(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 50}, ViewValues[int64](vv))

	_, err = v.Slice(2, 5)
	assert.Error(t, err)
}

func TestStringColumn(t *testing.T) {
	col, err := FromStrings([]string{"a", "bb", "", "ccc"}, []bool{true, true, false, true})
	require.NoError(t, err)
	defer col.Release()

	assert.Equal(t, String, col.DType())
	assert.Equal(t, 4, col.Size())
	assert.Equal(t, 1, col.NullCount())
	assert.Equal(t, "a", StringAt(col, 0))
	assert.Equal(t, "bb", StringAt(col, 1))
	assert.Equal(t, "ccc", StringAt(col, 3))

	v, err := col.View().Slice(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "bb", ViewStringAt(v, 0))
}

func TestOffsetsMonotonicRejected(t *testing.T) {
	offs, err := FromInt32s([]int32{0, 5, 3}, nil)
	require.NoError(t, err)
	chars, err := memory.NewBuffer(5, nil, nil)
	require.NoError(t, err)

	_, err = New(String, 2, chars, nil, 0, offs)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestConcatInt64(t *testing.T) {
	a, err := FromInt64s([]int64{1, 2}, []bool{true, false})
	require.NoError(t, err)
	b, err := FromInt64s([]int64{3, 4, 5}, nil)
	require.NoError(t, err)
	c, err := FromInt64s([]int64{6}, []bool{false})
	require.NoError(t, err)

	out, err := Concat([]*Column{a, b, c}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 6, out.Size())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, Values[int64](out))
	assert.Equal(t, a.NullCount()+b.NullCount()+c.NullCount(), out.NullCount())
	assert.False(t, out.IsValid(1))
	assert.True(t, out.IsValid(2))
	assert.False(t, out.IsValid(5))
}

func TestConcatStrings(t *testing.T) {
	a, err := FromStrings([]string{"x", "yy"}, nil)
	require.NoError(t, err)
	b, err := FromStrings([]string{"zzz"}, []bool{false})
	require.NoError(t, err)

	out, err := Concat([]*Column{a, b}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 3, out.Size())
	assert.Equal(t, "x", StringAt(out, 0))
	assert.Equal(t, "yy", StringAt(out, 1))
	assert.Equal(t, 1, out.NullCount())

	offs := Values[int32](out.Child(0))
	for i := 1; i < len(offs); i++ {
		assert.GreaterOrEqual(t, offs[i], offs[i-1], "offsets globally monotonic")
	}
}

func TestConcatTypeMismatch(t *testing.T) {
	a, err := FromInt64s([]int64{1}, nil)
	require.NoError(t, err)
	b, err := FromFloat64s([]float64{1.0}, nil)
	require.NoError(t, err)

	_, err = Concat([]*Column{a, b}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestDispatchUnsupported(t *testing.T) {
	table := NewDispatchTable("negate").
		Register(Int64, func(args ...interface{}) (interface{}, error) {
			return -args[0].(int64), nil
		})

	out, err := table.Dispatch(Int64, int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), out)

	_, err = table.Dispatch(String, "x")
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
	assert.Contains(t, err.Error(), "negate")
	assert.Contains(t, err.Error(), "string")
}

func TestDoubleDispatch(t *testing.T) {
	table := NewDoubleDispatchTable("add").
		Register(Int64, Float64, func(args ...interface{}) (interface{}, error) {
			return float64(args[0].(int64)) + args[1].(float64), nil
		})

	out, err := table.Dispatch(Int64, Float64, int64(2), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, out)

	_, err = table.Dispatch(Float64, Int64, 0.5, int64(2))
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}

func TestMutableSet(t *testing.T) {
	col, err := FromInt64s([]int64{1, 2, 3}, []bool{true, true, true})
	require.NoError(t, err)
	defer col.Release()

	m := MutableOf(col)
	require.NoError(t, Set[int64](m, 1, 42))
	assert.Equal(t, []int64{1, 42, 3}, Values[int64](col))

	require.NoError(t, m.SetValid(2, false))
	assert.Equal(t, 1, col.NullCount())

	assert.Error(t, Set[int64](m, 9, 0))
}

func TestBitmaskRanges(t *testing.T) {
	mask := make([]byte, 4)
	for _, i := range []int{0, 3, 8, 9, 21, 30} {
		SetBit(mask, i)
	}
	assert.Equal(t, 6, CountSetBits(mask, 0, 32))
	assert.Equal(t, 3, CountSetBits(mask, 1, 9)) // bits 1..9: 3, 8, 9
	assert.Equal(t, 0, CountSetBits(mask, 10, 11))

	dst := make([]byte, 4)
	CopyBits(dst, 5, mask, 0, 16)
	assert.True(t, GetBit(dst, 5))   // src bit 0
	assert.True(t, GetBit(dst, 8))   // src bit 3
	assert.True(t, GetBit(dst, 13))  // src bit 8
	assert.False(t, GetBit(dst, 6))  // src bit 1
}

func TestScalar(t *testing.T) {
	s := Int64Scalar(Int64, 7)
	v, err := s.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	n := NullScalar(Int64)
	assert.False(t, n.IsValid())
	_, err = n.Int64()
	assert.Error(t, err)

	str := StringScalar("hi")
	got, err := str.String()
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestTableInvariants(t *testing.T) {
	a, err := FromInt64s([]int64{1, 2}, nil)
	require.NoError(t, err)
	b, err := FromStrings([]string{"x", "y"}, nil)
	require.NoError(t, err)

	tbl, err := NewTable([]string{"a", "b"}, []*Column{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, 2, tbl.NumColumns())
	assert.Equal(t, a, tbl.ColumnByName("a"))

	tv := tbl.View()
	sel, err := tv.Select([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, 1, sel.NumColumns())

	_, err = tv.Select([]string{"nope"})
	assert.Error(t, err)

	c, err := FromInt64s([]int64{1}, nil)
	require.NoError(t, err)
	_, err = NewTable([]string{"a", "c"}, []*Column{a, c})
	assert.Error(t, err)
}
