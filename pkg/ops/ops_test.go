package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
)

func intCol(t *testing.T, vals []int64, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromInt64s(vals, valid)
	require.NoError(t, err)
	return c
}

func strCol(t *testing.T, vals []string, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromStrings(vals, valid)
	require.NoError(t, err)
	return c
}

func table(t *testing.T, names []string, cols []*column.Column) *column.Table {
	t.Helper()
	tbl, err := column.NewTable(names, cols)
	require.NoError(t, err)
	return tbl
}

func TestGatherPropagatesNulls(t *testing.T) {
	src := intCol(t, []int64{10, 20, 30, 40}, []bool{true, false, true, true})

	out, err := Gather(src, []int32{3, 1, nullIndex, 0}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 4, out.Size())
	assert.Equal(t, int64(10), column.Values[int64](out)[3])
	assert.Equal(t, int64(40), column.Values[int64](out)[0])
	assert.False(t, out.IsValid(1)) // source row was null
	assert.False(t, out.IsValid(2)) // null index
	assert.Equal(t, 2, out.NullCount())
}

func TestGatherOutOfRange(t *testing.T) {
	src := intCol(t, []int64{1}, nil)
	_, err := Gather(src, []int32{5}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestGatherStrings(t *testing.T) {
	src := strCol(t, []string{"a", "bb", "ccc"}, nil)
	out, err := Gather(src, []int32{2, 0}, nil, nil)
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, "ccc", column.StringAt(out, 0))
	assert.Equal(t, "a", column.StringAt(out, 1))
}

func TestFilter(t *testing.T) {
	tbl := table(t,
		[]string{"v", "s"},
		[]*column.Column{
			intCol(t, []int64{1, 2, 3, 4}, nil),
			strCol(t, []string{"a", "b", "c", "d"}, nil),
		})
	mask, err := column.FromBools([]bool{true, false, true, true}, []bool{true, true, true, false})
	require.NoError(t, err)

	out, err := Filter(tbl, mask, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	// Row 3 passes the value test but its mask row is null.
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, []int64{1, 3}, column.Values[int64](out.ColumnByName("v")))
	assert.Equal(t, "c", column.StringAt(out.ColumnByName("s"), 1))
}

func TestSortStableWithNulls(t *testing.T) {
	tbl := table(t,
		[]string{"k", "tag"},
		[]*column.Column{
			intCol(t, []int64{3, 1, 0, 1, 2}, []bool{true, true, false, true, true}),
			strCol(t, []string{"a", "b", "c", "d", "e"}, nil),
		})

	out, err := SortBy(tbl, []SortKey{{Name: "k", Order: Ascending, Nulls: NullsFirst}}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	tags := out.ColumnByName("tag")
	// Null first, then 1,1 keeping input order (stable), then 2, 3.
	assert.Equal(t, "c", column.StringAt(tags, 0))
	assert.Equal(t, "b", column.StringAt(tags, 1))
	assert.Equal(t, "d", column.StringAt(tags, 2))
	assert.Equal(t, "e", column.StringAt(tags, 3))
	assert.Equal(t, "a", column.StringAt(tags, 4))

	out2, err := SortBy(tbl, []SortKey{{Name: "k", Order: Descending, Nulls: NullsLast}}, nil, nil)
	require.NoError(t, err)
	defer out2.Release()
	tags2 := out2.ColumnByName("tag")
	assert.Equal(t, "a", column.StringAt(tags2, 0))
	assert.Equal(t, "c", column.StringAt(tags2, 4))
}

func TestSortByStringKey(t *testing.T) {
	tbl := table(t,
		[]string{"s"},
		[]*column.Column{strCol(t, []string{"pear", "apple", "fig"}, nil)})
	out, err := SortBy(tbl, []SortKey{{Name: "s"}}, nil, nil)
	require.NoError(t, err)
	defer out.Release()
	s := out.Column(0)
	assert.Equal(t, "apple", column.StringAt(s, 0))
	assert.Equal(t, "fig", column.StringAt(s, 1))
	assert.Equal(t, "pear", column.StringAt(s, 2))
}

func TestGroupByAggregates(t *testing.T) {
	tbl := table(t,
		[]string{"k", "v"},
		[]*column.Column{
			strCol(t, []string{"a", "b", "a", "b", "a"}, nil),
			intCol(t, []int64{1, 10, 2, 0, 3}, []bool{true, true, true, false, true}),
		})

	out, err := GroupBy(tbl, []string{"k"}, []Agg{
		{Column: "v", Op: AggSum},
		{Column: "v", Op: AggMin},
		{Column: "v", Op: AggMax},
		{Column: "v", Op: AggCount},
		{Column: "v", Op: AggMean},
	}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	// First-occurrence group order: a, b.
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, "a", column.StringAt(out.ColumnByName("k"), 0))
	assert.Equal(t, "b", column.StringAt(out.ColumnByName("k"), 1))

	assert.Equal(t, []int64{6, 10}, column.Values[int64](out.ColumnByName("sum_v")))
	assert.Equal(t, []int64{1, 10}, column.Values[int64](out.ColumnByName("min_v")))
	assert.Equal(t, []int64{3, 10}, column.Values[int64](out.ColumnByName("max_v")))
	assert.Equal(t, []int64{3, 1}, column.Values[int64](out.ColumnByName("count_v")))
	assert.Equal(t, []float64{2, 10}, column.Values[float64](out.ColumnByName("mean_v")))
}

func TestGroupByNullKeyIsItsOwnGroup(t *testing.T) {
	tbl := table(t,
		[]string{"k", "v"},
		[]*column.Column{
			intCol(t, []int64{1, 0, 1}, []bool{true, false, true}),
			intCol(t, []int64{5, 7, 9}, nil),
		})
	out, err := GroupBy(tbl, []string{"k"}, []Agg{{Column: "v", Op: AggSum}}, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, []int64{14, 7}, column.Values[int64](out.ColumnByName("sum_v")))
	assert.False(t, out.ColumnByName("k").IsValid(1))
}

func TestInnerJoin(t *testing.T) {
	left := table(t,
		[]string{"id", "x"},
		[]*column.Column{
			intCol(t, []int64{1, 2, 3, 2}, nil),
			strCol(t, []string{"a", "b", "c", "d"}, nil),
		})
	right := table(t,
		[]string{"id", "y"},
		[]*column.Column{
			intCol(t, []int64{2, 4, 2}, nil),
			strCol(t, []string{"p", "q", "r"}, nil),
		})

	out, err := Join(left, right, []string{"id"}, InnerJoin, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	// Left rows 1 and 3 each match right rows 0 and 2.
	require.Equal(t, 4, out.NumRows())
	assert.Equal(t, []int64{2, 2, 2, 2}, column.Values[int64](out.ColumnByName("id")))
	assert.Equal(t, "b", column.StringAt(out.ColumnByName("x"), 0))
	assert.Equal(t, "p", column.StringAt(out.ColumnByName("y"), 0))
	assert.Equal(t, "r", column.StringAt(out.ColumnByName("y"), 1))
	assert.Equal(t, "d", column.StringAt(out.ColumnByName("x"), 2))
}

func TestLeftJoinNullsForMisses(t *testing.T) {
	left := table(t,
		[]string{"id"},
		[]*column.Column{intCol(t, []int64{1, 2}, nil)})
	right := table(t,
		[]string{"id", "y"},
		[]*column.Column{
			intCol(t, []int64{2}, nil),
			intCol(t, []int64{99}, nil),
		})

	out, err := Join(left, right, []string{"id"}, LeftJoin, nil, nil)
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 2, out.NumRows())
	y := out.ColumnByName("y")
	assert.False(t, y.IsValid(0))
	assert.True(t, y.IsValid(1))
	assert.Equal(t, int64(99), column.Values[int64](y)[1])
}

func TestJoinNullKeysNeverMatch(t *testing.T) {
	left := table(t,
		[]string{"id"},
		[]*column.Column{intCol(t, []int64{0, 1}, []bool{false, true})})
	right := table(t,
		[]string{"id", "y"},
		[]*column.Column{
			intCol(t, []int64{0, 1}, []bool{false, true}),
			intCol(t, []int64{7, 8}, nil),
		})

	out, err := Join(left, right, []string{"id"}, InnerJoin, nil, nil)
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, int64(8), column.Values[int64](out.ColumnByName("y"))[0])
}

func TestReductions(t *testing.T) {
	col := intCol(t, []int64{4, 0, 2, 9}, []bool{true, false, true, true})

	s, err := Sum(col)
	require.NoError(t, err)
	v, err := s.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	mn, err := Min(col)
	require.NoError(t, err)
	v, _ = mn.Int64()
	assert.Equal(t, int64(2), v)

	mx, err := Max(col)
	require.NoError(t, err)
	v, _ = mx.Int64()
	assert.Equal(t, int64(9), v)

	mean, err := Mean(col)
	require.NoError(t, err)
	f, err := mean.Float64()
	require.NoError(t, err)
	assert.Equal(t, 5.0, f)

	assert.Equal(t, 3, Count(col))
}

func TestReduceAllNullYieldsNullScalar(t *testing.T) {
	col := intCol(t, []int64{0, 0}, []bool{false, false})
	s, err := Sum(col)
	require.NoError(t, err)
	assert.False(t, s.IsValid())
}

func TestReduceUnsupportedType(t *testing.T) {
	col := strCol(t, []string{"x"}, nil)
	_, err := Sum(col)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
	assert.Contains(t, err.Error(), "sum")
}

func TestStringKernels(t *testing.T) {
	col := strCol(t, []string{"Hello", "WORLD", ""}, []bool{true, true, false})

	lower, err := Lower(col, nil, nil)
	require.NoError(t, err)
	defer lower.Release()
	assert.Equal(t, "hello", column.StringAt(lower, 0))
	assert.Equal(t, "world", column.StringAt(lower, 1))
	assert.False(t, lower.IsValid(2))

	upper, err := Upper(col, nil, nil)
	require.NoError(t, err)
	defer upper.Release()
	assert.Equal(t, "HELLO", column.StringAt(upper, 0))

	has, err := Contains(col, "ell", nil, nil)
	require.NoError(t, err)
	defer has.Release()
	vals := column.Values[uint8](has)
	assert.Equal(t, uint8(1), vals[0])
	assert.Equal(t, uint8(0), vals[1])
	assert.False(t, has.IsValid(2))

	ints := intCol(t, []int64{1}, nil)
	_, err = Lower(ints, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}
