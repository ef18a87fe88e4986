// Package testutil provides column and table fixtures for tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/stratumdb/stratum/pkg/column"
)

// TestLogger creates a logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// Int64Column builds an int64 column; a nil valid slice means no nulls.
func Int64Column(t *testing.T, vals []int64, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromInt64s(vals, valid)
	require.NoError(t, err)
	return c
}

// Float64Column builds a float64 column.
func Float64Column(t *testing.T, vals []float64, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromFloat64s(vals, valid)
	require.NoError(t, err)
	return c
}

// StringColumn builds a string column.
func StringColumn(t *testing.T, vals []string, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromStrings(vals, valid)
	require.NoError(t, err)
	return c
}

// BoolColumn builds a bool8 column.
func BoolColumn(t *testing.T, vals []bool, valid []bool) *column.Column {
	t.Helper()
	c, err := column.FromBools(vals, valid)
	require.NoError(t, err)
	return c
}

// Table assembles named columns into a table.
func Table(t *testing.T, names []string, cols []*column.Column) *column.Table {
	t.Helper()
	tbl, err := column.NewTable(names, cols)
	require.NoError(t, err)
	return tbl
}

// RequireColumnsEqual asserts two columns agree on type, length, null
// placement and the values of non-null rows.
func RequireColumnsEqual(t *testing.T, want, got *column.Column) {
	t.Helper()
	require.Equal(t, want.DType(), got.DType(), "column type")
	require.Equal(t, want.Size(), got.Size(), "row count")
	for i := 0; i < want.Size(); i++ {
		require.Equal(t, want.IsValid(i), got.IsValid(i), "validity at row %d", i)
		if !want.IsValid(i) {
			continue
		}
		if want.DType() == column.String {
			require.Equal(t, column.StringAt(want, i), column.StringAt(got, i), "value at row %d", i)
			continue
		}
		w := want.Data().Bytes()
		g := got.Data().Bytes()
		width := column.SizeOf(want.DType())
		require.Equal(t, w[i*width:(i+1)*width], g[i*width:(i+1)*width], "value at row %d", i)
	}
}

// RequireTablesEqual asserts two tables agree column by column.
func RequireTablesEqual(t *testing.T, want, got *column.Table) {
	t.Helper()
	require.Equal(t, want.Names(), got.Names(), "column names")
	for i := 0; i < want.NumColumns(); i++ {
		RequireColumnsEqual(t, want.Column(i), got.Column(i))
	}
}
