package orc

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 63, -64, 64, -65, 1 << 20, -(1 << 20),
		math.MaxInt64, math.MinInt64}
	var w pbWriter
	for _, v := range cases {
		w.putVarint(v)
	}
	r := newPbReader(w.bytes())
	for _, want := range cases {
		got, err := r.readVarint()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, r.remaining())
}

func TestUvarintTruncated(t *testing.T) {
	r := newPbReader([]byte{0x80, 0x80})
	_, err := r.readUvarint()
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestReadStructSkipsUnknownFields(t *testing.T) {
	var w pbWriter
	w.fieldU64(1, 42)
	w.fieldString(99, "future field")
	w.fieldU64(70, 7)
	w.fieldFixed64(71, 123)
	w.fieldU64(5, 9)

	var a, b uint64
	err := newPbReader(w.bytes()).readStruct("test", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { a, err = r.readUvarint(); return }},
		{5, wireVarint, func(r *pbReader) (err error) { b, err = r.readUvarint(); return }},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), a)
	assert.Equal(t, uint64(9), b)
}

func TestReadStructWireTypeMismatch(t *testing.T) {
	var w pbWriter
	w.fieldString(1, "oops")
	err := newPbReader(w.bytes()).readStruct("test", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { _, err = r.readUvarint(); return }},
	})
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestPostScriptRoundTrip(t *testing.T) {
	ps := PostScript{
		FooterLength:         120,
		Compression:          compression.Zstd,
		CompressionBlockSize: 256 << 10,
		Version:              []uint64{0, 12},
		MetadataLength:       33,
		Magic:                "ORC",
	}
	var w pbWriter
	ps.encode(&w)

	var got PostScript
	require.NoError(t, got.decode(newPbReader(w.bytes())))
	assert.Equal(t, ps, got)
}

func TestSectionFramingRoundTrip(t *testing.T) {
	payload := make([]byte, 100_000)
	for i := range payload {
		payload[i] = byte(i % 17)
	}
	for _, kind := range []compression.Kind{compression.None, compression.Snappy, compression.Zstd} {
		sec, err := encodeSection(payload, kind, 16<<10)
		require.NoError(t, err)
		out, err := decodeSection(sec, kind, 16<<10, len(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	}
}

func TestSectionFramingStoresIncompressible(t *testing.T) {
	// A tiny high-entropy payload does not shrink; the block must be
	// stored raw with the uncompressed bit set.
	payload := []byte{0x7f, 0x13, 0xe9, 0x02, 0xaa}
	sec, err := encodeSection(payload, compression.Snappy, 16<<10)
	require.NoError(t, err)
	_, uncompressed := parseBlockHeader(sec)
	assert.True(t, uncompressed)

	out, err := decodeSection(sec, compression.Snappy, 16<<10, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestSelectStripesIntersection(t *testing.T) {
	stripes := []StripeInformation{
		{NumberOfRows: 100},
		{NumberOfRows: 100},
		{NumberOfRows: 100},
	}
	assert.Equal(t, []int{0, 1, 2}, selectStripes(stripes, 0, -1))
	assert.Equal(t, []int{0}, selectStripes(stripes, 0, 100))
	assert.Equal(t, []int{1}, selectStripes(stripes, 100, 100))
	assert.Equal(t, []int{0, 1}, selectStripes(stripes, 99, 2))
	assert.Equal(t, []int{2}, selectStripes(stripes, 250, -1))
	assert.Nil(t, selectStripes(stripes, 300, -1))
	assert.Nil(t, selectStripes(stripes, 0, 0))
}

func writeTestFile(t *testing.T, opts *WriterOptions, tables ...*column.Table) []byte {
	t.Helper()
	sink := iocore.NewBufferSink()
	w := NewWriter(sink, opts)
	for _, tbl := range tables {
		require.NoError(t, w.WriteTable(tbl.View()))
	}
	require.NoError(t, w.Close())
	return sink.Bytes()
}

func makeTable(t *testing.T) *column.Table {
	t.Helper()
	ints, err := column.FromInt64s([]int64{1, 2, 0, 4}, []bool{true, true, false, true})
	require.NoError(t, err)
	strs, err := column.FromStrings([]string{"a", "bb", "ccc", ""}, []bool{true, true, true, false})
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"ints", "strs"}, []*column.Column{ints, strs})
	require.NoError(t, err)
	return tbl
}

func TestRoundTripSnappy(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	assert.Equal(t, "ORC", string(data[:3]))

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.NumRows())
	assert.Equal(t, []string{"ints", "strs"}, r.Schema())

	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 4, out.NumRows())
	ints := out.ColumnByName("ints")
	assert.Equal(t, []int64{1, 2, 0, 4}, column.Values[int64](ints))
	assert.False(t, ints.IsValid(2))
	assert.Equal(t, 1, ints.NullCount())

	strs := out.ColumnByName("strs")
	assert.Equal(t, "a", column.StringAt(strs, 0))
	assert.Equal(t, "bb", column.StringAt(strs, 1))
	assert.Equal(t, "ccc", column.StringAt(strs, 2))
	assert.False(t, strs.IsValid(3))
}

func TestRoundTripAllCompressionKinds(t *testing.T) {
	for _, kind := range []compression.Kind{compression.None, compression.Zlib,
		compression.Snappy, compression.Lz4, compression.Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			opts := DefaultWriterOptions()
			opts.Compression = kind
			data := writeTestFile(t, opts, makeTable(t))

			r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
			require.NoError(t, err)
			out, err := r.Read(context.Background())
			require.NoError(t, err)
			defer out.Release()
			assert.Equal(t, []int64{1, 2, 0, 4}, column.Values[int64](out.ColumnByName("ints")))
		})
	}
}

func TestColumnSelectionAndRowRange(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	opts := DefaultReaderOptions()
	opts.Columns = []string{"strs"}
	opts.RowStart = 1
	opts.RowCount = 2

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, opts)
	require.NoError(t, err)
	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 1, out.NumColumns())
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, "bb", column.StringAt(out.Column(0), 0))
	assert.Equal(t, "ccc", column.StringAt(out.Column(0), 1))
}

func TestUnknownColumnRejected(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	opts := DefaultReaderOptions()
	opts.Columns = []string{"nope"}

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, opts)
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestMultipleSourcesConcatenate(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	srcs := []iocore.Datasource{iocore.NewBufferSource(data), iocore.NewBufferSource(data)}

	r, err := NewReader(srcs, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), r.NumRows())

	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, 8, out.NumRows())
	assert.Equal(t, []int64{1, 2, 0, 4, 1, 2, 0, 4}, column.Values[int64](out.ColumnByName("ints")))
}

func TestMismatchedSourcesRejected(t *testing.T) {
	a := writeTestFile(t, nil, makeTable(t))

	floats, err := column.FromFloat64s([]float64{1.5}, nil)
	require.NoError(t, err)
	other, err := column.NewTable([]string{"f"}, []*column.Column{floats})
	require.NoError(t, err)
	b := writeTestFile(t, nil, other)

	_, err = NewReader([]iocore.Datasource{iocore.NewBufferSource(a), iocore.NewBufferSource(b)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestDictionaryEncodingDecision(t *testing.T) {
	repeats := make([]string, 5000)
	for i := range repeats {
		repeats[i] = "value-" + strconv.Itoa(i%3)
	}
	uniques := make([]string, 5000)
	for i := range uniques {
		uniques[i] = "unique-string-number-" + strconv.Itoa(i)
	}

	check := func(vals []string, want EncodingKind) {
		col, err := column.FromStrings(vals, nil)
		require.NoError(t, err)
		tbl, err := column.NewTable([]string{"s"}, []*column.Column{col})
		require.NoError(t, err)
		data := writeTestFile(t, nil, tbl)

		m, err := parseFileMetadata(iocore.NewBufferSource(data))
		require.NoError(t, err)
		require.Len(t, m.footer.Stripes, 1)
		sf, err := m.readStripeFooter(&m.footer.Stripes[0])
		require.NoError(t, err)
		assert.Equal(t, want, sf.Columns[1].Kind)

		// Both encodings must decode to the same values.
		r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
		require.NoError(t, err)
		out, err := r.Read(context.Background())
		require.NoError(t, err)
		defer out.Release()
		for i := 0; i < 100; i++ {
			assert.Equal(t, vals[i], column.StringAt(out.Column(0), i))
		}
	}
	check(repeats, EncodingDictionary)
	check(uniques, EncodingDirect)
}

func TestStripePartitioningDeterministic(t *testing.T) {
	vals := make([]int64, 25_000)
	for i := range vals {
		vals[i] = int64(i)
	}
	col, err := column.FromInt64s(vals, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"v"}, []*column.Column{col})
	require.NoError(t, err)

	opts := DefaultWriterOptions()
	opts.StripeSizeBytes = 40_000 // 5000 rows of int64 per stripe
	a := writeTestFile(t, opts, tbl)
	b := writeTestFile(t, opts, tbl)
	assert.Equal(t, a, b)

	m, err := parseFileMetadata(iocore.NewBufferSource(a))
	require.NoError(t, err)
	assert.Greater(t, len(m.footer.Stripes), 1)
	var total uint64
	for _, s := range m.footer.Stripes {
		total += s.NumberOfRows
	}
	assert.Equal(t, uint64(25_000), total)

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(a)}, nil)
	require.NoError(t, err)
	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, vals, column.Values[int64](out.Column(0)))
}

func TestColumnStatisticsWritten(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	m, err := parseFileMetadata(iocore.NewBufferSource(data))
	require.NoError(t, err)

	require.Len(t, m.footer.Statistics, 3)
	ints := m.footer.Statistics[1]
	require.NotNil(t, ints.Int)
	assert.Equal(t, int64(1), ints.Int.Minimum)
	assert.Equal(t, int64(4), ints.Int.Maximum)
	assert.Equal(t, int64(7), ints.Int.Sum)
	assert.True(t, ints.HasNull)
	assert.Equal(t, uint64(3), ints.NumberOfValues)

	strs := m.footer.Statistics[2]
	require.NotNil(t, strs.Str)
	assert.Equal(t, "a", strs.Str.Minimum)
	assert.Equal(t, "ccc", strs.Str.Maximum)

	require.Len(t, m.meta.StripeStats, 1)
}

func TestUserMetadataRoundTrip(t *testing.T) {
	opts := DefaultWriterOptions()
	opts.Metadata = map[string]string{"creator": "stratum", "job": "nightly"}
	data := writeTestFile(t, opts, makeTable(t))

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"creator": "stratum", "job": "nightly"}, r.Metadata())
}

func TestTruncatedFileRejected(t *testing.T) {
	_, err := NewReader([]iocore.Datasource{iocore.NewBufferSource([]byte("OR"))}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))

	data := writeTestFile(t, nil, makeTable(t))
	data[len(data)-1] = 0 // postscript length of zero
	_, err = NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestTimestampScaledToNanos(t *testing.T) {
	ts, err := column.FromNumeric(column.TimestampMillis, []int64{1_000, 2_500}, nil, nil, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"ts"}, []*column.Column{ts})
	require.NoError(t, err)
	data := writeTestFile(t, nil, tbl)

	r, err := NewReader([]iocore.Datasource{iocore.NewBufferSource(data)}, nil)
	require.NoError(t, err)
	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()

	col := out.Column(0)
	assert.Equal(t, column.TimestampNanos, col.DType())
	assert.Equal(t, []int64{1_000_000_000, 2_500_000_000}, column.Values[int64](col))
}
