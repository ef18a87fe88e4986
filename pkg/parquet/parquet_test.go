package parquet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
)

func TestCompactFieldHeaderDelta(t *testing.T) {
	var w cpWriter
	s := w.beginStruct()
	s.I32(1, 7)
	s.I32(3, -9)
	s.I64(40, 1 << 40) // delta > 15 forces the absolute id form
	s.String(41, "hi")
	s.Bool(42, true)
	s.Bool(43, false)
	s.End()

	var a, c int32
	var d int64
	var e string
	var f, g bool
	err := newCpReader(w.bytes()).readStruct("test", []cpField{
		{1, i32Field(&a)},
		{3, i32Field(&c)},
		{40, i64Field(&d)},
		{41, stringField(&e)},
		{42, boolField(&f)},
		{43, boolField(&g)},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(7), a)
	assert.Equal(t, int32(-9), c)
	assert.Equal(t, int64(1<<40), d)
	assert.Equal(t, "hi", e)
	assert.True(t, f)
	assert.False(t, g)
}

func TestCompactSkipUnknownFields(t *testing.T) {
	var w cpWriter
	s := w.beginStruct()
	s.I32(1, 5)
	// Unknown nested struct with a list inside.
	s.StructField(2, func(inner *structWriter) {
		inner.ListHeader(1, 3, fldI32)
		inner.w.putVarint(1)
		inner.w.putVarint(2)
		inner.w.putVarint(3)
		inner.String(2, "nested")
	})
	s.String(9, "kept")
	s.End()

	var a int32
	var b string
	err := newCpReader(w.bytes()).readStruct("test", []cpField{
		{1, i32Field(&a)},
		{9, stringField(&b)},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(5), a)
	assert.Equal(t, "kept", b)
}

func TestLevelsRoundTrip(t *testing.T) {
	levels := make([]bool, 1000)
	for i := range levels {
		levels[i] = i%3 != 0
	}
	enc := encodeLevels1(levels)
	dec, err := decodeLevels1(enc, len(levels))
	require.NoError(t, err)
	assert.Equal(t, levels, dec)
}

func TestLevelsRLERun(t *testing.T) {
	// An RLE run of 10 ones followed by a bit-packed run of 3 values.
	data := []byte{10 << 1, 0x01, (1 << 1) | 1, 0b00000101}
	dec, err := decodeLevels1(data, 13)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.True(t, dec[i])
	}
	assert.Equal(t, []bool{true, false, true}, dec[10:])
}

func TestWalkSchemaLevels(t *testing.T) {
	// message { optional group s { repeated int32 x } }
	md := &FileMetaData{
		Schema: []SchemaElement{
			{Name: "schema", NumChildren: 1, RepetitionType: RepRequired},
			{Name: "s", NumChildren: 1, RepetitionType: RepOptional},
			{Name: "x", Type: TypeInt32, RepetitionType: RepRepeated, HasType: true},
		},
	}
	require.NoError(t, initSchema(md))
	assert.Equal(t, 0, md.Schema[0].MaxDef)
	assert.Equal(t, 1, md.Schema[1].MaxDef)
	assert.Equal(t, 0, md.Schema[1].MaxRep)
	assert.Equal(t, 2, md.Schema[2].MaxDef)
	assert.Equal(t, 1, md.Schema[2].MaxRep)
	assert.Equal(t, 1, md.Schema[2].Parent)
}

func TestBindColumnsWrapSearch(t *testing.T) {
	md := &FileMetaData{
		Schema: []SchemaElement{
			{Name: "schema", NumChildren: 3},
			{Name: "a", Type: TypeInt32, HasType: true},
			{Name: "b", Type: TypeInt32, HasType: true},
			{Name: "c", Type: TypeInt32, HasType: true},
		},
		RowGroups: []RowGroup{{
			Columns: []ColumnChunk{
				{MetaData: ColumnChunkMetaData{PathInSchema: []string{"c"}}},
				{MetaData: ColumnChunkMetaData{PathInSchema: []string{"a"}}},
			},
		}},
	}
	require.NoError(t, initSchema(md))
	assert.Equal(t, 3, md.RowGroups[0].Columns[0].SchemaIdx)
	assert.Equal(t, 1, md.RowGroups[0].Columns[1].SchemaIdx)
}

func makeTable(t *testing.T) *column.Table {
	t.Helper()
	ints, err := column.FromInt64s([]int64{10, 0, 30}, []bool{true, false, true})
	require.NoError(t, err)
	f64s, err := column.FromFloat64s([]float64{1.5, 2.5, -3.5}, nil)
	require.NoError(t, err)
	strs, err := column.FromStrings([]string{"alpha", "", "gamma"}, []bool{true, false, true})
	require.NoError(t, err)
	bools, err := column.FromBools([]bool{true, false, true}, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable(
		[]string{"i", "f", "s", "b"},
		[]*column.Column{ints, f64s, strs, bools})
	require.NoError(t, err)
	return tbl
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

func TestRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecUncompressed, CodecSnappy, CodecZstd} {
		opts := DefaultWriterOptions()
		opts.Codec = codec
		data := writeTestFile(t, opts, makeTable(t))
		assert.Equal(t, "PAR1", string(data[:4]))
		assert.Equal(t, "PAR1", string(data[len(data)-4:]))

		r, err := NewReader(iocore.NewBufferSource(data), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), r.NumRows())
		assert.Equal(t, []string{"i", "f", "s", "b"}, r.Schema())

		out, err := r.Read(context.Background())
		require.NoError(t, err)

		ints := out.ColumnByName("i")
		assert.Equal(t, []int64{10, 0, 30}, column.Values[int64](ints))
		assert.False(t, ints.IsValid(1))

		assert.Equal(t, []float64{1.5, 2.5, -3.5}, column.Values[float64](out.ColumnByName("f")))

		strs := out.ColumnByName("s")
		assert.Equal(t, "alpha", column.StringAt(strs, 0))
		assert.False(t, strs.IsValid(1))
		assert.Equal(t, "gamma", column.StringAt(strs, 2))

		bools := out.ColumnByName("b")
		assert.Equal(t, []uint8{1, 0, 1}, column.Values[uint8](bools))
		out.Release()
	}
}

func TestMultipleRowGroups(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t), makeTable(t))
	r, err := NewReader(iocore.NewBufferSource(data), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.NumRows())
	assert.Len(t, r.md.RowGroups, 2)

	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []int64{10, 0, 30, 10, 0, 30}, column.Values[int64](out.ColumnByName("i")))
	assert.Equal(t, 2, out.ColumnByName("i").NullCount())
}

func TestColumnSelection(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	opts := &ReaderOptions{Columns: []string{"s", "i"}}
	r, err := NewReader(iocore.NewBufferSource(data), opts)
	require.NoError(t, err)

	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, 2, out.NumColumns())
	assert.Equal(t, "s", out.Name(0))
	assert.Equal(t, "i", out.Name(1))

	opts = &ReaderOptions{Columns: []string{"nope"}}
	r, err = NewReader(iocore.NewBufferSource(data), opts)
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsLogic(err))
}

func TestNarrowIntsRoundTrip(t *testing.T) {
	i8, err := column.FromNumeric(column.Int8, []int8{-1, 2, -3}, nil, nil, nil)
	require.NoError(t, err)
	i16, err := column.FromNumeric(column.Int16, []int16{-300, 500, 0}, []bool{true, true, false}, nil, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"i8", "i16"}, []*column.Column{i8, i16})
	require.NoError(t, err)

	data := writeTestFile(t, nil, tbl)
	r, err := NewReader(iocore.NewBufferSource(data), nil)
	require.NoError(t, err)
	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, column.Int8, out.Column(0).DType())
	assert.Equal(t, []int8{-1, 2, -3}, column.Values[int8](out.Column(0)))
	assert.Equal(t, column.Int16, out.Column(1).DType())
	assert.Equal(t, []int16{-300, 500, 0}, column.Values[int16](out.Column(1)))
	assert.False(t, out.Column(1).IsValid(2))
}

func TestTimestampConvertedTypes(t *testing.T) {
	ms, err := column.FromNumeric(column.TimestampMillis, []int64{1_000, 2_000}, nil, nil, nil)
	require.NoError(t, err)
	tbl, err := column.NewTable([]string{"ts"}, []*column.Column{ms})
	require.NoError(t, err)

	data := writeTestFile(t, nil, tbl)
	r, err := NewReader(iocore.NewBufferSource(data), nil)
	require.NoError(t, err)
	out, err := r.Read(context.Background())
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, column.TimestampMillis, out.Column(0).DType())
	assert.Equal(t, []int64{1_000, 2_000}, column.Values[int64](out.Column(0)))
}

func TestKeyValueMetadata(t *testing.T) {
	opts := DefaultWriterOptions()
	opts.Metadata = map[string]string{"pipeline": "etl-7"}
	data := writeTestFile(t, opts, makeTable(t))

	r, err := NewReader(iocore.NewBufferSource(data), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pipeline": "etl-7"}, r.Metadata())
	assert.Equal(t, "stratum", r.md.CreatedBy)
}

func TestBadMagicRejected(t *testing.T) {
	_, err := NewReader(iocore.NewBufferSource([]byte("NOTPARQUETDATA")), nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))

	data := writeTestFile(t, nil, makeTable(t))
	data[len(data)-1] = 'X'
	_, err = NewReader(iocore.NewBufferSource(data), nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestFooterLengthBoundsChecked(t *testing.T) {
	data := writeTestFile(t, nil, makeTable(t))
	// Inflate the footer length past the file size.
	data[len(data)-8] = 0xff
	data[len(data)-7] = 0xff
	data[len(data)-6] = 0xff
	data[len(data)-5] = 0x7f
	_, err := NewReader(iocore.NewBufferSource(data), nil)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestSkipDepthBounded(t *testing.T) {
	// 12 nested struct field headers, deeper than the skip bound.
	var buf []byte
	for i := 0; i < 12; i++ {
		buf = append(buf, 0x1c)
	}
	buf = append(buf, make([]byte, 13)...)

	err := newCpReader(buf).skip(fldStruct, 0)
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}
