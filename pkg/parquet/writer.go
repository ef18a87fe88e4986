package parquet

import (
	"encoding/binary"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/metrics"
)

// WriterOptions controls page compression and file metadata.
type WriterOptions struct {
	// Codec compresses data pages; supported values are CodecUncompressed,
	// CodecSnappy and CodecZstd.
	Codec Codec
	// Metadata is written as file-level key-value metadata.
	Metadata map[string]string
	// CreatedBy overrides the footer's creator string.
	CreatedBy string
}

// DefaultWriterOptions returns snappy page compression.
func DefaultWriterOptions() *WriterOptions {
	return &WriterOptions{Codec: CodecSnappy, CreatedBy: "stratum"}
}

// Writer encodes tables into one file. Each WriteTable call produces one
// row group; all tables must share the first table's schema.
type Writer struct {
	sink iocore.DataSink
	opts WriterOptions
	log  *zap.Logger

	names  []string
	dtypes []column.DataType

	rowGroups []RowGroup
	totalRows int64

	headerWritten bool
	closed        bool
}

// NewWriter creates a writer over a sink.
func NewWriter(sink iocore.DataSink, opts *WriterOptions) *Writer {
	if opts == nil {
		opts = DefaultWriterOptions()
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = "stratum"
	}
	return &Writer{
		sink: sink,
		opts: *opts,
		log:  logger.Get().With(zap.String("format", "parquet")),
	}
}

// WriteTable writes a table's rows as one row group.
func (w *Writer) WriteTable(tv column.TableView) error {
	if w.closed {
		return errors.New(errors.ErrorTypeLogic, "writer is closed")
	}
	if err := w.bindSchema(tv); err != nil {
		return err
	}
	if !w.headerWritten {
		if err := w.sink.Write([]byte(parquetMagic)); err != nil {
			return err
		}
		w.headerWritten = true
	}

	timer := metrics.NewTimer()
	rg := RowGroup{NumRows: int64(tv.NumRows())}
	for c := 0; c < tv.NumColumns(); c++ {
		chunk, err := w.writeChunk(tv.Column(c), w.names[c])
		if err != nil {
			return err
		}
		rg.TotalByteSize += chunk.MetaData.TotalUncompressedSize
		rg.Columns = append(rg.Columns, chunk)
		metrics.BytesWritten.WithLabelValues("parquet").Add(float64(chunk.MetaData.TotalCompressedSize))
	}
	w.rowGroups = append(w.rowGroups, rg)
	w.totalRows += int64(tv.NumRows())
	metrics.RowsWritten.WithLabelValues("parquet").Add(float64(tv.NumRows()))
	metrics.EncodeDuration.WithLabelValues("parquet").Observe(timer.Stop().Seconds())
	return nil
}

// Close writes the footer, its length and the trailing magic.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.headerWritten {
		if err := w.sink.Write([]byte(parquetMagic)); err != nil {
			return err
		}
	}

	md := FileMetaData{
		Version:   1,
		Schema:    w.buildSchema(),
		NumRows:   w.totalRows,
		RowGroups: w.rowGroups,
		CreatedBy: w.opts.CreatedBy,
	}
	keys := make([]string, 0, len(w.opts.Metadata))
	for k := range w.opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		md.KeyValueMetadata = append(md.KeyValueMetadata, KeyValue{Key: k, Value: w.opts.Metadata[k]})
	}

	var body cpWriter
	md.encode(&body)
	footer := body.bytes()
	if err := w.sink.Write(footer); err != nil {
		return err
	}
	var tail [8]byte
	binary.LittleEndian.PutUint32(tail[:4], uint32(len(footer)))
	copy(tail[4:], parquetMagic)
	if err := w.sink.Write(tail[:]); err != nil {
		return err
	}

	w.log.Info("file written",
		zap.Int64("rows", w.totalRows),
		zap.Int("rowGroups", len(w.rowGroups)),
		zap.Int64("bytes", w.sink.BytesWritten()))
	return w.sink.Close()
}

func (w *Writer) bindSchema(tv column.TableView) error {
	if w.names == nil {
		w.names = append([]string(nil), tv.Names()...)
		w.dtypes = make([]column.DataType, tv.NumColumns())
		for i := 0; i < tv.NumColumns(); i++ {
			w.dtypes[i] = tv.Column(i).DType()
			if _, _, err := physicalOf(w.dtypes[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if tv.NumColumns() != len(w.names) {
		return errors.Newf(errors.ErrorTypeLogic,
			"table has %d columns, writer bound to %d", tv.NumColumns(), len(w.names))
	}
	for i := 0; i < tv.NumColumns(); i++ {
		if tv.Column(i).DType() != w.dtypes[i] {
			return errors.Newf(errors.ErrorTypeLogic,
				"column %d is %s, writer bound to %s", i, tv.Column(i).DType(), w.dtypes[i])
		}
	}
	return nil
}

// physicalOf maps a column type to its storage type and annotation.
func physicalOf(dt column.DataType) (PhysicalType, ConvertedType, error) {
	switch dt {
	case column.Bool8:
		return TypeBoolean, ConvertedNone, nil
	case column.Int8:
		return TypeInt32, ConvertedInt8, nil
	case column.Int16:
		return TypeInt32, ConvertedInt16, nil
	case column.Int32:
		return TypeInt32, ConvertedNone, nil
	case column.Int64, column.TimestampNanos, column.DurationNanos:
		return TypeInt64, ConvertedNone, nil
	case column.TimestampMillis:
		return TypeInt64, ConvertedTimestampMillis, nil
	case column.TimestampMicros:
		return TypeInt64, ConvertedTimestampMicros, nil
	case column.Float32:
		return TypeFloat, ConvertedNone, nil
	case column.Float64:
		return TypeDouble, ConvertedNone, nil
	case column.String:
		return TypeByteArray, ConvertedUTF8, nil
	}
	return TypeBoolean, ConvertedNone, errors.Newf(errors.ErrorTypeUnsupported, "writing %s columns", dt)
}

// writeChunk encodes one column as a single PLAIN data page.
func (w *Writer) writeChunk(v column.View, name string) (ColumnChunk, error) {
	phys, _, err := physicalOf(v.DType())
	if err != nil {
		return ColumnChunk{}, err
	}

	n := v.Size()
	valid := make([]bool, n)
	for i := range valid {
		valid[i] = v.IsValid(i)
	}

	// Every column is written OPTIONAL, so definition levels are always
	// present even when no row is null.
	var page []byte
	levels := encodeLevels1(valid)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(levels)))
	page = append(page, lenBuf[:]...)
	page = append(page, levels...)
	vals, err := encodePlain(v, valid, phys)
	if err != nil {
		return ColumnChunk{}, err
	}
	page = append(page, vals...)

	kind, err := codecKind(w.opts.Codec)
	if err != nil {
		return ColumnChunk{}, err
	}
	compressed := page
	if kind != compression.None {
		codec, err := compression.NewCodec(kind)
		if err != nil {
			return ColumnChunk{}, err
		}
		compressed, err = codec.Compress(page)
		if err != nil {
			return ColumnChunk{}, err
		}
	}

	defEnc := EncodingRLE
	ph := PageHeader{
		Type:                 PageData,
		UncompressedPageSize: int32(len(page)),
		CompressedPageSize:   int32(len(compressed)),
		DataPage: &DataPageHeader{
			NumValues:               int32(n),
			Encoding:                EncodingPlain,
			DefinitionLevelEncoding: defEnc,
			RepetitionLevelEncoding: EncodingRLE,
		},
	}
	var phBody cpWriter
	ph.encode(&phBody)

	offset := w.sink.BytesWritten()
	if err := w.sink.Write(phBody.bytes()); err != nil {
		return ColumnChunk{}, err
	}
	if err := w.sink.Write(compressed); err != nil {
		return ColumnChunk{}, err
	}

	return ColumnChunk{
		FileOffset: offset,
		MetaData: ColumnChunkMetaData{
			Type:                  phys,
			Encodings:             []Encoding{EncodingPlain, EncodingRLE},
			PathInSchema:          []string{name},
			Codec:                 w.opts.Codec,
			NumValues:             int64(n),
			TotalUncompressedSize: int64(len(phBody.bytes()) + len(page)),
			TotalCompressedSize:   int64(len(phBody.bytes()) + len(compressed)),
			DataPageOffset:        offset,
		},
	}, nil
}

// encodePlain emits the non-null values in PLAIN encoding.
func encodePlain(v column.View, valid []bool, phys PhysicalType) ([]byte, error) {
	var out []byte
	switch phys {
	case TypeBoolean:
		vals := column.ViewValues[uint8](v)
		var cur byte
		bit := 0
		for i := range valid {
			if !valid[i] {
				continue
			}
			if vals[i] != 0 {
				cur |= 1 << (bit % 8)
			}
			bit++
			if bit%8 == 0 {
				out = append(out, cur)
				cur = 0
			}
		}
		if bit%8 != 0 {
			out = append(out, cur)
		}

	case TypeByteArray:
		for i := range valid {
			if !valid[i] {
				continue
			}
			s := column.ViewStringAt(v, i)
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
			out = append(out, lenBuf[:]...)
			out = append(out, s...)
		}

	case TypeInt32:
		appendWord := func(x uint32) {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], x)
			out = append(out, b[:]...)
		}
		switch v.DType() {
		case column.Int8:
			vals := column.ViewValues[int8](v)
			for i := range valid {
				if valid[i] {
					appendWord(uint32(int32(vals[i])))
				}
			}
		case column.Int16:
			vals := column.ViewValues[int16](v)
			for i := range valid {
				if valid[i] {
					appendWord(uint32(int32(vals[i])))
				}
			}
		default:
			vals := column.ViewValues[int32](v)
			for i := range valid {
				if valid[i] {
					appendWord(uint32(vals[i]))
				}
			}
		}

	case TypeInt64:
		vals := column.ViewValues[int64](v)
		for i := range valid {
			if valid[i] {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], uint64(vals[i]))
				out = append(out, b[:]...)
			}
		}

	case TypeFloat:
		vals := column.ViewValues[float32](v)
		for i := range valid {
			if valid[i] {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], math.Float32bits(vals[i]))
				out = append(out, b[:]...)
			}
		}

	case TypeDouble:
		vals := column.ViewValues[float64](v)
		for i := range valid {
			if valid[i] {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], math.Float64bits(vals[i]))
				out = append(out, b[:]...)
			}
		}

	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupported, "physical type %d", phys)
	}
	return out, nil
}

// buildSchema emits the root element followed by one leaf per column.
func (w *Writer) buildSchema() []SchemaElement {
	out := make([]SchemaElement, len(w.names)+1)
	out[0] = SchemaElement{Name: "schema", NumChildren: int32(len(w.names)), Parent: -1}
	for i, name := range w.names {
		phys, conv, _ := physicalOf(w.dtypes[i])
		out[i+1] = SchemaElement{
			Type:           phys,
			RepetitionType: RepOptional,
			Name:           name,
			ConvertedType:  conv,
			HasType:        true,
			Parent:         0,
		}
	}
	return out
}
