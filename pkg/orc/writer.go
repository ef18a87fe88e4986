package orc

import (
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

// WriterOptions controls stripe sizing, compression and file metadata.
type WriterOptions struct {
	// Compression selects the block codec; None disables framing.
	Compression compression.Kind
	// CompressionBlockSize caps one compression block's payload.
	CompressionBlockSize uint64
	// StripeSizeBytes flushes a stripe once its estimated encoded size
	// reaches this many bytes.
	StripeSizeBytes int64
	// RowIndexStride is the row-group granularity used for dictionary
	// construction, recorded in the footer.
	RowIndexStride int
	// Metadata is written as file-level user metadata.
	Metadata map[string]string
}

// DefaultWriterOptions returns snappy compression with 256 KiB blocks,
// 64 MiB stripes and 10000-row groups.
func DefaultWriterOptions() *WriterOptions {
	return &WriterOptions{
		Compression:          compression.Snappy,
		CompressionBlockSize: 256 << 10,
		StripeSizeBytes:      64 << 20,
		RowIndexStride:       10_000,
	}
}

// Row caps per stripe: files with string columns flush earlier because
// dictionary state grows with distinct values.
const (
	maxStripeRowsWithStrings = 1_000_000
	maxStripeRows            = 5_000_000
)

// Writer encodes tables into one file. Tables may arrive across several
// WriteTable calls; all must share the first table's schema. Views passed
// to WriteTable must stay valid until the rows they carry have been
// flushed, which Close guarantees.
type Writer struct {
	sink iocore.DataSink
	opts WriterOptions
	log  *zap.Logger

	names  []string
	dtypes []column.DataType

	pending      []column.TableView
	pendingRows  int
	pendingBytes int64

	stripes     []StripeInformation
	stripeStats []StripeStatistics
	fileStats   []statsAccum
	totalRows   uint64

	headerWritten bool
	closed        bool
}

// NewWriter creates a writer over a sink.
func NewWriter(sink iocore.DataSink, opts *WriterOptions) *Writer {
	if opts == nil {
		opts = DefaultWriterOptions()
	}
	if opts.CompressionBlockSize == 0 {
		opts.CompressionBlockSize = 256 << 10
	}
	if opts.StripeSizeBytes <= 0 {
		opts.StripeSizeBytes = 64 << 20
	}
	if opts.RowIndexStride <= 0 {
		opts.RowIndexStride = 10_000
	}
	return &Writer{
		sink: sink,
		opts: *opts,
		log:  logger.Get().With(zap.String("format", "orc")),
	}
}

// WriteTable appends a table's rows, flushing stripes whenever the byte
// estimate or the row cap is reached.
func (w *Writer) WriteTable(tv column.TableView) error {
	if w.closed {
		return errors.New(errors.ErrorTypeLogic, "writer is closed")
	}
	if err := w.bindSchema(tv); err != nil {
		return err
	}
	if !w.headerWritten {
		if err := w.sink.Write([]byte(orcMagic)); err != nil {
			return err
		}
		w.headerWritten = true
	}

	w.pending = append(w.pending, tv)
	w.pendingRows += tv.NumRows()
	w.pendingBytes += estimateBytes(tv)

	for w.pendingRows > 0 {
		rows := w.stripeRows()
		if rows > w.pendingRows {
			break
		}
		if err := w.flushStripe(rows); err != nil {
			return err
		}
	}
	return nil
}

// stripeRows derives the row count of the next stripe from the byte target
// and the row cap. The derivation depends only on accumulated input, so
// partitioning is deterministic for a fixed input and fixed thresholds.
func (w *Writer) stripeRows() int {
	rows := w.rowCap()
	if w.pendingRows > 0 {
		perRow := w.pendingBytes / int64(w.pendingRows)
		if perRow < 1 {
			perRow = 1
		}
		byRows := int(w.opts.StripeSizeBytes / perRow)
		if byRows < 1 {
			byRows = 1
		}
		if byRows < rows {
			rows = byRows
		}
	}
	return rows
}

// Close flushes remaining rows, then writes the metadata section, the file
// footer, the postscript and the final length byte.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if !w.headerWritten {
		if err := w.sink.Write([]byte(orcMagic)); err != nil {
			return err
		}
		w.headerWritten = true
	}
	if w.pendingRows > 0 {
		if err := w.flushStripe(w.pendingRows); err != nil {
			return err
		}
	}

	contentLength := w.sink.BytesWritten()

	var meta Metadata
	meta.StripeStats = w.stripeStats
	var metaBody pbWriter
	meta.encode(&metaBody)
	metaSec, err := encodeSection(metaBody.bytes(), w.opts.Compression, w.opts.CompressionBlockSize)
	if err != nil {
		return err
	}
	if err := w.sink.Write(metaSec); err != nil {
		return err
	}

	footer := FileFooter{
		HeaderLength:   uint64(len(orcMagic)),
		ContentLength:  uint64(contentLength),
		Stripes:        w.stripes,
		Types:          w.buildSchema(),
		NumberOfRows:   w.totalRows,
		Statistics:     w.fileStatistics(),
		RowIndexStride: uint64(w.opts.RowIndexStride),
	}
	for _, name := range sortedKeys(w.opts.Metadata) {
		footer.Metadata = append(footer.Metadata, UserMetadataItem{Name: name, Value: []byte(w.opts.Metadata[name])})
	}
	var footerBody pbWriter
	footer.encode(&footerBody)
	footerSec, err := encodeSection(footerBody.bytes(), w.opts.Compression, w.opts.CompressionBlockSize)
	if err != nil {
		return err
	}
	if err := w.sink.Write(footerSec); err != nil {
		return err
	}

	ps := PostScript{
		FooterLength:         uint64(len(footerSec)),
		Compression:          w.opts.Compression,
		CompressionBlockSize: w.opts.CompressionBlockSize,
		Version:              []uint64{0, 12},
		MetadataLength:       uint64(len(metaSec)),
		Magic:                orcMagic,
	}
	var psBody pbWriter
	ps.encode(&psBody)
	psBytes := psBody.bytes()
	if len(psBytes) > 255 {
		return errors.Newf(errors.ErrorTypeInternal, "postscript of %d bytes", len(psBytes))
	}
	if err := w.sink.Write(psBytes); err != nil {
		return err
	}
	if err := w.sink.Write([]byte{byte(len(psBytes))}); err != nil {
		return err
	}

	w.log.Info("file written",
		zap.Uint64("rows", w.totalRows),
		zap.Int("stripes", len(w.stripes)),
		zap.Int64("bytes", w.sink.BytesWritten()))
	return w.sink.Close()
}

func (w *Writer) bindSchema(tv column.TableView) error {
	if w.names == nil {
		w.names = append([]string(nil), tv.Names()...)
		w.dtypes = make([]column.DataType, tv.NumColumns())
		for i := 0; i < tv.NumColumns(); i++ {
			w.dtypes[i] = tv.Column(i).DType()
			if _, err := dtypeToKind(w.dtypes[i]); err != nil {
				return err
			}
		}
		w.fileStats = make([]statsAccum, tv.NumColumns())
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

func (w *Writer) rowCap() int {
	for _, dt := range w.dtypes {
		if dt == column.String {
			return maxStripeRowsWithStrings
		}
	}
	return maxStripeRows
}

// estimateBytes approximates the in-memory size of a view's rows, used only
// for the stripe flush decision.
func estimateBytes(tv column.TableView) int64 {
	var total int64
	rows := tv.NumRows()
	for i := 0; i < tv.NumColumns(); i++ {
		v := tv.Column(i)
		if v.DType() == column.String {
			col := v.Column()
			if col.Size() > 0 {
				total += int64(col.Data().Size()) * int64(rows) / int64(col.Size())
			}
			total += int64(rows) * 4
		} else {
			total += int64(rows) * int64(column.SizeOf(v.DType()))
		}
	}
	return total
}

// takeRows carves the next rows rows off the pending views.
func (w *Writer) takeRows(rows int) []column.TableView {
	var out []column.TableView
	remaining := rows
	for remaining > 0 {
		head := w.pending[0]
		if head.NumRows() <= remaining {
			out = append(out, head)
			remaining -= head.NumRows()
			w.pending = w.pending[1:]
			continue
		}
		use, _ := head.Slice(0, remaining)
		rest, _ := head.Slice(remaining, head.NumRows()-remaining)
		out = append(out, use)
		w.pending[0] = rest
		remaining = 0
	}
	w.pendingRows -= rows
	w.pendingBytes = 0
	for _, tv := range w.pending {
		w.pendingBytes += estimateBytes(tv)
	}
	return out
}

// flushStripe encodes the next rows pending rows as one stripe.
func (w *Writer) flushStripe(rows int) error {
	timer := metrics.NewTimer()
	parts := w.takeRows(rows)
	offset := uint64(w.sink.BytesWritten())

	var streams []StreamInfo
	encodings := make([]ColumnEncoding, len(w.names)+1)
	stats := make([]statsAccum, len(w.names))
	var dataBuf []byte

	for c := range w.names {
		enc, err := w.encodeColumn(c, parts, rows, &stats[c])
		if err != nil {
			return err
		}
		encodings[c+1] = enc.encoding
		for _, s := range enc.streams {
			framed, err := encodeSection(s.data, w.opts.Compression, w.opts.CompressionBlockSize)
			if err != nil {
				return err
			}
			streams = append(streams, StreamInfo{Kind: s.kind, Column: uint64(c + 1), Length: uint64(len(framed))})
			dataBuf = append(dataBuf, framed...)
		}
	}
	if err := w.sink.Write(dataBuf); err != nil {
		return err
	}

	sf := StripeFooter{Streams: streams, Columns: encodings, WriterTimezone: "UTC"}
	var sfBody pbWriter
	sf.encode(&sfBody)
	sfSec, err := encodeSection(sfBody.bytes(), w.opts.Compression, w.opts.CompressionBlockSize)
	if err != nil {
		return err
	}
	if err := w.sink.Write(sfSec); err != nil {
		return err
	}

	w.stripes = append(w.stripes, StripeInformation{
		Offset:       offset,
		IndexLength:  0,
		DataLength:   uint64(len(dataBuf)),
		FooterLength: uint64(len(sfSec)),
		NumberOfRows: uint64(rows),
	})

	ss := StripeStatistics{ColStats: make([]ColumnStatistics, len(w.names)+1)}
	ss.ColStats[0] = ColumnStatistics{NumberOfValues: uint64(rows)}
	for c := range stats {
		ss.ColStats[c+1] = stats[c].toProto()
		w.fileStats[c].merge(&stats[c])
	}
	w.stripeStats = append(w.stripeStats, ss)
	w.totalRows += uint64(rows)

	metrics.RowsWritten.WithLabelValues("orc").Add(float64(rows))
	metrics.BytesWritten.WithLabelValues("orc").Add(float64(len(dataBuf) + len(sfSec)))
	metrics.EncodeDuration.WithLabelValues("orc").Observe(timer.Stop().Seconds())
	w.log.Debug("stripe flushed", zap.Int("rows", rows), zap.Uint64("bytes", uint64(len(dataBuf))))
	return nil
}

// encodedStream is one stream's raw payload before framing.
type encodedStream struct {
	kind StreamKind
	data []byte
}

type encodedColumn struct {
	encoding ColumnEncoding
	streams  []encodedStream
}

func (w *Writer) encodeColumn(c int, parts []column.TableView, rows int, acc *statsAccum) (encodedColumn, error) {
	dt := w.dtypes[c]

	valid := make([]bool, 0, rows)
	hasNulls := false
	for _, tv := range parts {
		v := tv.Column(c)
		for i := 0; i < v.Size(); i++ {
			ok := v.IsValid(i)
			valid = append(valid, ok)
			if !ok {
				hasNulls = true
			}
		}
	}

	var out encodedColumn
	if hasNulls {
		out.streams = append(out.streams, encodedStream{StreamPresent, appendPackedBits(nil, valid)})
		acc.hasNull = true
	}

	if dt == column.String {
		return w.encodeStringColumn(c, parts, valid, hasNulls, out, acc)
	}

	var data []byte
	switch dt {
	case column.Bool8:
		var bits []bool
		for _, tv := range parts {
			v := tv.Column(c)
			vals := column.ViewValues[uint8](v)
			for i := range vals {
				if v.IsValid(i) {
					bits = append(bits, vals[i] != 0)
					acc.addInt(int64(vals[i]))
				}
			}
		}
		data = appendPackedBits(nil, bits)

	case column.Float32:
		for _, tv := range parts {
			v := tv.Column(c)
			vals := column.ViewValues[float32](v)
			for i := range vals {
				if v.IsValid(i) {
					data = appendFixed(data, uint64(math.Float32bits(vals[i])), 4)
					acc.addDouble(float64(vals[i]))
				}
			}
		}

	case column.Float64:
		for _, tv := range parts {
			v := tv.Column(c)
			vals := column.ViewValues[float64](v)
			for i := range vals {
				if v.IsValid(i) {
					data = appendFixed(data, math.Float64bits(vals[i]), 8)
					acc.addDouble(vals[i])
				}
			}
		}

	default:
		scale := timestampScale(dt)
		for _, tv := range parts {
			v := tv.Column(c)
			var err error
			data, err = appendIntValues(data, v, scale, acc)
			if err != nil {
				return out, err
			}
		}
	}
	out.streams = append(out.streams, encodedStream{StreamData, data})
	out.encoding = ColumnEncoding{Kind: EncodingDirect}
	return out, nil
}

// appendIntValues encodes a view's non-null integral values as zigzag
// varints, widened to int64.
func appendIntValues(data []byte, v column.View, scale int64, acc *statsAccum) ([]byte, error) {
	get, err := intGetter(v)
	if err != nil {
		return nil, err
	}
	for i := 0; i < v.Size(); i++ {
		if !v.IsValid(i) {
			continue
		}
		val := get(i) * scale
		data = appendVarint(data, val)
		acc.addInt(val)
	}
	return data, nil
}

func intGetter(v column.View) (func(int) int64, error) {
	switch v.DType() {
	case column.Int8:
		vals := column.ViewValues[int8](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Int16:
		vals := column.ViewValues[int16](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Int32:
		vals := column.ViewValues[int32](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Uint8:
		vals := column.ViewValues[uint8](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Uint16:
		vals := column.ViewValues[uint16](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Uint32:
		vals := column.ViewValues[uint32](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Uint64:
		vals := column.ViewValues[uint64](v)
		return func(i int) int64 { return int64(vals[i]) }, nil
	case column.Int64, column.TimestampSeconds, column.TimestampMillis,
		column.TimestampMicros, column.TimestampNanos, column.DurationNanos, column.Decimal64:
		vals := column.ViewValues[int64](v)
		return func(i int) int64 { return vals[i] }, nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "encoding %s columns", v.DType())
}

// encodeStringColumn chooses between dictionary and direct encoding.
// Dictionaries are built per row group and merged; the dictionary wins only
// when its character count plus the index stream cost is strictly below the
// direct character count.
func (w *Writer) encodeStringColumn(c int, parts []column.TableView, valid []bool, hasNulls bool, out encodedColumn, acc *statsAccum) (encodedColumn, error) {
	vals := make([]string, 0, len(valid))
	for _, tv := range parts {
		v := tv.Column(c)
		for i := 0; i < v.Size(); i++ {
			if v.IsValid(i) {
				s := column.ViewStringAt(v, i)
				vals = append(vals, s)
				acc.addString(s)
			}
		}
	}

	// Per-row-group distinct sets, merged into the stripe dictionary.
	stride := w.opts.RowIndexStride
	dict := make(map[string]struct{})
	for start := 0; start < len(vals); start += stride {
		end := start + stride
		if end > len(vals) {
			end = len(vals)
		}
		group := make(map[string]struct{}, end-start)
		for _, s := range vals[start:end] {
			group[s] = struct{}{}
		}
		for s := range group {
			dict[s] = struct{}{}
		}
	}

	var directChars, dictChars int64
	for _, s := range vals {
		directChars += int64(len(s))
	}
	for s := range dict {
		dictChars += int64(len(s))
	}
	indexCost := int64(len(vals))

	if dictChars+indexCost < directChars {
		entries := make([]string, 0, len(dict))
		for s := range dict {
			entries = append(entries, s)
		}
		sort.Strings(entries)
		index := make(map[string]uint64, len(entries))
		var lengths, chars []byte
		for i, s := range entries {
			index[s] = uint64(i)
			lengths = appendUvarint(lengths, uint64(len(s)))
			chars = append(chars, s...)
		}
		var idxData []byte
		for _, s := range vals {
			idxData = appendUvarint(idxData, index[s])
		}
		out.streams = append(out.streams,
			encodedStream{StreamData, idxData},
			encodedStream{StreamLength, lengths},
			encodedStream{StreamDictionaryData, chars})
		out.encoding = ColumnEncoding{Kind: EncodingDictionary, DictionarySize: uint64(len(entries))}
		return out, nil
	}

	var lengths, chars []byte
	for _, s := range vals {
		lengths = appendUvarint(lengths, uint64(len(s)))
		chars = append(chars, s...)
	}
	out.streams = append(out.streams,
		encodedStream{StreamData, chars},
		encodedStream{StreamLength, lengths})
	out.encoding = ColumnEncoding{Kind: EncodingDirect}
	return out, nil
}

// buildSchema emits the pre-order type list: a root struct followed by one
// node per column.
func (w *Writer) buildSchema() []SchemaType {
	types := make([]SchemaType, len(w.names)+1)
	types[0] = SchemaType{Kind: KindStruct, Parent: -1}
	for i, name := range w.names {
		kind, _ := dtypeToKind(w.dtypes[i])
		types[0].Subtypes = append(types[0].Subtypes, uint64(i+1))
		types[0].FieldNames = append(types[0].FieldNames, name)
		types[i+1] = SchemaType{Kind: kind, Parent: 0}
		if w.dtypes[i] == column.Decimal64 {
			types[i+1].Precision = 18
		}
	}
	return types
}

func (w *Writer) fileStatistics() []ColumnStatistics {
	out := make([]ColumnStatistics, len(w.fileStats)+1)
	out[0] = ColumnStatistics{NumberOfValues: w.totalRows}
	for i := range w.fileStats {
		out[i+1] = w.fileStats[i].toProto()
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// statsAccum accumulates column statistics for one stripe or the file.
type statsAccum struct {
	count   uint64
	hasNull bool

	intMin, intMax, intSum int64
	hasInt                 bool

	dblMin, dblMax, dblSum float64
	hasDbl                 bool

	strMin, strMax string
	strSum         int64
	hasStr         bool
}

func (a *statsAccum) addInt(v int64) {
	if !a.hasInt {
		a.intMin, a.intMax = v, v
		a.hasInt = true
	} else {
		if v < a.intMin {
			a.intMin = v
		}
		if v > a.intMax {
			a.intMax = v
		}
	}
	a.intSum += v
	a.count++
}

func (a *statsAccum) addDouble(v float64) {
	if !a.hasDbl {
		a.dblMin, a.dblMax = v, v
		a.hasDbl = true
	} else {
		if v < a.dblMin {
			a.dblMin = v
		}
		if v > a.dblMax {
			a.dblMax = v
		}
	}
	a.dblSum += v
	a.count++
}

func (a *statsAccum) addString(s string) {
	if !a.hasStr {
		a.strMin, a.strMax = s, s
		a.hasStr = true
	} else {
		if s < a.strMin {
			a.strMin = s
		}
		if s > a.strMax {
			a.strMax = s
		}
	}
	a.strSum += int64(len(s))
	a.count++
}

func (a *statsAccum) merge(other *statsAccum) {
	a.count += other.count
	a.hasNull = a.hasNull || other.hasNull
	if other.hasInt {
		if !a.hasInt {
			a.intMin, a.intMax = other.intMin, other.intMax
			a.hasInt = true
		} else {
			if other.intMin < a.intMin {
				a.intMin = other.intMin
			}
			if other.intMax > a.intMax {
				a.intMax = other.intMax
			}
		}
		a.intSum += other.intSum
	}
	if other.hasDbl {
		if !a.hasDbl {
			a.dblMin, a.dblMax = other.dblMin, other.dblMax
			a.hasDbl = true
		} else {
			if other.dblMin < a.dblMin {
				a.dblMin = other.dblMin
			}
			if other.dblMax > a.dblMax {
				a.dblMax = other.dblMax
			}
		}
		a.dblSum += other.dblSum
	}
	if other.hasStr {
		if !a.hasStr {
			a.strMin, a.strMax = other.strMin, other.strMax
			a.hasStr = true
		} else {
			if other.strMin < a.strMin {
				a.strMin = other.strMin
			}
			if other.strMax > a.strMax {
				a.strMax = other.strMax
			}
		}
		a.strSum += other.strSum
	}
}

func (a *statsAccum) toProto() ColumnStatistics {
	cs := ColumnStatistics{NumberOfValues: a.count, HasNull: a.hasNull}
	if a.hasInt {
		cs.Int = &IntegerStatistics{Minimum: a.intMin, Maximum: a.intMax, Sum: a.intSum, HasMinMax: true, HasSum: true}
	}
	if a.hasDbl {
		cs.Double = &DoubleStatistics{Minimum: a.dblMin, Maximum: a.dblMax, Sum: a.dblSum, HasMinMax: true}
	}
	if a.hasStr {
		cs.Str = &StringStatistics{Minimum: a.strMin, Maximum: a.strMax, Sum: a.strSum, HasMinMax: true}
	}
	return cs
}
