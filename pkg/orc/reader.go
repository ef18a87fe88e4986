// Package orc reads and writes the stripe-oriented columnar file format:
// protobuf-encoded metadata sections, block-framed compression, and direct
// value stream encodings. Files are organized as a header, a sequence of
// self-describing stripes, a footer carrying the schema and stripe
// directory, and a postscript locating the footer.
package orc

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/memory"
	"github.com/stratumdb/stratum/pkg/metrics"
)

// ReaderOptions controls what a Reader decodes and where it allocates.
type ReaderOptions struct {
	// Columns selects root fields by name; empty selects all.
	Columns []string
	// RowStart is the first global row to return.
	RowStart int64
	// RowCount bounds returned rows; negative means "to the end".
	RowCount int64
	// Parallelism bounds concurrent stripe decodes; <=0 means 4.
	Parallelism int
	// Resource and Stream place output buffers; nil uses the defaults.
	Resource memory.Resource
	Stream   *memory.Stream
}

// DefaultReaderOptions returns the options used when nil is passed.
func DefaultReaderOptions() *ReaderOptions {
	return &ReaderOptions{RowCount: -1, Parallelism: 4}
}

// Reader decodes one or more files with identical schemas into a single
// table, concatenating their rows in source order.
type Reader struct {
	metas []*fileMetadata
	opts  ReaderOptions
	log   *zap.Logger
}

// NewReader parses metadata for every source and validates that all sources
// agree on column count and types. Disagreement is a logic error and is
// raised before any stripe data is read.
func NewReader(sources []iocore.Datasource, opts *ReaderOptions) (*Reader, error) {
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrorTypeLogic, "no sources")
	}
	if opts == nil {
		opts = DefaultReaderOptions()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}

	metas := make([]*fileMetadata, len(sources))
	for i, src := range sources {
		m, err := parseFileMetadata(src)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeMalformed, "source %d", i)
		}
		metas[i] = m
	}
	first := metas[0].footer.Types
	for i, m := range metas[1:] {
		other := m.footer.Types
		if len(other) != len(first) {
			return nil, errors.Newf(errors.ErrorTypeLogic,
				"source %d has %d schema nodes, source 0 has %d", i+1, len(other), len(first))
		}
		for j := range first {
			if other[j].Kind != first[j].Kind {
				return nil, errors.Newf(errors.ErrorTypeLogic,
					"source %d schema node %d is kind %d, source 0 has %d",
					i+1, j, other[j].Kind, first[j].Kind)
			}
		}
	}
	return &Reader{metas: metas, opts: *opts, log: logger.Get().With(zap.String("format", "orc"))}, nil
}

// NumRows returns the total row count across all sources.
func (r *Reader) NumRows() int64 {
	var n int64
	for _, m := range r.metas {
		n += int64(m.footer.NumberOfRows)
	}
	return n
}

// Schema returns the root field names of the first source.
func (r *Reader) Schema() []string {
	return r.metas[0].footer.Types[0].FieldNames
}

// DTypes returns the column types of the root fields.
func (r *Reader) DTypes() ([]column.DataType, error) {
	root := &r.metas[0].footer.Types[0]
	out := make([]column.DataType, len(root.Subtypes))
	for i, st := range root.Subtypes {
		dt, err := kindToDType(&r.metas[0].footer.Types[st])
		if err != nil {
			return nil, err
		}
		out[i] = dt
	}
	return out, nil
}

// NumStripes returns the stripe count across all sources.
func (r *Reader) NumStripes() int {
	var n int
	for _, m := range r.metas {
		n += len(m.footer.Stripes)
	}
	return n
}

// Metadata returns the first source's user metadata as a map.
func (r *Reader) Metadata() map[string]string {
	out := make(map[string]string)
	for _, item := range r.metas[0].footer.Metadata {
		out[item.Name] = string(item.Value)
	}
	return out
}

// stripeRef locates one selected stripe within one source.
type stripeRef struct {
	meta     *fileMetadata
	info     *StripeInformation
	firstRow int64
}

// Read decodes the selected rows and columns into a table. Stripes are
// decompressed and decoded concurrently; assembly preserves row order.
func (r *Reader) Read(ctx context.Context) (*column.Table, error) {
	typeIdxs, err := r.metas[0].selectColumns(r.opts.Columns)
	if err != nil {
		return nil, err
	}

	refs := r.selectRefs()
	if len(refs) == 0 {
		return r.emptyTable(typeIdxs)
	}

	r.log.Debug("reading stripes",
		zap.Int("stripes", len(refs)),
		zap.Int("columns", len(typeIdxs)))

	// pieces[s][c] is column c of selected stripe s.
	pieces := make([][]*column.Column, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for s := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cols, err := r.decodeStripe(refs[s], typeIdxs)
			if err != nil {
				return err
			}
			pieces[s] = cols
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, cols := range pieces {
			for _, c := range cols {
				if c != nil {
					c.Release()
				}
			}
		}
		return nil, err
	}

	names := make([]string, len(typeIdxs))
	cols := make([]*column.Column, len(typeIdxs))
	for c, typeIdx := range typeIdxs {
		names[c] = r.metas[0].columnName(typeIdx)
		parts := make([]*column.Column, len(refs))
		for s := range refs {
			parts[s] = pieces[s][c]
		}
		merged, err := column.Concat(parts, r.opts.Resource, r.opts.Stream)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			p.Release()
		}
		cols[c] = merged
	}

	tbl, err := r.trim(names, cols, refs[0].firstRow)
	if err != nil {
		return nil, err
	}
	metrics.RowsRead.WithLabelValues("orc").Add(float64(tbl.NumRows()))
	return tbl, nil
}

// selectRefs gathers the stripes intersecting the requested row range
// across all sources, with their global first-row positions.
func (r *Reader) selectRefs() []stripeRef {
	var refs []stripeRef
	var base int64
	for _, m := range r.metas {
		localStart := r.opts.RowStart - base
		if localStart < 0 {
			localStart = 0
		}
		localCount := int64(-1)
		if r.opts.RowCount >= 0 {
			localCount = r.opts.RowStart + r.opts.RowCount - base - localStart
			if localCount <= 0 {
				break
			}
		}
		for _, idx := range selectStripes(m.footer.Stripes, localStart, localCount) {
			refs = append(refs, stripeRef{
				meta:     m,
				info:     &m.footer.Stripes[idx],
				firstRow: base + stripeFirstRow(m.footer.Stripes, idx),
			})
		}
		base += int64(m.footer.NumberOfRows)
	}
	return refs
}

// trim cuts the assembled columns down to the exact requested row range.
func (r *Reader) trim(names []string, cols []*column.Column, firstRow int64) (*column.Table, error) {
	total := 0
	if len(cols) > 0 {
		total = cols[0].Size()
	}
	skip := int(r.opts.RowStart - firstRow)
	if skip < 0 {
		skip = 0
	}
	keep := total - skip
	if r.opts.RowCount >= 0 && int(r.opts.RowCount) < keep {
		keep = int(r.opts.RowCount)
	}
	if keep < 0 {
		keep = 0
	}
	if skip == 0 && keep == total {
		return column.NewTable(names, cols)
	}

	out := make([]*column.Column, len(cols))
	for i, c := range cols {
		v, err := c.View().Slice(skip, keep)
		if err != nil {
			return nil, err
		}
		trimmed, err := column.CopyView(v, r.opts.Resource, r.opts.Stream)
		if err != nil {
			return nil, err
		}
		c.Release()
		out[i] = trimmed
	}
	return column.NewTable(names, out)
}

func (r *Reader) emptyTable(typeIdxs []int) (*column.Table, error) {
	names := make([]string, len(typeIdxs))
	cols := make([]*column.Column, len(typeIdxs))
	for i, typeIdx := range typeIdxs {
		names[i] = r.metas[0].columnName(typeIdx)
		dt, err := kindToDType(&r.metas[0].footer.Types[typeIdx])
		if err != nil {
			return nil, err
		}
		c, err := column.NewEmpty(dt)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return column.NewTable(names, cols)
}

// stripeStreams maps the selected columns' streams to absolute offsets.
func stripeStreams(info *StripeInformation, sf *StripeFooter) map[uint64]map[StreamKind][2]uint64 {
	out := make(map[uint64]map[StreamKind][2]uint64)
	cursor := info.Offset
	for _, s := range sf.Streams {
		if out[s.Column] == nil {
			out[s.Column] = make(map[StreamKind][2]uint64)
		}
		out[s.Column][s.Kind] = [2]uint64{cursor, s.Length}
		cursor += s.Length
	}
	return out
}

// decodeStripe decodes one stripe's selected columns.
func (r *Reader) decodeStripe(ref stripeRef, typeIdxs []int) ([]*column.Column, error) {
	timer := metrics.NewTimer()
	sf, err := ref.meta.readStripeFooter(ref.info)
	if err != nil {
		return nil, err
	}
	streams := stripeStreams(ref.info, sf)
	numRows := int(ref.info.NumberOfRows)

	cols := make([]*column.Column, len(typeIdxs))
	for i, typeIdx := range typeIdxs {
		col, err := r.decodeColumn(ref.meta, sf, streams[uint64(typeIdx)], typeIdx, numRows)
		if err != nil {
			for _, c := range cols[:i] {
				c.Release()
			}
			return nil, errors.Wrapf(err, errors.ErrorTypeMalformed,
				"decoding column %q", ref.meta.columnName(typeIdx))
		}
		cols[i] = col
	}
	metrics.UnitsDecoded.WithLabelValues("orc").Inc()
	metrics.BytesRead.WithLabelValues("orc").Add(float64(ref.info.DataLength + ref.info.FooterLength))
	metrics.DecodeDuration.WithLabelValues("orc").Observe(timer.Stop().Seconds())
	return cols, nil
}

// readStream loads and de-frames one stream's bytes.
func (r *Reader) readStream(m *fileMetadata, loc [2]uint64) ([]byte, error) {
	if loc[1] == 0 {
		return nil, nil
	}
	raw, err := m.source.ReadAt(int64(loc[0]), int(loc[1]))
	if err != nil {
		return nil, err
	}
	return decodeSection(raw, m.ps.Compression, m.ps.CompressionBlockSize, 0)
}

func (r *Reader) decodeColumn(m *fileMetadata, sf *StripeFooter, locs map[StreamKind][2]uint64, typeIdx, numRows int) (*column.Column, error) {
	node := &m.footer.Types[typeIdx]
	dt, err := kindToDType(node)
	if err != nil {
		return nil, err
	}

	// PRESENT stream: one bit per row, set means non-null.
	valid := make([]bool, numRows)
	nonNull := numRows
	hasNulls := false
	if loc, ok := locs[StreamPresent]; ok && loc[1] > 0 {
		data, err := r.readStream(m, loc)
		if err != nil {
			return nil, err
		}
		bits, err := decodePackedBits(data, numRows)
		if err != nil {
			return nil, err
		}
		nonNull = 0
		for i, b := range bits {
			valid[i] = b
			if b {
				nonNull++
			}
		}
		hasNulls = nonNull < numRows
	} else {
		for i := range valid {
			valid[i] = true
		}
	}
	maskOrNil := valid
	if !hasNulls {
		maskOrNil = nil
	}

	data, err := r.readStream(m, locs[StreamData])
	if err != nil {
		return nil, err
	}

	if dt == column.String {
		dict := len(sf.Columns) > typeIdx && sf.Columns[typeIdx].Kind == EncodingDictionary
		if dict {
			return decodeDictionaryStrings(r, m, sf, locs, data, valid, maskOrNil, nonNull, typeIdx)
		}
		return decodeDirectStrings(r, m, locs, data, valid, maskOrNil, nonNull)
	}
	return decodeFixedColumn(dt, data, valid, maskOrNil, nonNull, r.opts.Resource, r.opts.Stream)
}

func decodeDirectStrings(r *Reader, m *fileMetadata, locs map[StreamKind][2]uint64, chars []byte, valid []bool, mask []bool, nonNull int) (*column.Column, error) {
	lenData, err := r.readStream(m, locs[StreamLength])
	if err != nil {
		return nil, err
	}
	lens, err := decodeUvarints(lenData, nonNull)
	if err != nil {
		return nil, err
	}
	vals := make([]string, len(valid))
	pos := uint64(0)
	j := 0
	for i := range valid {
		if !valid[i] {
			continue
		}
		n := lens[j]
		j++
		if pos+n > uint64(len(chars)) {
			return nil, errors.New(errors.ErrorTypeMalformed, "string data stream too short")
		}
		vals[i] = string(chars[pos : pos+n])
		pos += n
	}
	return column.FromStringsOn(vals, mask, r.opts.Resource, r.opts.Stream)
}

func decodeDictionaryStrings(r *Reader, m *fileMetadata, sf *StripeFooter, locs map[StreamKind][2]uint64, idxData []byte, valid []bool, mask []bool, nonNull, typeIdx int) (*column.Column, error) {
	dictSize := int(sf.Columns[typeIdx].DictionarySize)
	lenData, err := r.readStream(m, locs[StreamLength])
	if err != nil {
		return nil, err
	}
	lens, err := decodeUvarints(lenData, dictSize)
	if err != nil {
		return nil, err
	}
	chars, err := r.readStream(m, locs[StreamDictionaryData])
	if err != nil {
		return nil, err
	}
	entries := make([]string, dictSize)
	pos := uint64(0)
	for i := range entries {
		if pos+lens[i] > uint64(len(chars)) {
			return nil, errors.New(errors.ErrorTypeMalformed, "dictionary data stream too short")
		}
		entries[i] = string(chars[pos : pos+lens[i]])
		pos += lens[i]
	}

	idxs, err := decodeUvarints(idxData, nonNull)
	if err != nil {
		return nil, err
	}
	vals := make([]string, len(valid))
	j := 0
	for i := range valid {
		if !valid[i] {
			continue
		}
		idx := idxs[j]
		j++
		if idx >= uint64(dictSize) {
			return nil, errors.Newf(errors.ErrorTypeMalformed,
				"dictionary index %d out of range %d", idx, dictSize)
		}
		vals[i] = entries[idx]
	}
	return column.FromStringsOn(vals, mask, r.opts.Resource, r.opts.Stream)
}

func decodeFixedColumn(dt column.DataType, data []byte, valid []bool, mask []bool, nonNull int, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	n := len(valid)
	switch dt {
	case column.Bool8:
		bits, err := decodePackedBits(data, nonNull)
		if err != nil {
			return nil, err
		}
		vals := make([]bool, n)
		scatterBools(vals, bits, valid)
		return column.FromNumeric(column.Bool8, boolsToBytes(vals), mask, res, stream)

	case column.Float32:
		words, err := decodeFixed(data, nonNull, 4)
		if err != nil {
			return nil, err
		}
		vals := make([]float32, n)
		j := 0
		for i := range valid {
			if valid[i] {
				vals[i] = math.Float32frombits(uint32(words[j]))
				j++
			}
		}
		return column.FromNumeric(column.Float32, vals, mask, res, stream)

	case column.Float64:
		words, err := decodeFixed(data, nonNull, 8)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, n)
		j := 0
		for i := range valid {
			if valid[i] {
				vals[i] = math.Float64frombits(words[j])
				j++
			}
		}
		return column.FromNumeric(column.Float64, vals, mask, res, stream)
	}

	// Integral kinds share the zigzag varint stream.
	raw, err := decodeVarints(data, nonNull)
	if err != nil {
		return nil, err
	}
	dense := make([]int64, n)
	j := 0
	for i := range valid {
		if valid[i] {
			dense[i] = raw[j]
			j++
		}
	}
	switch dt {
	case column.Int8:
		return column.FromNumeric(column.Int8, narrow[int8](dense), mask, res, stream)
	case column.Int16:
		return column.FromNumeric(column.Int16, narrow[int16](dense), mask, res, stream)
	case column.Int32:
		return column.FromNumeric(column.Int32, narrow[int32](dense), mask, res, stream)
	case column.Int64, column.TimestampNanos, column.Decimal64:
		return column.FromNumeric(dt, dense, mask, res, stream)
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "decoding %s columns", dt)
}

func narrow[T int8 | int16 | int32](vals []int64) []T {
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = T(v)
	}
	return out
}

func scatterBools(dst []bool, src []bool, valid []bool) {
	j := 0
	for i := range valid {
		if valid[i] {
			dst[i] = src[j]
			j++
		}
	}
}

func boolsToBytes(vals []bool) []uint8 {
	out := make([]uint8, len(vals))
	for i, v := range vals {
		if v {
			out[i] = 1
		}
	}
	return out
}
