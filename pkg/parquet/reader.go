// Package parquet reads and writes the page-oriented columnar file format:
// thrift compact protocol metadata, row groups of column chunks, and PLAIN
// encoded data pages with RLE/bit-packed definition levels. The package
// covers flat schemas; nested schema trees are parsed and level-annotated
// but only leaf columns under the root are decoded.
package parquet

import (
	"context"
	"encoding/binary"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/memory"
	"github.com/stratumdb/stratum/pkg/metrics"
)

const parquetMagic = "PAR1"

// ReaderOptions controls what a Reader decodes and where it allocates.
type ReaderOptions struct {
	// Columns selects leaf columns by name; empty selects all.
	Columns []string
	// Parallelism bounds concurrent row-group decodes; <=0 means 4.
	Parallelism int
	// Resource and Stream place output buffers; nil uses the defaults.
	Resource memory.Resource
	Stream   *memory.Stream
}

// Reader decodes one file into a table.
type Reader struct {
	source iocore.Datasource
	md     FileMetaData
	opts   ReaderOptions
	log    *zap.Logger
}

// NewReader parses a file's footer and initializes its schema.
func NewReader(source iocore.Datasource, opts *ReaderOptions) (*Reader, error) {
	if opts == nil {
		opts = &ReaderOptions{}
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	r := &Reader{source: source, opts: *opts, log: logger.Get().With(zap.String("format", "parquet"))}

	size := source.Size()
	if size < int64(2*len(parquetMagic)+4) {
		return nil, errors.Newf(errors.ErrorTypeMalformed, "file of %d bytes is too small", size)
	}
	head, err := source.ReadAt(0, len(parquetMagic))
	if err != nil {
		return nil, err
	}
	tail, err := source.ReadAt(size-8, 8)
	if err != nil {
		return nil, err
	}
	if string(head) != parquetMagic || string(tail[4:]) != parquetMagic {
		return nil, errors.New(errors.ErrorTypeMalformed, "bad magic")
	}
	footerLen := int64(binary.LittleEndian.Uint32(tail[:4]))
	if footerLen <= 0 || footerLen > size-8-int64(len(parquetMagic)) {
		return nil, errors.Newf(errors.ErrorTypeMalformed, "footer length %d out of range", footerLen)
	}
	footer, err := source.ReadAt(size-8-footerLen, int(footerLen))
	if err != nil {
		return nil, err
	}
	if err := r.md.decode(newCpReader(footer)); err != nil {
		return nil, err
	}
	if err := initSchema(&r.md); err != nil {
		return nil, err
	}
	return r, nil
}

// NumRows returns the file's row count.
func (r *Reader) NumRows() int64 { return r.md.NumRows }

// Schema returns the leaf column names under the root.
func (r *Reader) Schema() []string {
	var out []string
	for i := 1; i < len(r.md.Schema); i++ {
		if r.md.Schema[i].NumChildren == 0 && r.md.Schema[i].Parent == 0 {
			out = append(out, r.md.Schema[i].Name)
		}
	}
	return out
}

// DTypes returns the column types of the leaf columns under the root.
func (r *Reader) DTypes() ([]column.DataType, error) {
	var out []column.DataType
	for i := 1; i < len(r.md.Schema); i++ {
		if r.md.Schema[i].NumChildren == 0 && r.md.Schema[i].Parent == 0 {
			dt, err := elemDType(&r.md.Schema[i])
			if err != nil {
				return nil, err
			}
			out = append(out, dt)
		}
	}
	return out, nil
}

// NumRowGroups returns the file's row group count.
func (r *Reader) NumRowGroups() int { return len(r.md.RowGroups) }

// Metadata returns file-level key-value metadata.
func (r *Reader) Metadata() map[string]string {
	out := make(map[string]string)
	for _, kv := range r.md.KeyValueMetadata {
		out[kv.Key] = kv.Value
	}
	return out
}

// selectChunks returns, per selected column, the chunk index within each
// row group's column list.
func (r *Reader) selectChunks() ([]int, []string, error) {
	if len(r.md.RowGroups) == 0 {
		var idxs []int
		return idxs, r.opts.Columns, nil
	}
	cols := r.md.RowGroups[0].Columns

	if len(r.opts.Columns) == 0 {
		idxs := make([]int, len(cols))
		names := make([]string, len(cols))
		for i := range cols {
			idxs[i] = i
			names[i] = r.md.Schema[cols[i].SchemaIdx].Name
		}
		return idxs, names, nil
	}

	idxs := make([]int, 0, len(r.opts.Columns))
	for _, name := range r.opts.Columns {
		found := -1
		for i := range cols {
			if r.md.Schema[cols[i].SchemaIdx].Name == name {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, nil, errors.Newf(errors.ErrorTypeLogic, "column %q not in file", name)
		}
		idxs = append(idxs, found)
	}
	return idxs, r.opts.Columns, nil
}

// Read decodes the selected columns of every row group into a table.
func (r *Reader) Read(ctx context.Context) (*column.Table, error) {
	chunkIdxs, names, err := r.selectChunks()
	if err != nil {
		return nil, err
	}
	if len(r.md.RowGroups) == 0 {
		return r.emptyTable(names)
	}

	pieces := make([][]*column.Column, len(r.md.RowGroups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for rg := range r.md.RowGroups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			timer := metrics.NewTimer()
			cols := make([]*column.Column, len(chunkIdxs))
			for i, ci := range chunkIdxs {
				chunk := &r.md.RowGroups[rg].Columns[ci]
				col, err := r.decodeChunk(chunk, r.md.RowGroups[rg].NumRows)
				if err != nil {
					return errors.Wrapf(err, errors.ErrorTypeMalformed,
						"row group %d column %q", rg, r.md.Schema[chunk.SchemaIdx].Name)
				}
				metrics.BytesRead.WithLabelValues("parquet").Add(float64(chunk.MetaData.TotalCompressedSize))
				cols[i] = col
			}
			pieces[rg] = cols
			metrics.UnitsDecoded.WithLabelValues("parquet").Inc()
			metrics.DecodeDuration.WithLabelValues("parquet").Observe(timer.Stop().Seconds())
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

	out := make([]*column.Column, len(chunkIdxs))
	for i := range chunkIdxs {
		parts := make([]*column.Column, len(pieces))
		for rg := range pieces {
			parts[rg] = pieces[rg][i]
		}
		merged, err := column.Concat(parts, r.opts.Resource, r.opts.Stream)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			p.Release()
		}
		out[i] = merged
	}
	tbl, err := column.NewTable(names, out)
	if err != nil {
		return nil, err
	}
	metrics.RowsRead.WithLabelValues("parquet").Add(float64(tbl.NumRows()))
	return tbl, nil
}

func (r *Reader) emptyTable(names []string) (*column.Table, error) {
	cols := make([]*column.Column, 0, len(names))
	for range names {
		c, err := column.NewEmpty(column.Int64)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return column.NewTable(names, cols)
}

// decodeChunk decodes every data page of one column chunk.
func (r *Reader) decodeChunk(chunk *ColumnChunk, numRows int64) (*column.Column, error) {
	elem := &r.md.Schema[chunk.SchemaIdx]
	if elem.MaxRep > 0 {
		return nil, errors.New(errors.ErrorTypeUnsupported, "repeated columns")
	}
	kind, err := codecKind(chunk.MetaData.Codec)
	if err != nil {
		return nil, err
	}

	region, err := r.source.ReadAt(chunk.MetaData.DataPageOffset, int(chunk.MetaData.TotalCompressedSize))
	if err != nil {
		return nil, err
	}
	cp := newCpReader(region)

	var valid []bool
	var values []byte
	decoded := int64(0)
	for decoded < chunk.MetaData.NumValues {
		var ph PageHeader
		if err := ph.decode(cp); err != nil {
			return nil, err
		}
		if ph.Type != PageData || ph.DataPage == nil {
			return nil, errors.Newf(errors.ErrorTypeUnsupported, "page type %d", ph.Type)
		}
		if ph.DataPage.Encoding != EncodingPlain {
			return nil, errors.Newf(errors.ErrorTypeUnsupported, "page encoding %d", ph.DataPage.Encoding)
		}
		if int(ph.CompressedPageSize) > cp.remaining() {
			return nil, errors.New(errors.ErrorTypeMalformed, "page overruns column chunk")
		}
		raw := cp.buf[cp.pos : cp.pos+int(ph.CompressedPageSize)]
		cp.pos += int(ph.CompressedPageSize)

		page := raw
		if kind != compression.None {
			codec, err := compression.NewCodec(kind)
			if err != nil {
				return nil, err
			}
			page, err = codec.Decompress(raw, int(ph.UncompressedPageSize))
			if err != nil {
				return nil, err
			}
		}

		n := int(ph.DataPage.NumValues)
		if elem.MaxDef > 0 {
			if len(page) < 4 {
				return nil, errors.New(errors.ErrorTypeMalformed, "page too short for level length")
			}
			levelLen := int(binary.LittleEndian.Uint32(page))
			if 4+levelLen > len(page) {
				return nil, errors.New(errors.ErrorTypeMalformed, "level run overruns page")
			}
			levels, err := decodeLevels1(page[4:4+levelLen], n)
			if err != nil {
				return nil, err
			}
			valid = append(valid, levels...)
			page = page[4+levelLen:]
		} else {
			for i := 0; i < n; i++ {
				valid = append(valid, true)
			}
		}
		values = append(values, page...)
		decoded += int64(n)
	}

	return buildColumn(elem, values, valid, r.opts.Resource, r.opts.Stream)
}

func codecKind(c Codec) (compression.Kind, error) {
	switch c {
	case CodecUncompressed:
		return compression.None, nil
	case CodecSnappy:
		return compression.Snappy, nil
	case CodecZstd:
		return compression.Zstd, nil
	}
	return compression.None, errors.Newf(errors.ErrorTypeUnsupported, "page codec %d", c)
}

// elemDType maps a schema element to the column type it decodes to.
func elemDType(elem *SchemaElement) (column.DataType, error) {
	switch elem.Type {
	case TypeBoolean:
		return column.Bool8, nil
	case TypeInt32:
		switch elem.ConvertedType {
		case ConvertedInt8:
			return column.Int8, nil
		case ConvertedInt16:
			return column.Int16, nil
		}
		return column.Int32, nil
	case TypeInt64:
		switch elem.ConvertedType {
		case ConvertedTimestampMillis:
			return column.TimestampMillis, nil
		case ConvertedTimestampMicros:
			return column.TimestampMicros, nil
		}
		return column.Int64, nil
	case TypeFloat:
		return column.Float32, nil
	case TypeDouble:
		return column.Float64, nil
	case TypeByteArray:
		return column.String, nil
	}
	return column.Empty, errors.Newf(errors.ErrorTypeUnsupported, "physical type %d", elem.Type)
}

// buildColumn scatters PLAIN values into rows using the validity flags.
func buildColumn(elem *SchemaElement, values []byte, valid []bool, res memory.Resource, stream *memory.Stream) (*column.Column, error) {
	dt, err := elemDType(elem)
	if err != nil {
		return nil, err
	}
	n := len(valid)
	nonNull := 0
	for _, v := range valid {
		if v {
			nonNull++
		}
	}
	mask := valid
	if nonNull == n {
		mask = nil
	}

	switch dt {
	case column.Bool8:
		bits := make([]bool, nonNull)
		for i := range bits {
			if i/8 >= len(values) {
				return nil, errors.New(errors.ErrorTypeMalformed, "boolean page too short")
			}
			bits[i] = values[i/8]&(1<<(i%8)) != 0
		}
		out := make([]uint8, n)
		j := 0
		for i := range valid {
			if valid[i] {
				if bits[j] {
					out[i] = 1
				}
				j++
			}
		}
		return column.FromNumeric(column.Bool8, out, mask, res, stream)

	case column.String:
		vals := make([]string, n)
		pos := 0
		for i := range valid {
			if !valid[i] {
				continue
			}
			if pos+4 > len(values) {
				return nil, errors.New(errors.ErrorTypeMalformed, "byte array page too short")
			}
			l := int(binary.LittleEndian.Uint32(values[pos:]))
			pos += 4
			if pos+l > len(values) {
				return nil, errors.New(errors.ErrorTypeMalformed, "byte array overruns page")
			}
			vals[i] = string(values[pos : pos+l])
			pos += l
		}
		return column.FromStringsOn(vals, mask, res, stream)
	}

	width := column.SizeOf(dt)
	phys := 4
	if elem.Type == TypeInt64 || elem.Type == TypeDouble {
		phys = 8
	}
	if len(values) < nonNull*phys {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"page has %d bytes for %d values of width %d", len(values), nonNull, phys)
	}

	word := func(j int) uint64 {
		var v uint64
		for b := 0; b < phys; b++ {
			v |= uint64(values[j*phys+b]) << (8 * b)
		}
		return v
	}

	switch width {
	case 1:
		out := make([]int8, n)
		j := 0
		for i := range valid {
			if valid[i] {
				out[i] = int8(int32(word(j)))
				j++
			}
		}
		return column.FromNumeric(dt, out, mask, res, stream)
	case 2:
		out := make([]int16, n)
		j := 0
		for i := range valid {
			if valid[i] {
				out[i] = int16(int32(word(j)))
				j++
			}
		}
		return column.FromNumeric(dt, out, mask, res, stream)
	case 4:
		if dt == column.Float32 {
			out := make([]float32, n)
			j := 0
			for i := range valid {
				if valid[i] {
					out[i] = math.Float32frombits(uint32(word(j)))
					j++
				}
			}
			return column.FromNumeric(dt, out, mask, res, stream)
		}
		out := make([]int32, n)
		j := 0
		for i := range valid {
			if valid[i] {
				out[i] = int32(word(j))
				j++
			}
		}
		return column.FromNumeric(dt, out, mask, res, stream)
	case 8:
		if dt == column.Float64 {
			out := make([]float64, n)
			j := 0
			for i := range valid {
				if valid[i] {
					out[i] = math.Float64frombits(word(j))
					j++
				}
			}
			return column.FromNumeric(dt, out, mask, res, stream)
		}
		out := make([]int64, n)
		j := 0
		for i := range valid {
			if valid[i] {
				out[i] = int64(word(j))
				j++
			}
		}
		return column.FromNumeric(dt, out, mask, res, stream)
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupported, "decoding %s columns", dt)
}
