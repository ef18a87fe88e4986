package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"

	"github.com/stratumdb/stratum/pkg/arrowconv"
	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
	"github.com/stratumdb/stratum/pkg/memory"
	"github.com/stratumdb/stratum/pkg/mmap"
	"github.com/stratumdb/stratum/pkg/orc"
	"github.com/stratumdb/stratum/pkg/parquet"
)

const (
	formatORC     = "orc"
	formatParquet = "parquet"
	formatArrow   = "arrow"
)

// sniffFormat identifies a file by its magic bytes.
func sniffFormat(src iocore.Datasource) (string, error) {
	if src.Size() < 4 {
		return "", errors.New(errors.ErrorTypeMalformed, "file too small to identify")
	}
	head, err := src.ReadAt(0, 4)
	if err != nil {
		return "", err
	}
	switch {
	case string(head) == "PAR1":
		return formatParquet, nil
	case string(head[:3]) == "ORC":
		return formatORC, nil
	}
	return "", errors.New(errors.ErrorTypeMalformed, "not an ORC or Parquet file")
}

// formatForPath infers a format from a file extension.
func formatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".orc":
		return formatORC, nil
	case ".parquet", ".parq":
		return formatParquet, nil
	case ".arrow", ".arrows", ".feather":
		return formatArrow, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "cannot infer format from %q, use --to", path)
}

// fileInfo is the inspect command's JSON output.
type fileInfo struct {
	Format   string            `json:"format"`
	Rows     int64             `json:"rows"`
	Columns  []columnInfo      `json:"columns"`
	Units    int               `json:"stripes,omitempty"`
	Groups   int               `json:"row_groups,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type columnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// inspectFile summarizes a file's layout without decoding row data.
func inspectFile(path string) ([]byte, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	format, err := sniffFormat(src)
	if err != nil {
		return nil, err
	}

	var info fileInfo
	info.Format = format
	switch format {
	case formatORC:
		r, err := orc.NewReader([]iocore.Datasource{src}, nil)
		if err != nil {
			return nil, err
		}
		dtypes, err := r.DTypes()
		if err != nil {
			return nil, err
		}
		info.Rows = r.NumRows()
		info.Units = r.NumStripes()
		info.Metadata = r.Metadata()
		for i, name := range r.Schema() {
			info.Columns = append(info.Columns, columnInfo{Name: name, Type: dtypes[i].String()})
		}
	case formatParquet:
		r, err := parquet.NewReader(src, nil)
		if err != nil {
			return nil, err
		}
		dtypes, err := r.DTypes()
		if err != nil {
			return nil, err
		}
		info.Rows = r.NumRows()
		info.Groups = r.NumRowGroups()
		info.Metadata = r.Metadata()
		for i, name := range r.Schema() {
			info.Columns = append(info.Columns, columnInfo{Name: name, Type: dtypes[i].String()})
		}
	}
	return json.MarshalIndent(info, "", "  ")
}

// openSource memory-maps the file, falling back to buffered reads when
// the mapping fails.
func openSource(path string) (iocore.Datasource, error) {
	if src, err := mmap.Open(path); err == nil {
		return src, nil
	}
	return iocore.OpenFile(path)
}

// readTable loads a file into a table, optionally restricted to columns.
func readTable(path string, columns []string, cfg *config.Config, res memory.Resource) (*column.Table, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	format, err := sniffFormat(src)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	switch format {
	case formatORC:
		r, err := orc.NewReader([]iocore.Datasource{src}, &orc.ReaderOptions{
			Columns:     columns,
			RowCount:    -1,
			Parallelism: cfg.Read.Parallelism,
			Resource:    res,
		})
		if err != nil {
			return nil, err
		}
		return r.Read(ctx)
	default:
		r, err := parquet.NewReader(src, &parquet.ReaderOptions{
			Columns:     columns,
			Parallelism: cfg.Read.Parallelism,
			Resource:    res,
		})
		if err != nil {
			return nil, err
		}
		return r.Read(ctx)
	}
}

// writeTable encodes a table into the given format at path.
func writeTable(tbl *column.Table, path, format string, cfg *config.Config) error {
	kind, err := cfg.Write.CompressionKind()
	if err != nil {
		return err
	}
	sink, err := iocore.CreateFile(path)
	if err != nil {
		return err
	}

	switch format {
	case formatORC:
		w := orc.NewWriter(sink, &orc.WriterOptions{
			Compression:          kind,
			CompressionBlockSize: cfg.Write.CompressionBlockSize,
			StripeSizeBytes:      cfg.Write.StripeSizeBytes,
			RowIndexStride:       cfg.Write.RowIndexStride,
		})
		if err := w.WriteTable(tbl.View()); err != nil {
			return err
		}
		return w.Close()
	case formatParquet:
		codec, err := parquetCodec(kind)
		if err != nil {
			return err
		}
		w := parquet.NewWriter(sink, &parquet.WriterOptions{Codec: codec})
		if err := w.WriteTable(tbl.View()); err != nil {
			return err
		}
		return w.Close()
	case formatArrow:
		return writeArrowFile(tbl, sink)
	}
	sink.Close()
	return errors.Newf(errors.ErrorTypeConfig, "unknown format %q", format)
}

// writeArrowFile emits the table as one record in Arrow IPC file format.
func writeArrowFile(tbl *column.Table, sink iocore.DataSink) error {
	rec, err := arrowconv.ToRecord(tbl, arrowmem.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	w, err := ipc.NewFileWriter(sinkWriter{sink}, ipc.WithSchema(rec.Schema()))
	if err != nil {
		return err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return sink.Close()
}

// sinkWriter adapts a DataSink to io.Writer for the IPC writer.
type sinkWriter struct {
	sink iocore.DataSink
}

func (s sinkWriter) Write(p []byte) (int, error) {
	if err := s.sink.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// parquetCodec narrows the codec set to what pages support.
func parquetCodec(kind compression.Kind) (parquet.Codec, error) {
	switch kind {
	case compression.None:
		return parquet.CodecUncompressed, nil
	case compression.Snappy:
		return parquet.CodecSnappy, nil
	case compression.Zstd:
		return parquet.CodecZstd, nil
	}
	return parquet.CodecUncompressed, errors.Newf(errors.ErrorTypeConfig,
		"parquet pages cannot use %s compression", kind)
}

// renderCell formats one value for terminal output.
func renderCell(c *column.Column, row int) string {
	if !c.IsValid(row) {
		return "NULL"
	}
	switch c.DType() {
	case column.Bool8:
		if column.Values[uint8](c)[row] != 0 {
			return "true"
		}
		return "false"
	case column.Int8:
		return fmt.Sprintf("%d", column.Values[int8](c)[row])
	case column.Int16:
		return fmt.Sprintf("%d", column.Values[int16](c)[row])
	case column.Int32:
		return fmt.Sprintf("%d", column.Values[int32](c)[row])
	case column.Int64, column.Decimal64:
		return fmt.Sprintf("%d", column.Values[int64](c)[row])
	case column.Uint8:
		return fmt.Sprintf("%d", column.Values[uint8](c)[row])
	case column.Uint16:
		return fmt.Sprintf("%d", column.Values[uint16](c)[row])
	case column.Uint32:
		return fmt.Sprintf("%d", column.Values[uint32](c)[row])
	case column.Uint64:
		return fmt.Sprintf("%d", column.Values[uint64](c)[row])
	case column.Float32:
		return fmt.Sprintf("%g", column.Values[float32](c)[row])
	case column.Float64:
		return fmt.Sprintf("%g", column.Values[float64](c)[row])
	case column.String:
		return column.StringAt(c, row)
	case column.TimestampSeconds:
		return time.Unix(column.Values[int64](c)[row], 0).UTC().Format(time.RFC3339)
	case column.TimestampMillis:
		return time.UnixMilli(column.Values[int64](c)[row]).UTC().Format(time.RFC3339Nano)
	case column.TimestampMicros:
		return time.UnixMicro(column.Values[int64](c)[row]).UTC().Format(time.RFC3339Nano)
	case column.TimestampNanos:
		return time.Unix(0, column.Values[int64](c)[row]).UTC().Format(time.RFC3339Nano)
	case column.DurationNanos:
		return time.Duration(column.Values[int64](c)[row]).String()
	}
	return "?"
}

// renderTable prints at most limit rows as tab-separated text.
func renderTable(tbl *column.Table, limit int) string {
	var b strings.Builder
	b.WriteString(strings.Join(tbl.Names(), "\t"))
	b.WriteByte('\n')
	rows := tbl.NumRows()
	if limit >= 0 && limit < rows {
		rows = limit
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < tbl.NumColumns(); c++ {
			if c > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(renderCell(tbl.Column(c), r))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
