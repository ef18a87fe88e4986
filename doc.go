// Package stratum is a columnar dataframe engine: typed column and table
// containers over flat byte buffers, readers and writers for the ORC and
// Parquet file formats, and relational operations over tables.
//
// # Architecture
//
// Stratum is organized around three layers:
//
// 1. Memory: pkg/memory defines the Resource allocator interface with
// standard, pooled and tracking implementations, plus ordered Streams for
// sequencing work against one allocation arena.
//
// 2. Columns: pkg/column stores every column as a flat data buffer with an
// optional validity bitmap. Fixed-width types share one generic accessor;
// strings add a character buffer and an offsets child.
//
// 3. Formats and operations: pkg/orc and pkg/parquet encode and decode
// tables; pkg/ops provides gather, filter, sort, group-by, join, reductions
// and string transforms.
//
// # Quick Start
//
// Read an ORC file and sort it:
//
//	import (
//	    "context"
//	    "github.com/stratumdb/stratum/pkg/iocore"
//	    "github.com/stratumdb/stratum/pkg/ops"
//	    "github.com/stratumdb/stratum/pkg/orc"
//	)
//
//	src, _ := iocore.OpenFile("events.orc")
//	r, _ := orc.NewReader([]iocore.Datasource{src}, nil)
//	tbl, _ := r.Read(context.Background())
//	sorted, _ := ops.SortBy(tbl, []ops.SortKey{{Name: "ts"}}, nil, nil)
//
// # Key Packages
//
//	pkg/memory      - Allocator resources, streams and buffers
//	pkg/column      - Column, table and scalar containers, type dispatch
//	pkg/orc         - ORC reader and writer
//	pkg/parquet     - Parquet reader and writer
//	pkg/ops         - Relational operations over tables
//	pkg/arrowconv   - Conversion to and from Apache Arrow arrays
//	pkg/compression - Block codecs shared by the file formats
//	pkg/iocore      - Datasource and sink abstractions
//	pkg/mmap        - Memory-mapped datasource
//	pkg/config      - Engine configuration with YAML and env loading
//	pkg/errors      - Structured error handling
//	pkg/logger      - Structured logging
//	pkg/metrics     - Prometheus metrics for I/O and operators
//
// The stratum command in cmd/stratum inspects, prints and converts files.
package stratum
