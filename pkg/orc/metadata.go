package orc

import (
	"math"

	"github.com/stratumdb/stratum/pkg/compression"
)

// TypeKind identifies an ORC schema node's logical type.
type TypeKind int8

const (
	KindInvalid   TypeKind = -1
	KindBoolean   TypeKind = 0
	KindByte      TypeKind = 1
	KindShort     TypeKind = 2
	KindInt       TypeKind = 3
	KindLong      TypeKind = 4
	KindFloat     TypeKind = 5
	KindDouble    TypeKind = 6
	KindString    TypeKind = 7
	KindBinary    TypeKind = 8
	KindTimestamp TypeKind = 9
	KindList      TypeKind = 10
	KindMap       TypeKind = 11
	KindStruct    TypeKind = 12
	KindUnion     TypeKind = 13
	KindDecimal   TypeKind = 14
	KindDate      TypeKind = 15
	KindVarchar   TypeKind = 16
	KindChar      TypeKind = 17
)

// StreamKind identifies a stripe stream's role.
type StreamKind int8

const (
	StreamPresent        StreamKind = 0
	StreamData           StreamKind = 1
	StreamLength         StreamKind = 2
	StreamDictionaryData StreamKind = 3
	StreamSecondary      StreamKind = 5
	StreamRowIndex       StreamKind = 6
)

// EncodingKind identifies how a column's streams are encoded.
type EncodingKind int8

const (
	EncodingDirect     EncodingKind = 0
	EncodingDictionary EncodingKind = 1
)

// PostScript is the uncompressed tail record locating the footer.
type PostScript struct {
	FooterLength         uint64
	Compression          compression.Kind
	CompressionBlockSize uint64
	Version              []uint64
	MetadataLength       uint64
	Magic                string
}

func (p *PostScript) decode(r *pbReader) error {
	return r.readStruct("PostScript", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { p.FooterLength, err = r.readUvarint(); return }},
		{2, wireVarint, func(r *pbReader) error {
			v, err := r.readUvarint()
			p.Compression = compression.Kind(v)
			return err
		}},
		{3, wireVarint, func(r *pbReader) (err error) { p.CompressionBlockSize, err = r.readUvarint(); return }},
		{4, wireBytes, func(r *pbReader) (err error) { p.Version, err = r.readPackedU64(); return }},
		{5, wireVarint, func(r *pbReader) (err error) { p.MetadataLength, err = r.readUvarint(); return }},
		{8000, wireBytes, func(r *pbReader) (err error) { p.Magic, err = r.readString(); return }},
	})
}

func (p *PostScript) encode(w *pbWriter) {
	w.fieldU64(1, p.FooterLength)
	w.fieldU64(2, uint64(p.Compression))
	if p.Compression != compression.None {
		w.fieldU64(3, p.CompressionBlockSize)
	}
	w.fieldPackedU64(4, p.Version)
	w.fieldU64(5, p.MetadataLength)
	w.fieldString(8000, p.Magic)
}

// StripeInformation locates one stripe inside the file.
type StripeInformation struct {
	Offset       uint64
	IndexLength  uint64
	DataLength   uint64
	FooterLength uint64
	NumberOfRows uint64
}

func (s *StripeInformation) decode(r *pbReader) error {
	return r.readStruct("StripeInformation", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { s.Offset, err = r.readUvarint(); return }},
		{2, wireVarint, func(r *pbReader) (err error) { s.IndexLength, err = r.readUvarint(); return }},
		{3, wireVarint, func(r *pbReader) (err error) { s.DataLength, err = r.readUvarint(); return }},
		{4, wireVarint, func(r *pbReader) (err error) { s.FooterLength, err = r.readUvarint(); return }},
		{5, wireVarint, func(r *pbReader) (err error) { s.NumberOfRows, err = r.readUvarint(); return }},
	})
}

func (s *StripeInformation) encode(w *pbWriter) {
	w.fieldU64(1, s.Offset)
	w.fieldU64(2, s.IndexLength)
	w.fieldU64(3, s.DataLength)
	w.fieldU64(4, s.FooterLength)
	w.fieldU64(5, s.NumberOfRows)
}

// SchemaType is one node of the flattened pre-order schema tree.
type SchemaType struct {
	Kind          TypeKind
	Subtypes      []uint64
	FieldNames    []string
	MaximumLength uint64
	Precision     uint64
	Scale         uint64

	// Parent index, filled in after decode; -1 for the root.
	Parent int
}

func (t *SchemaType) decode(r *pbReader) error {
	t.Kind = KindInvalid
	return r.readStruct("Type", []fieldOp{
		{1, wireVarint, func(r *pbReader) error {
			v, err := r.readUvarint()
			t.Kind = TypeKind(v)
			return err
		}},
		{2, wireBytes, func(r *pbReader) (err error) { t.Subtypes, err = r.readPackedU64(); return }},
		{3, wireBytes, func(r *pbReader) error {
			s, err := r.readString()
			t.FieldNames = append(t.FieldNames, s)
			return err
		}},
		{4, wireVarint, func(r *pbReader) (err error) { t.MaximumLength, err = r.readUvarint(); return }},
		{5, wireVarint, func(r *pbReader) (err error) { t.Precision, err = r.readUvarint(); return }},
		{6, wireVarint, func(r *pbReader) (err error) { t.Scale, err = r.readUvarint(); return }},
	})
}

func (t *SchemaType) encode(w *pbWriter) {
	w.fieldU64(1, uint64(t.Kind))
	if len(t.Subtypes) > 0 {
		w.fieldPackedU64(2, t.Subtypes)
	}
	for _, name := range t.FieldNames {
		w.fieldString(3, name)
	}
	if t.Precision > 0 {
		w.fieldU64(5, t.Precision)
		w.fieldU64(6, t.Scale)
	}
}

// UserMetadataItem is one key-value pair of file-level user metadata.
type UserMetadataItem struct {
	Name  string
	Value []byte
}

func (m *UserMetadataItem) decode(r *pbReader) error {
	return r.readStruct("UserMetadataItem", []fieldOp{
		{1, wireBytes, func(r *pbReader) (err error) { m.Name, err = r.readString(); return }},
		{2, wireBytes, func(r *pbReader) (err error) { m.Value, err = r.readBytes(); return }},
	})
}

func (m *UserMetadataItem) encode(w *pbWriter) {
	w.fieldString(1, m.Name)
	w.fieldBytes(2, m.Value)
}

// ColumnStatistics carries per-column value statistics.
type ColumnStatistics struct {
	NumberOfValues uint64
	HasNull        bool
	Int            *IntegerStatistics
	Double         *DoubleStatistics
	Str            *StringStatistics
}

// IntegerStatistics is min/max/sum for integral columns.
type IntegerStatistics struct {
	Minimum, Maximum, Sum int64
	HasMinMax, HasSum     bool
}

// DoubleStatistics is min/max/sum for floating columns.
type DoubleStatistics struct {
	Minimum, Maximum, Sum float64
	HasMinMax             bool
}

// StringStatistics is min/max and total character length for string columns.
type StringStatistics struct {
	Minimum, Maximum string
	Sum              int64
	HasMinMax        bool
}

func (s *IntegerStatistics) decode(r *pbReader) error {
	return r.readStruct("IntegerStatistics", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) {
			s.Minimum, err = r.readVarint()
			s.HasMinMax = true
			return
		}},
		{2, wireVarint, func(r *pbReader) (err error) { s.Maximum, err = r.readVarint(); return }},
		{3, wireVarint, func(r *pbReader) (err error) {
			s.Sum, err = r.readVarint()
			s.HasSum = true
			return
		}},
	})
}

func (s *IntegerStatistics) encode(w *pbWriter) {
	if s.HasMinMax {
		w.fieldI64(1, s.Minimum)
		w.fieldI64(2, s.Maximum)
	}
	if s.HasSum {
		w.fieldI64(3, s.Sum)
	}
}

func (s *DoubleStatistics) decode(r *pbReader) error {
	return r.readStruct("DoubleStatistics", []fieldOp{
		{1, wireFixed64, func(r *pbReader) error {
			v, err := r.readFixed64()
			s.Minimum = math.Float64frombits(v)
			s.HasMinMax = true
			return err
		}},
		{2, wireFixed64, func(r *pbReader) error {
			v, err := r.readFixed64()
			s.Maximum = math.Float64frombits(v)
			return err
		}},
		{3, wireFixed64, func(r *pbReader) error {
			v, err := r.readFixed64()
			s.Sum = math.Float64frombits(v)
			return err
		}},
	})
}

func (s *DoubleStatistics) encode(w *pbWriter) {
	if s.HasMinMax {
		w.fieldFixed64(1, math.Float64bits(s.Minimum))
		w.fieldFixed64(2, math.Float64bits(s.Maximum))
	}
	w.fieldFixed64(3, math.Float64bits(s.Sum))
}

func (s *StringStatistics) decode(r *pbReader) error {
	return r.readStruct("StringStatistics", []fieldOp{
		{1, wireBytes, func(r *pbReader) (err error) {
			s.Minimum, err = r.readString()
			s.HasMinMax = true
			return
		}},
		{2, wireBytes, func(r *pbReader) (err error) { s.Maximum, err = r.readString(); return }},
		{3, wireVarint, func(r *pbReader) (err error) { s.Sum, err = r.readVarint(); return }},
	})
}

func (s *StringStatistics) encode(w *pbWriter) {
	if s.HasMinMax {
		w.fieldString(1, s.Minimum)
		w.fieldString(2, s.Maximum)
	}
	w.fieldI64(3, s.Sum)
}

func (c *ColumnStatistics) decode(r *pbReader) error {
	return r.readStruct("ColumnStatistics", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { c.NumberOfValues, err = r.readUvarint(); return }},
		{2, wireBytes, func(r *pbReader) error {
			body, err := r.readBytes()
			if err != nil {
				return err
			}
			c.Int = &IntegerStatistics{}
			return c.Int.decode(newPbReader(body))
		}},
		{3, wireBytes, func(r *pbReader) error {
			body, err := r.readBytes()
			if err != nil {
				return err
			}
			c.Double = &DoubleStatistics{}
			return c.Double.decode(newPbReader(body))
		}},
		{4, wireBytes, func(r *pbReader) error {
			body, err := r.readBytes()
			if err != nil {
				return err
			}
			c.Str = &StringStatistics{}
			return c.Str.decode(newPbReader(body))
		}},
		{10, wireVarint, func(r *pbReader) error {
			v, err := r.readUvarint()
			c.HasNull = v != 0
			return err
		}},
	})
}

func (c *ColumnStatistics) encode(w *pbWriter) {
	w.fieldU64(1, c.NumberOfValues)
	if c.Int != nil {
		var body pbWriter
		c.Int.encode(&body)
		w.fieldBytes(2, body.bytes())
	}
	if c.Double != nil {
		var body pbWriter
		c.Double.encode(&body)
		w.fieldBytes(3, body.bytes())
	}
	if c.Str != nil {
		var body pbWriter
		c.Str.encode(&body)
		w.fieldBytes(4, body.bytes())
	}
	if c.HasNull {
		w.fieldU64(10, 1)
	}
}

// FileFooter is the file-level footer: schema, stripe directory, statistics.
type FileFooter struct {
	HeaderLength   uint64
	ContentLength  uint64
	Stripes        []StripeInformation
	Types          []SchemaType
	Metadata       []UserMetadataItem
	NumberOfRows   uint64
	Statistics     []ColumnStatistics
	RowIndexStride uint64
}

func decodeSub[T any](dst *[]T, dec func(*T, *pbReader) error) fieldFn {
	return func(r *pbReader) error {
		body, err := r.readBytes()
		if err != nil {
			return err
		}
		var item T
		if err := dec(&item, newPbReader(body)); err != nil {
			return err
		}
		*dst = append(*dst, item)
		return nil
	}
}

func (f *FileFooter) decode(r *pbReader) error {
	return r.readStruct("FileFooter", []fieldOp{
		{1, wireVarint, func(r *pbReader) (err error) { f.HeaderLength, err = r.readUvarint(); return }},
		{2, wireVarint, func(r *pbReader) (err error) { f.ContentLength, err = r.readUvarint(); return }},
		{3, wireBytes, decodeSub(&f.Stripes, (*StripeInformation).decode)},
		{4, wireBytes, decodeSub(&f.Types, (*SchemaType).decode)},
		{5, wireBytes, decodeSub(&f.Metadata, (*UserMetadataItem).decode)},
		{6, wireVarint, func(r *pbReader) (err error) { f.NumberOfRows, err = r.readUvarint(); return }},
		{7, wireBytes, decodeSub(&f.Statistics, (*ColumnStatistics).decode)},
		{8, wireVarint, func(r *pbReader) (err error) { f.RowIndexStride, err = r.readUvarint(); return }},
	})
}

func encodeSub[T any](w *pbWriter, id uint64, items []T, enc func(*T, *pbWriter)) {
	for i := range items {
		var body pbWriter
		enc(&items[i], &body)
		w.fieldBytes(id, body.bytes())
	}
}

func (f *FileFooter) encode(w *pbWriter) {
	w.fieldU64(1, f.HeaderLength)
	w.fieldU64(2, f.ContentLength)
	encodeSub(w, 3, f.Stripes, (*StripeInformation).encode)
	encodeSub(w, 4, f.Types, (*SchemaType).encode)
	encodeSub(w, 5, f.Metadata, (*UserMetadataItem).encode)
	w.fieldU64(6, f.NumberOfRows)
	encodeSub(w, 7, f.Statistics, (*ColumnStatistics).encode)
	w.fieldU64(8, f.RowIndexStride)
}

// StreamInfo describes one stream within a stripe, in file order.
type StreamInfo struct {
	Kind   StreamKind
	Column uint64
	Length uint64
}

func (s *StreamInfo) decode(r *pbReader) error {
	return r.readStruct("Stream", []fieldOp{
		{1, wireVarint, func(r *pbReader) error {
			v, err := r.readUvarint()
			s.Kind = StreamKind(v)
			return err
		}},
		{2, wireVarint, func(r *pbReader) (err error) { s.Column, err = r.readUvarint(); return }},
		{3, wireVarint, func(r *pbReader) (err error) { s.Length, err = r.readUvarint(); return }},
	})
}

func (s *StreamInfo) encode(w *pbWriter) {
	w.fieldU64(1, uint64(s.Kind))
	w.fieldU64(2, s.Column)
	w.fieldU64(3, s.Length)
}

// ColumnEncoding records how one column's streams were encoded.
type ColumnEncoding struct {
	Kind           EncodingKind
	DictionarySize uint64
}

func (c *ColumnEncoding) decode(r *pbReader) error {
	return r.readStruct("ColumnEncoding", []fieldOp{
		{1, wireVarint, func(r *pbReader) error {
			v, err := r.readUvarint()
			c.Kind = EncodingKind(v)
			return err
		}},
		{2, wireVarint, func(r *pbReader) (err error) { c.DictionarySize, err = r.readUvarint(); return }},
	})
}

func (c *ColumnEncoding) encode(w *pbWriter) {
	w.fieldU64(1, uint64(c.Kind))
	if c.DictionarySize > 0 {
		w.fieldU64(2, c.DictionarySize)
	}
}

// StripeFooter is the per-stripe stream directory and encodings.
type StripeFooter struct {
	Streams        []StreamInfo
	Columns        []ColumnEncoding
	WriterTimezone string
}

func (s *StripeFooter) decode(r *pbReader) error {
	return r.readStruct("StripeFooter", []fieldOp{
		{1, wireBytes, decodeSub(&s.Streams, (*StreamInfo).decode)},
		{2, wireBytes, decodeSub(&s.Columns, (*ColumnEncoding).decode)},
		{3, wireBytes, func(r *pbReader) (err error) { s.WriterTimezone, err = r.readString(); return }},
	})
}

func (s *StripeFooter) encode(w *pbWriter) {
	encodeSub(w, 1, s.Streams, (*StreamInfo).encode)
	encodeSub(w, 2, s.Columns, (*ColumnEncoding).encode)
	w.fieldString(3, s.WriterTimezone)
}

// StripeStatistics is the per-stripe slice of column statistics.
type StripeStatistics struct {
	ColStats []ColumnStatistics
}

func (s *StripeStatistics) decode(r *pbReader) error {
	return r.readStruct("StripeStatistics", []fieldOp{
		{1, wireBytes, decodeSub(&s.ColStats, (*ColumnStatistics).decode)},
	})
}

func (s *StripeStatistics) encode(w *pbWriter) {
	encodeSub(w, 1, s.ColStats, (*ColumnStatistics).encode)
}

// Metadata is the optional file-level stripe statistics section.
type Metadata struct {
	StripeStats []StripeStatistics
}

func (m *Metadata) decode(r *pbReader) error {
	return r.readStruct("Metadata", []fieldOp{
		{1, wireBytes, decodeSub(&m.StripeStats, (*StripeStatistics).decode)},
	})
}

func (m *Metadata) encode(w *pbWriter) {
	encodeSub(w, 1, m.StripeStats, (*StripeStatistics).encode)
}
