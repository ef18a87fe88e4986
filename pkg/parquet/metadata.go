package parquet

// PhysicalType is a column chunk's storage type.
type PhysicalType int32

const (
	TypeBoolean           PhysicalType = 0
	TypeInt32             PhysicalType = 1
	TypeInt64             PhysicalType = 2
	TypeInt96             PhysicalType = 3
	TypeFloat             PhysicalType = 4
	TypeDouble            PhysicalType = 5
	TypeByteArray         PhysicalType = 6
	TypeFixedLenByteArray PhysicalType = 7
)

// ConvertedType annotates a physical type with logical meaning.
type ConvertedType int32

const (
	ConvertedNone             ConvertedType = -1
	ConvertedUTF8             ConvertedType = 0
	ConvertedTimestampMillis  ConvertedType = 9
	ConvertedTimestampMicros  ConvertedType = 10
	ConvertedInt8             ConvertedType = 15
	ConvertedInt16            ConvertedType = 16
	ConvertedInt32            ConvertedType = 17
	ConvertedInt64            ConvertedType = 18
)

// Repetition is a schema element's repetition type.
type Repetition int32

const (
	RepRequired Repetition = 0
	RepOptional Repetition = 1
	RepRepeated Repetition = 2
)

// Encoding identifies a page's value encoding.
type Encoding int32

const (
	EncodingPlain Encoding = 0
	EncodingRLE   Encoding = 3
)

// Codec identifies a column chunk's page compression.
type Codec int32

const (
	CodecUncompressed Codec = 0
	CodecSnappy       Codec = 1
	CodecGzip         Codec = 2
	CodecZstd         Codec = 6
)

// PageType identifies a page header's variant.
type PageType int32

const (
	PageData       PageType = 0
	PageIndex      PageType = 1
	PageDictionary PageType = 2
)

// SchemaElement is one node of the flattened depth-first schema tree.
type SchemaElement struct {
	Type           PhysicalType
	TypeLength     int32
	RepetitionType Repetition
	Name           string
	NumChildren    int32
	ConvertedType  ConvertedType

	// Derived during schema initialization.
	Parent   int
	MaxDef   int
	MaxRep   int
	HasType  bool
}

func (e *SchemaElement) decode(r *cpReader) error {
	e.ConvertedType = ConvertedNone
	e.RepetitionType = RepRequired
	return r.readStruct("SchemaElement", []cpField{
		{1, func(r *cpReader, _ int) error {
			v, err := r.readVarint()
			e.Type = PhysicalType(v)
			e.HasType = true
			return err
		}},
		{2, i32Field(&e.TypeLength)},
		{3, i32Field((*int32)(&e.RepetitionType))},
		{4, stringField(&e.Name)},
		{5, i32Field(&e.NumChildren)},
		{6, i32Field((*int32)(&e.ConvertedType))},
	})
}

func (e *SchemaElement) encode(s *structWriter) {
	if e.HasType {
		s.I32(1, int32(e.Type))
	}
	s.I32(3, int32(e.RepetitionType))
	s.String(4, e.Name)
	if e.NumChildren > 0 {
		s.I32(5, e.NumChildren)
	}
	if e.ConvertedType != ConvertedNone {
		s.I32(6, int32(e.ConvertedType))
	}
}

// KeyValue is one file-level user metadata pair.
type KeyValue struct {
	Key   string
	Value string
}

func (kv *KeyValue) decode(r *cpReader) error {
	return r.readStruct("KeyValue", []cpField{
		{1, stringField(&kv.Key)},
		{2, stringField(&kv.Value)},
	})
}

func (kv *KeyValue) encode(s *structWriter) {
	s.String(1, kv.Key)
	s.String(2, kv.Value)
}

// ColumnChunkMetaData describes one column's pages within a row group.
type ColumnChunkMetaData struct {
	Type                  PhysicalType
	Encodings             []Encoding
	PathInSchema          []string
	Codec                 Codec
	NumValues             int64
	TotalUncompressedSize int64
	TotalCompressedSize   int64
	DataPageOffset        int64
	DictionaryPageOffset  int64
}

func (m *ColumnChunkMetaData) decode(r *cpReader) error {
	return r.readStruct("ColumnChunkMetaData", []cpField{
		{1, i32Field((*int32)(&m.Type))},
		{2, func(r *cpReader, _ int) error {
			count, _, err := r.readListHeader()
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				v, err := r.readVarint()
				if err != nil {
					return err
				}
				m.Encodings = append(m.Encodings, Encoding(v))
			}
			return nil
		}},
		{3, func(r *cpReader, _ int) error {
			count, _, err := r.readListHeader()
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				s, err := r.readString()
				if err != nil {
					return err
				}
				m.PathInSchema = append(m.PathInSchema, s)
			}
			return nil
		}},
		{4, i32Field((*int32)(&m.Codec))},
		{5, i64Field(&m.NumValues)},
		{6, i64Field(&m.TotalUncompressedSize)},
		{7, i64Field(&m.TotalCompressedSize)},
		{9, i64Field(&m.DataPageOffset)},
		{11, i64Field(&m.DictionaryPageOffset)},
	})
}

func (m *ColumnChunkMetaData) encode(s *structWriter) {
	s.I32(1, int32(m.Type))
	s.ListHeader(2, len(m.Encodings), fldI32)
	for _, e := range m.Encodings {
		s.w.putVarint(int64(e))
	}
	s.ListHeader(3, len(m.PathInSchema), fldBinary)
	for _, p := range m.PathInSchema {
		s.w.putUvarint(uint64(len(p)))
		s.w.buf = append(s.w.buf, p...)
	}
	s.I32(4, int32(m.Codec))
	s.I64(5, m.NumValues)
	s.I64(6, m.TotalUncompressedSize)
	s.I64(7, m.TotalCompressedSize)
	s.I64(9, m.DataPageOffset)
	if m.DictionaryPageOffset > 0 {
		s.I64(11, m.DictionaryPageOffset)
	}
}

// ColumnChunk wraps chunk metadata with its file position.
type ColumnChunk struct {
	FileOffset int64
	MetaData   ColumnChunkMetaData

	// Derived: the schema element this chunk binds to.
	SchemaIdx int
}

func (c *ColumnChunk) decode(r *cpReader) error {
	return r.readStruct("ColumnChunk", []cpField{
		{2, i64Field(&c.FileOffset)},
		{3, func(r *cpReader, _ int) error { return c.MetaData.decode(r) }},
	})
}

func (c *ColumnChunk) encode(s *structWriter) {
	s.I64(2, c.FileOffset)
	s.StructField(3, c.MetaData.encode)
}

// RowGroup groups one horizontal slice of every column.
type RowGroup struct {
	Columns       []ColumnChunk
	TotalByteSize int64
	NumRows       int64
}

func (g *RowGroup) decode(r *cpReader) error {
	return r.readStruct("RowGroup", []cpField{
		{1, structListField(&g.Columns, (*ColumnChunk).decode)},
		{2, i64Field(&g.TotalByteSize)},
		{3, i64Field(&g.NumRows)},
	})
}

func (g *RowGroup) encode(s *structWriter) {
	s.ListHeader(1, len(g.Columns), fldStruct)
	for i := range g.Columns {
		inner := s.w.beginStruct()
		g.Columns[i].encode(&inner)
		s.w.putByte(0)
	}
	s.I64(2, g.TotalByteSize)
	s.I64(3, g.NumRows)
}

// FileMetaData is the file footer.
type FileMetaData struct {
	Version          int32
	Schema           []SchemaElement
	NumRows          int64
	RowGroups        []RowGroup
	KeyValueMetadata []KeyValue
	CreatedBy        string
}

func (f *FileMetaData) decode(r *cpReader) error {
	return r.readStruct("FileMetaData", []cpField{
		{1, i32Field(&f.Version)},
		{2, structListField(&f.Schema, (*SchemaElement).decode)},
		{3, i64Field(&f.NumRows)},
		{4, structListField(&f.RowGroups, (*RowGroup).decode)},
		{5, structListField(&f.KeyValueMetadata, (*KeyValue).decode)},
		{6, stringField(&f.CreatedBy)},
	})
}

func (f *FileMetaData) encode(w *cpWriter) {
	s := w.beginStruct()
	s.I32(1, f.Version)
	s.ListHeader(2, len(f.Schema), fldStruct)
	for i := range f.Schema {
		inner := w.beginStruct()
		f.Schema[i].encode(&inner)
		w.putByte(0)
	}
	s.I64(3, f.NumRows)
	s.ListHeader(4, len(f.RowGroups), fldStruct)
	for i := range f.RowGroups {
		inner := w.beginStruct()
		f.RowGroups[i].encode(&inner)
		w.putByte(0)
	}
	if len(f.KeyValueMetadata) > 0 {
		s.ListHeader(5, len(f.KeyValueMetadata), fldStruct)
		for i := range f.KeyValueMetadata {
			inner := w.beginStruct()
			f.KeyValueMetadata[i].encode(&inner)
			w.putByte(0)
		}
	}
	s.String(6, f.CreatedBy)
	s.End()
}

// structListField decodes a list of structs into dst.
func structListField[T any](dst *[]T, dec func(*T, *cpReader) error) func(*cpReader, int) error {
	return func(r *cpReader, _ int) error {
		count, _, err := r.readListHeader()
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			var item T
			if err := dec(&item, r); err != nil {
				return err
			}
			*dst = append(*dst, item)
		}
		return nil
	}
}

// DataPageHeader describes one data page's encodings.
type DataPageHeader struct {
	NumValues               int32
	Encoding                Encoding
	DefinitionLevelEncoding Encoding
	RepetitionLevelEncoding Encoding
}

func (h *DataPageHeader) decode(r *cpReader) error {
	return r.readStruct("DataPageHeader", []cpField{
		{1, i32Field(&h.NumValues)},
		{2, i32Field((*int32)(&h.Encoding))},
		{3, i32Field((*int32)(&h.DefinitionLevelEncoding))},
		{4, i32Field((*int32)(&h.RepetitionLevelEncoding))},
	})
}

func (h *DataPageHeader) encode(s *structWriter) {
	s.I32(1, h.NumValues)
	s.I32(2, int32(h.Encoding))
	s.I32(3, int32(h.DefinitionLevelEncoding))
	s.I32(4, int32(h.RepetitionLevelEncoding))
}

// DictionaryPageHeader describes one dictionary page.
type DictionaryPageHeader struct {
	NumValues int32
	Encoding  Encoding
}

func (h *DictionaryPageHeader) decode(r *cpReader) error {
	return r.readStruct("DictionaryPageHeader", []cpField{
		{1, i32Field(&h.NumValues)},
		{2, i32Field((*int32)(&h.Encoding))},
	})
}

// PageHeader prefixes every page in a column chunk.
type PageHeader struct {
	Type                 PageType
	UncompressedPageSize int32
	CompressedPageSize   int32
	DataPage             *DataPageHeader
	DictionaryPage       *DictionaryPageHeader
}

func (h *PageHeader) decode(r *cpReader) error {
	return r.readStruct("PageHeader", []cpField{
		{1, i32Field((*int32)(&h.Type))},
		{2, i32Field(&h.UncompressedPageSize)},
		{3, i32Field(&h.CompressedPageSize)},
		{5, func(r *cpReader, _ int) error {
			h.DataPage = &DataPageHeader{}
			return h.DataPage.decode(r)
		}},
		{7, func(r *cpReader, _ int) error {
			h.DictionaryPage = &DictionaryPageHeader{}
			return h.DictionaryPage.decode(r)
		}},
	})
}

func (h *PageHeader) encode(w *cpWriter) {
	s := w.beginStruct()
	s.I32(1, int32(h.Type))
	s.I32(2, h.UncompressedPageSize)
	s.I32(3, h.CompressedPageSize)
	if h.DataPage != nil {
		s.StructField(5, h.DataPage.encode)
	}
	s.End()
}
