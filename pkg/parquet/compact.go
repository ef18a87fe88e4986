package parquet

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Metadata sections use the thrift compact protocol. A field header packs
// the field-id delta in the high nibble and the element type in the low
// nibble; a zero byte ends the struct. A zero delta is followed by the
// absolute field id as a zigzag varint.
const (
	fldTrue   = 1
	fldFalse  = 2
	fldByte   = 3
	fldI16    = 4
	fldI32    = 5
	fldI64    = 6
	fldDouble = 7
	fldBinary = 8
	fldList   = 9
	fldSet    = 10
	fldMap    = 11
	fldStruct = 12
)

// maxSkipDepth bounds nesting while skipping unknown structures.
const maxSkipDepth = 10

type cpReader struct {
	buf []byte
	pos int
}

func newCpReader(buf []byte) *cpReader {
	return &cpReader{buf: buf}
}

func (r *cpReader) remaining() int { return len(r.buf) - r.pos }

func (r *cpReader) errTruncated(what string) error {
	return errors.Newf(errors.ErrorTypeMalformed,
		"truncated thrift %s at offset %d of %d", what, r.pos, len(r.buf))
}

func (r *cpReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.errTruncated("byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *cpReader) readUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New(errors.ErrorTypeMalformed, "thrift varint overflows 64 bits")
		}
	}
}

func (r *cpReader) readVarint() (int64, error) {
	u, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (r *cpReader) readBinary() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) {
		return nil, r.errTruncated("binary field")
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *cpReader) readString() (string, error) {
	b, err := r.readBinary()
	return string(b), err
}

// readListHeader returns the element count and element type. Counts of 15
// and above spill into a following varint.
func (r *cpReader) readListHeader() (int, int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	count := int(b >> 4)
	elem := int(b & 0xf)
	if count == 0xf {
		n, err := r.readUvarint()
		if err != nil {
			return 0, 0, err
		}
		count = int(n)
	}
	if count < 0 || count > r.remaining() {
		return 0, 0, errors.Newf(errors.ErrorTypeMalformed,
			"thrift list of %d elements in %d remaining bytes", count, r.remaining())
	}
	return count, elem, nil
}

// skip consumes a value of the given element type.
func (r *cpReader) skip(typ int, depth int) error {
	if depth > maxSkipDepth {
		return errors.New(errors.ErrorTypeMalformed, "thrift nesting exceeds skip depth")
	}
	switch typ {
	case fldTrue, fldFalse:
		return nil
	case fldByte:
		_, err := r.readByte()
		return err
	case fldI16, fldI32, fldI64:
		_, err := r.readVarint()
		return err
	case fldDouble:
		if r.remaining() < 8 {
			return r.errTruncated("double")
		}
		r.pos += 8
		return nil
	case fldBinary:
		_, err := r.readBinary()
		return err
	case fldList, fldSet:
		count, elem, err := r.readListHeader()
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if err := r.skip(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	case fldStruct:
		for {
			b, err := r.readByte()
			if err != nil {
				return err
			}
			if b == 0 {
				return nil
			}
			if b&0xf0 == 0 {
				if _, err := r.readVarint(); err != nil {
					return err
				}
			}
			if err := r.skip(int(b&0xf), depth+1); err != nil {
				return err
			}
		}
	}
	return errors.Newf(errors.ErrorTypeMalformed, "thrift element type %d", typ)
}

// cpField binds a field id to its decoder. The decoder receives the element
// type so boolean fields can distinguish the TRUE and FALSE headers.
type cpField struct {
	id int
	fn func(r *cpReader, typ int) error
}

// readStruct drives a struct decode from a field table, skipping unknown
// fields.
func (r *cpReader) readStruct(what string, fields []cpField) error {
	cur := 0
	for {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b == 0 {
			return nil
		}
		typ := int(b & 0xf)
		delta := int(b >> 4)
		if delta == 0 {
			abs, err := r.readVarint()
			if err != nil {
				return err
			}
			cur = int(abs)
		} else {
			cur += delta
		}

		var fn func(*cpReader, int) error
		for i := range fields {
			if fields[i].id == cur {
				fn = fields[i].fn
				break
			}
		}
		if fn == nil {
			if err := r.skip(typ, 0); err != nil {
				return errors.Wrapf(err, errors.ErrorTypeMalformed, "skipping %s field %d", what, cur)
			}
			continue
		}
		if err := fn(r, typ); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeMalformed, "decoding %s field %d", what, cur)
		}
	}
}

// i32Field adapts an int32 target to a field decoder.
func i32Field(dst *int32) func(*cpReader, int) error {
	return func(r *cpReader, _ int) error {
		v, err := r.readVarint()
		*dst = int32(v)
		return err
	}
}

func i64Field(dst *int64) func(*cpReader, int) error {
	return func(r *cpReader, _ int) error {
		v, err := r.readVarint()
		*dst = v
		return err
	}
}

func stringField(dst *string) func(*cpReader, int) error {
	return func(r *cpReader, _ int) error {
		s, err := r.readString()
		*dst = s
		return err
	}
}

func boolField(dst *bool) func(*cpReader, int) error {
	return func(r *cpReader, typ int) error {
		*dst = typ == fldTrue
		return nil
	}
}

// cpWriter encodes compact protocol structs, mirroring cpReader.
type cpWriter struct {
	buf []byte
}

func (w *cpWriter) bytes() []byte { return w.buf }

func (w *cpWriter) putByte(b byte) { w.buf = append(w.buf, b) }

func (w *cpWriter) putUvarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *cpWriter) putVarint(v int64) {
	w.putUvarint(uint64(v<<1) ^ uint64(v>>63))
}

// structWriter emits one struct's fields with delta-encoded ids. Fields
// must be emitted in increasing id order.
type structWriter struct {
	w    *cpWriter
	last int
}

func (w *cpWriter) beginStruct() structWriter {
	return structWriter{w: w}
}

func (s *structWriter) header(id, typ int) {
	delta := id - s.last
	if delta > 0 && delta <= 15 {
		s.w.putByte(byte(delta<<4 | typ))
	} else {
		s.w.putByte(byte(typ))
		s.w.putVarint(int64(id))
	}
	s.last = id
}

func (s *structWriter) I32(id int, v int32) {
	s.header(id, fldI32)
	s.w.putVarint(int64(v))
}

func (s *structWriter) I64(id int, v int64) {
	s.header(id, fldI64)
	s.w.putVarint(v)
}

func (s *structWriter) Bool(id int, v bool) {
	if v {
		s.header(id, fldTrue)
	} else {
		s.header(id, fldFalse)
	}
}

func (s *structWriter) Binary(id int, b []byte) {
	s.header(id, fldBinary)
	s.w.putUvarint(uint64(len(b)))
	s.w.buf = append(s.w.buf, b...)
}

func (s *structWriter) String(id int, v string) {
	s.Binary(id, []byte(v))
}

// ListHeader emits a list field header; the caller then writes count
// elements of the given type.
func (s *structWriter) ListHeader(id, count, elem int) {
	s.header(id, fldList)
	s.w.putListHeader(count, elem)
}

func (w *cpWriter) putListHeader(count, elem int) {
	if count < 15 {
		w.putByte(byte(count<<4 | elem))
	} else {
		w.putByte(byte(0xf0 | elem))
		w.putUvarint(uint64(count))
	}
}

// StructField emits a nested struct field via enc.
func (s *structWriter) StructField(id int, enc func(*structWriter)) {
	s.header(id, fldStruct)
	inner := s.w.beginStruct()
	enc(&inner)
	s.w.putByte(0)
}

func (s *structWriter) End() {
	s.w.putByte(0)
}
