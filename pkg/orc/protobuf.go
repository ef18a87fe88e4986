package orc

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// ORC metadata sections are protocol-buffer messages. The subset of the wire
// format used here is varint (base-128, little-endian groups, 0x80
// continuation), zigzag-mapped signed varints, and length-delimited bytes.
const (
	wireVarint = 0
	wireFixed64 = 1
	wireBytes  = 2
	wireFixed32 = 5
)

// maxSkipDepth bounds nesting while skipping unknown length-delimited
// fields, so corrupt lengths cannot recurse unboundedly.
const maxSkipDepth = 10

// pbReader decodes protobuf messages from an in-memory section.
type pbReader struct {
	buf []byte
	pos int
}

func newPbReader(buf []byte) *pbReader {
	return &pbReader{buf: buf}
}

func (r *pbReader) remaining() int { return len(r.buf) - r.pos }

func (r *pbReader) errTruncated(what string) error {
	return errors.Newf(errors.ErrorTypeMalformed,
		"truncated protobuf %s at offset %d of %d", what, r.pos, len(r.buf))
}

// readUvarint decodes an unsigned base-128 varint.
func (r *pbReader) readUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		if r.pos >= len(r.buf) {
			return 0, r.errTruncated("varint")
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New(errors.ErrorTypeMalformed, "protobuf varint overflows 64 bits")
		}
	}
}

// readVarint decodes a zigzag-mapped signed varint.
func (r *pbReader) readVarint() (int64, error) {
	u, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// readBytes decodes a length-delimited byte field. The returned slice
// aliases the reader's buffer.
func (r *pbReader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) {
		return nil, r.errTruncated("bytes field")
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *pbReader) readString() (string, error) {
	b, err := r.readBytes()
	return string(b), err
}

// readFixed64 decodes an 8-byte little-endian field.
func (r *pbReader) readFixed64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, r.errTruncated("fixed64")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.buf[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return v, nil
}

// readPackedU64 decodes a packed repeated varint field.
func (r *pbReader) readPackedU64() ([]uint64, error) {
	body, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	inner := newPbReader(body)
	var out []uint64
	for inner.remaining() > 0 {
		v, err := inner.readUvarint()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// skipField consumes an unknown field's payload given its wire type.
func (r *pbReader) skipField(wire int, depth int) error {
	if depth > maxSkipDepth {
		return errors.New(errors.ErrorTypeMalformed, "protobuf nesting exceeds skip depth")
	}
	switch wire {
	case wireVarint:
		_, err := r.readUvarint()
		return err
	case wireFixed64:
		if r.remaining() < 8 {
			return r.errTruncated("fixed64")
		}
		r.pos += 8
		return nil
	case wireBytes:
		_, err := r.readBytes()
		return err
	case wireFixed32:
		if r.remaining() < 4 {
			return r.errTruncated("fixed32")
		}
		r.pos += 4
		return nil
	}
	return errors.Newf(errors.ErrorTypeMalformed, "protobuf wire type %d", wire)
}

// fieldFn decodes one occurrence of a known field into the target struct.
type fieldFn func(r *pbReader) error

// fieldOp binds a field number and expected wire type to its decoder.
type fieldOp struct {
	id   uint64
	wire int
	fn   fieldFn
}

// readStruct drives a message decode from a field table. Unknown fields are
// skipped; a known field with the wrong wire type is malformed input.
func (r *pbReader) readStruct(what string, fields []fieldOp) error {
	for r.remaining() > 0 {
		key, err := r.readUvarint()
		if err != nil {
			return err
		}
		id := key >> 3
		wire := int(key & 7)

		var op *fieldOp
		for i := range fields {
			if fields[i].id == id {
				op = &fields[i]
				break
			}
		}
		if op == nil {
			if err := r.skipField(wire, 0); err != nil {
				return errors.Wrapf(err, errors.ErrorTypeMalformed, "skipping %s field %d", what, id)
			}
			continue
		}
		if op.wire != wire {
			return errors.Newf(errors.ErrorTypeMalformed,
				"%s field %d has wire type %d, want %d", what, id, wire, op.wire)
		}
		if err := op.fn(r); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeMalformed, "decoding %s field %d", what, id)
		}
	}
	return nil
}

// pbWriter encodes protobuf messages, mirroring pbReader's encodings.
type pbWriter struct {
	buf []byte
}

func (w *pbWriter) bytes() []byte { return w.buf }

func (w *pbWriter) putUvarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *pbWriter) putVarint(v int64) {
	w.putUvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (w *pbWriter) key(id uint64, wire int) {
	w.putUvarint(id<<3 | uint64(wire))
}

func (w *pbWriter) fieldU64(id uint64, v uint64) {
	w.key(id, wireVarint)
	w.putUvarint(v)
}

func (w *pbWriter) fieldI64(id uint64, v int64) {
	w.key(id, wireVarint)
	w.putVarint(v)
}

func (w *pbWriter) fieldFixed64(id uint64, v uint64) {
	w.key(id, wireFixed64)
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(v>>(8*i)))
	}
}

func (w *pbWriter) fieldBytes(id uint64, b []byte) {
	w.key(id, wireBytes)
	w.putUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *pbWriter) fieldString(id uint64, s string) {
	w.fieldBytes(id, []byte(s))
}

func (w *pbWriter) fieldPackedU64(id uint64, vs []uint64) {
	var body pbWriter
	for _, v := range vs {
		body.putUvarint(v)
	}
	w.fieldBytes(id, body.bytes())
}
