package column

import (
	"unsafe"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// UnknownNullCount marks a null count that has not been computed yet.
// It is recomputed from the validity mask and cached on first query.
const UnknownNullCount = -1

// Column is the owning array type: a flat value buffer, an optional packed
// validity bitmask, and child columns whose number and types are fixed by
// the data type.
//
// Fixed-width types store values directly in the data buffer. String columns
// hold concatenated character bytes in the data buffer and an int32 offsets
// child of length+1. List columns hold an offsets child and an elements
// child. Struct columns hold one child per field and no data buffer.
// Dictionary32 columns hold int32 indices in the data buffer and a keys
// child of unique values.
type Column struct {
	dtype     DataType
	length    int
	nullCount int
	data      *memory.Buffer
	validity  *memory.Buffer
	children  []*Column
}

// New constructs a column and validates its invariants. The column takes
// ownership of the buffers and children.
func New(dtype DataType, length int, data, validity *memory.Buffer, nullCount int, children ...*Column) (*Column, error) {
	if length < 0 {
		return nil, errors.Newf(errors.ErrorTypeLogic, "column length %d is negative", length)
	}
	if nullCount != UnknownNullCount && (nullCount < 0 || nullCount > length) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"null count %d out of range for length %d", nullCount, length)
	}
	if validity == nil && nullCount > 0 {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"null count %d without a validity mask", nullCount)
	}
	if validity != nil && validity.Size() < BitmaskBytes(length) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"validity mask has %d bytes, need %d", validity.Size(), BitmaskBytes(length))
	}
	if err := checkChildren(dtype, length, children); err != nil {
		return nil, err
	}
	if validity == nil {
		nullCount = 0
	}
	return &Column{
		dtype:     dtype,
		length:    length,
		nullCount: nullCount,
		data:      data,
		validity:  validity,
		children:  children,
	}, nil
}

// checkChildren enforces the per-type child layout, including offsets
// monotonicity for variable-width types.
func checkChildren(dtype DataType, length int, children []*Column) error {
	switch dtype {
	case String:
		if len(children) != 1 {
			return errors.Newf(errors.ErrorTypeLogic,
				"string column needs exactly one offsets child, got %d", len(children))
		}
		return checkOffsets(children[0], length)
	case List:
		if len(children) != 2 {
			return errors.Newf(errors.ErrorTypeLogic,
				"list column needs offsets and elements children, got %d", len(children))
		}
		return checkOffsets(children[0], length)
	case Dictionary32:
		if len(children) != 1 {
			return errors.Newf(errors.ErrorTypeLogic,
				"dictionary column needs exactly one keys child, got %d", len(children))
		}
	case Struct:
		for i, ch := range children {
			if ch.length != length {
				return errors.Newf(errors.ErrorTypeLogic,
					"struct field %d has length %d, parent has %d", i, ch.length, length)
			}
		}
	default:
		if len(children) != 0 {
			return errors.Newf(errors.ErrorTypeLogic,
				"%s column cannot have children", dtype)
		}
	}
	return nil
}

func checkOffsets(offsets *Column, length int) error {
	if offsets.dtype != Int32 {
		return errors.Newf(errors.ErrorTypeLogic,
			"offsets child must be int32, got %s", offsets.dtype)
	}
	if length > 0 && offsets.length != length+1 {
		return errors.Newf(errors.ErrorTypeLogic,
			"offsets child has %d entries, need %d", offsets.length, length+1)
	}
	offs := Values[int32](offsets)
	for i := 1; i < len(offs); i++ {
		if offs[i] < offs[i-1] {
			return errors.Newf(errors.ErrorTypeMalformed,
				"offsets not monotonic at %d: %d < %d", i, offs[i], offs[i-1])
		}
	}
	return nil
}

// DType returns the column's type tag.
func (c *Column) DType() DataType { return c.dtype }

// Size returns the number of rows.
func (c *Column) Size() int { return c.length }

// Nullable reports whether the column carries a validity mask.
func (c *Column) Nullable() bool { return c.validity != nil }

// NullCount returns the number of null rows, computing and caching it from
// the validity mask on first query.
func (c *Column) NullCount() int {
	if c.nullCount == UnknownNullCount {
		if c.validity == nil {
			c.nullCount = 0
		} else {
			c.nullCount = c.length - CountSetBits(c.validity.Bytes(), 0, c.length)
		}
	}
	return c.nullCount
}

// HasNulls reports whether any row is null.
func (c *Column) HasNulls() bool { return c.NullCount() > 0 }

// Data returns the primary value buffer; nil for struct columns.
func (c *Column) Data() *memory.Buffer { return c.data }

// Validity returns the validity mask buffer, or nil.
func (c *Column) Validity() *memory.Buffer { return c.validity }

// NumChildren returns the number of child columns.
func (c *Column) NumChildren() int { return len(c.children) }

// Child returns the i-th child column.
func (c *Column) Child(i int) *Column { return c.children[i] }

// IsValid reports whether row i is non-null.
func (c *Column) IsValid(i int) bool {
	if c.validity == nil {
		return true
	}
	return GetBit(c.validity.Bytes(), i)
}

// View returns a non-owning view over the whole column.
func (c *Column) View() View {
	return View{col: c, offset: 0, length: c.length}
}

// Release returns all buffers, including children's, to their resources.
func (c *Column) Release() {
	if c == nil {
		return
	}
	c.data.Close()
	c.validity.Close()
	for _, ch := range c.children {
		ch.Release()
	}
	c.children = nil
}

// Values reinterprets a fixed-width column's data buffer as a typed slice.
// The slice borrows the buffer; it is valid until the column is released.
func Values[T any](c *Column) []T {
	b := c.data.Bytes()
	if len(b) == 0 {
		return nil
	}
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if c.dtype != String && n > c.length {
		n = c.length
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// StringAt returns the string value at row i of a string column. The row's
// validity is not consulted.
func StringAt(c *Column, i int) string {
	offs := Values[int32](c.children[0])
	return string(c.data.Bytes()[offs[i]:offs[i+1]])
}
