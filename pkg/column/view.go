package column

import (
	"unsafe"

	"github.com/stratumdb/stratum/pkg/errors"
)

// View is a non-owning window into a column: a borrowed reference plus an
// offset and length. Views are created in O(1), never allocate, and never
// touch the backing buffers. A view's lifetime is bounded by the owning
// column's.
type View struct {
	col    *Column
	offset int
	length int
}

// NewView creates a view over col[offset : offset+length).
func NewView(col *Column, offset, length int) (View, error) {
	if offset < 0 || length < 0 || offset+length > col.length {
		return View{}, errors.Newf(errors.ErrorTypeLogic,
			"view [%d, %d+%d) out of range for column of length %d",
			offset, offset, length, col.length)
	}
	return View{col: col, offset: offset, length: length}, nil
}

// DType returns the viewed column's type.
func (v View) DType() DataType { return v.col.dtype }

// Size returns the number of rows in the view.
func (v View) Size() int { return v.length }

// Offset returns the view's starting row in the backing column.
func (v View) Offset() int { return v.offset }

// Column returns the backing column.
func (v View) Column() *Column { return v.col }

// Nullable reports whether the backing column carries a validity mask.
func (v View) Nullable() bool { return v.col.Nullable() }

// Slice narrows the view; O(1), no allocation, no null-count mutation.
func (v View) Slice(offset, length int) (View, error) {
	if offset < 0 || length < 0 || offset+length > v.length {
		return View{}, errors.Newf(errors.ErrorTypeLogic,
			"slice [%d, %d+%d) out of range for view of length %d",
			offset, offset, length, v.length)
	}
	return View{col: v.col, offset: v.offset + offset, length: length}, nil
}

// IsValid reports whether row i of the view is non-null.
func (v View) IsValid(i int) bool {
	return v.col.IsValid(v.offset + i)
}

// NullCount recomputes the range-local null count on demand. It does not
// consult or mutate the backing column's cached count.
func (v View) NullCount() int {
	if v.col.validity == nil {
		return 0
	}
	return v.length - CountSetBits(v.col.validity.Bytes(), v.offset, v.length)
}

// ViewValues reinterprets the viewed range of a fixed-width column as a
// typed slice.
func ViewValues[T any](v View) []T {
	all := Values[T](v.col)
	return all[v.offset : v.offset+v.length]
}

// ViewStringAt returns the string at view row i.
func ViewStringAt(v View, i int) string {
	return StringAt(v.col, v.offset+i)
}

// Mutable wraps a view with in-place element writes. Mutation never
// resizes; only existing rows may be written.
type Mutable struct {
	View
}

// MutableOf creates a mutable view over an owning column.
func MutableOf(col *Column) Mutable {
	return Mutable{View: col.View()}
}

// Set writes a fixed-width element at view row i.
func Set[T any](m Mutable, i int, value T) error {
	if i < 0 || i >= m.length {
		return errors.Newf(errors.ErrorTypeLogic, "write index %d out of range %d", i, m.length)
	}
	var zero T
	width := int(unsafe.Sizeof(zero))
	if width != SizeOf(m.col.dtype) {
		return errors.Newf(errors.ErrorTypeLogic,
			"element width %d does not match %s", width, m.col.dtype)
	}
	Values[T](m.col)[m.offset+i] = value
	return nil
}

// SetValid sets or clears row i's validity bit. The cached null count is
// invalidated.
func (m Mutable) SetValid(i int, valid bool) error {
	if m.col.validity == nil {
		return errors.New(errors.ErrorTypeLogic, "column has no validity mask")
	}
	if valid {
		SetBit(m.col.validity.Bytes(), m.offset+i)
	} else {
		ClearBit(m.col.validity.Bytes(), m.offset+i)
	}
	m.col.nullCount = UnknownNullCount
	return nil
}
