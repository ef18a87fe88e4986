package column

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Fn is a type-resolved implementation of an operation.
type Fn func(args ...interface{}) (interface{}, error)

// DispatchTable maps a runtime type tag to the implementation registered
// for it. Dispatching an unregistered type raises an unsupported-operation
// error naming the operation and type; it never silently no-ops.
type DispatchTable struct {
	op  string
	fns [NumTypes]Fn
}

// NewDispatchTable creates a dispatch table for the named operation.
func NewDispatchTable(op string) *DispatchTable {
	return &DispatchTable{op: op}
}

// Register binds fn to a type tag and returns the table for chaining.
func (d *DispatchTable) Register(dt DataType, fn Fn) *DispatchTable {
	d.fns[dt] = fn
	return d
}

// RegisterMany binds fn to several type tags at once.
func (d *DispatchTable) RegisterMany(dts []DataType, fn Fn) *DispatchTable {
	for _, dt := range dts {
		d.fns[dt] = fn
	}
	return d
}

// Dispatch invokes the implementation registered for dt.
func (d *DispatchTable) Dispatch(dt DataType, args ...interface{}) (interface{}, error) {
	if dt >= NumTypes || d.fns[dt] == nil {
		return nil, errors.Newf(errors.ErrorTypeUnsupported,
			"operation %q has no implementation for type %s", d.op, dt)
	}
	return d.fns[dt](args...)
}

// DoubleDispatchTable resolves two independent type tags by nesting two
// single dispatches, avoiding NxN explicit registrations for heterogeneous
// binary operations.
type DoubleDispatchTable struct {
	op    string
	inner [NumTypes]*DispatchTable
}

// NewDoubleDispatchTable creates a double-dispatch table for the named
// operation.
func NewDoubleDispatchTable(op string) *DoubleDispatchTable {
	return &DoubleDispatchTable{op: op}
}

// Register binds fn to the (first, second) type pair.
func (d *DoubleDispatchTable) Register(first, second DataType, fn Fn) *DoubleDispatchTable {
	if d.inner[first] == nil {
		d.inner[first] = NewDispatchTable(d.op)
	}
	d.inner[first].Register(second, fn)
	return d
}

// Dispatch resolves the first tag, then the second.
func (d *DoubleDispatchTable) Dispatch(first, second DataType, args ...interface{}) (interface{}, error) {
	if first >= NumTypes || d.inner[first] == nil {
		return nil, errors.Newf(errors.ErrorTypeUnsupported,
			"operation %q has no implementation for type pair (%s, %s)", d.op, first, second)
	}
	out, err := d.inner[first].Dispatch(second, args...)
	if err != nil && errors.IsUnsupported(err) {
		return nil, errors.Newf(errors.ErrorTypeUnsupported,
			"operation %q has no implementation for type pair (%s, %s)", d.op, first, second)
	}
	return out, err
}

// NumericTypes lists every integral and floating type tag, for bulk
// registration.
var NumericTypes = []DataType{
	Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64,
}
