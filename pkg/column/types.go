// Package column implements stratum's columnar data model: typed, nullable
// arrays stored in flat buffers with owning and non-owning variants, plus
// the runtime type dispatch used by every operator.
package column

// DataType is the runtime tag identifying a column's physical type.
type DataType uint8

const (
	// Empty is a zero-length placeholder type
	Empty DataType = iota
	// Int8 is a signed 8-bit integer
	Int8
	// Int16 is a signed 16-bit integer
	Int16
	// Int32 is a signed 32-bit integer
	Int32
	// Int64 is a signed 64-bit integer
	Int64
	// Uint8 is an unsigned 8-bit integer
	Uint8
	// Uint16 is an unsigned 16-bit integer
	Uint16
	// Uint32 is an unsigned 32-bit integer
	Uint32
	// Uint64 is an unsigned 64-bit integer
	Uint64
	// Float32 is a 32-bit IEEE-754 value
	Float32
	// Float64 is a 64-bit IEEE-754 value
	Float64
	// Bool8 is a boolean stored as one byte
	Bool8
	// TimestampSeconds is seconds since the Unix epoch
	TimestampSeconds
	// TimestampMillis is milliseconds since the Unix epoch
	TimestampMillis
	// TimestampMicros is microseconds since the Unix epoch
	TimestampMicros
	// TimestampNanos is nanoseconds since the Unix epoch
	TimestampNanos
	// DurationNanos is a nanosecond duration
	DurationNanos
	// Decimal64 is a 64-bit scaled decimal
	Decimal64
	// String is variable-width UTF-8 data with an offsets child
	String
	// List is a nested list with offsets and element children
	List
	// Struct is a nested record with one child per field
	Struct
	// Dictionary32 stores int32 indices into a keys child
	Dictionary32

	// NumTypes is the number of distinct type tags
	NumTypes
)

var typeNames = [NumTypes]string{
	Empty:            "empty",
	Int8:             "int8",
	Int16:            "int16",
	Int32:            "int32",
	Int64:            "int64",
	Uint8:            "uint8",
	Uint16:           "uint16",
	Uint32:           "uint32",
	Uint64:           "uint64",
	Float32:          "float32",
	Float64:          "float64",
	Bool8:            "bool8",
	TimestampSeconds: "timestamp[s]",
	TimestampMillis:  "timestamp[ms]",
	TimestampMicros:  "timestamp[us]",
	TimestampNanos:   "timestamp[ns]",
	DurationNanos:    "duration[ns]",
	Decimal64:        "decimal64",
	String:           "string",
	List:             "list",
	Struct:           "struct",
	Dictionary32:     "dictionary32",
}

// String returns the canonical name of the type.
func (t DataType) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return "invalid"
}

var typeSizes = [NumTypes]int{
	Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Float32: 4, Float64: 8,
	Bool8:            1,
	TimestampSeconds: 8, TimestampMillis: 8, TimestampMicros: 8, TimestampNanos: 8,
	DurationNanos: 8,
	Decimal64:     8,
	Dictionary32:  4, // index width; keys live in the child
}

// SizeOf returns the fixed element width in bytes, or 0 for variable-width
// and nested types.
func SizeOf(t DataType) int {
	if t < NumTypes {
		return typeSizes[t]
	}
	return 0
}

// IsFixedWidth reports whether elements of t occupy a fixed byte width.
func IsFixedWidth(t DataType) bool { return SizeOf(t) > 0 }

// IsNested reports whether t carries child columns for its structure.
func IsNested(t DataType) bool {
	return t == String || t == List || t == Struct || t == Dictionary32
}

// IsNumeric reports whether t is an integral or floating type.
func IsNumeric(t DataType) bool {
	switch t {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64, Decimal64:
		return true
	}
	return false
}

// IsTimestamp reports whether t is a timestamp type.
func IsTimestamp(t DataType) bool {
	switch t {
	case TimestampSeconds, TimestampMillis, TimestampMicros, TimestampNanos:
		return true
	}
	return false
}
