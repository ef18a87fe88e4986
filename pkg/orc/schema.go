package orc

import (
	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
)

// kindToDType maps a schema node to the in-memory column type it decodes to.
func kindToDType(t *SchemaType) (column.DataType, error) {
	switch t.Kind {
	case KindBoolean:
		return column.Bool8, nil
	case KindByte:
		return column.Int8, nil
	case KindShort:
		return column.Int16, nil
	case KindInt, KindDate:
		return column.Int32, nil
	case KindLong:
		return column.Int64, nil
	case KindFloat:
		return column.Float32, nil
	case KindDouble:
		return column.Float64, nil
	case KindString, KindVarchar, KindChar:
		return column.String, nil
	case KindTimestamp:
		return column.TimestampNanos, nil
	case KindDecimal:
		return column.Decimal64, nil
	}
	return column.Empty, errors.Newf(errors.ErrorTypeUnsupported, "schema type kind %d", t.Kind)
}

// dtypeToKind maps an in-memory column type to the schema node written for it.
func dtypeToKind(dt column.DataType) (TypeKind, error) {
	switch dt {
	case column.Bool8:
		return KindBoolean, nil
	case column.Int8, column.Uint8:
		return KindByte, nil
	case column.Int16, column.Uint16:
		return KindShort, nil
	case column.Int32, column.Uint32:
		return KindInt, nil
	case column.Int64, column.Uint64, column.DurationNanos:
		return KindLong, nil
	case column.Float32:
		return KindFloat, nil
	case column.Float64:
		return KindDouble, nil
	case column.String:
		return KindString, nil
	case column.TimestampSeconds, column.TimestampMillis, column.TimestampMicros, column.TimestampNanos:
		return KindTimestamp, nil
	case column.Decimal64:
		return KindDecimal, nil
	}
	return KindInvalid, errors.Newf(errors.ErrorTypeUnsupported, "writing %s columns", dt)
}

// timestampScale returns the multiplier from a timestamp unit to nanoseconds.
func timestampScale(dt column.DataType) int64 {
	switch dt {
	case column.TimestampSeconds:
		return 1_000_000_000
	case column.TimestampMillis:
		return 1_000_000
	case column.TimestampMicros:
		return 1_000
	}
	return 1
}
