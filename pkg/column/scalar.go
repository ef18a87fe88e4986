package column

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Scalar is a single typed, nullable value. It mirrors a column's
// type/validity contract without a length dimension.
type Scalar struct {
	dtype DataType
	valid bool
	num   int64   // fixed-width integral payload, reinterpreted per type
	f     float64 // floating payload
	bytes []byte  // string payload
}

// NullScalar returns an invalid (null) scalar of the given type.
func NullScalar(dtype DataType) Scalar {
	return Scalar{dtype: dtype}
}

// Int64Scalar returns a valid int64-family scalar.
func Int64Scalar(dtype DataType, v int64) Scalar {
	return Scalar{dtype: dtype, valid: true, num: v}
}

// Float64Scalar returns a valid float64 scalar.
func Float64Scalar(v float64) Scalar {
	return Scalar{dtype: Float64, valid: true, f: v}
}

// BoolScalar returns a valid bool8 scalar.
func BoolScalar(v bool) Scalar {
	s := Scalar{dtype: Bool8, valid: true}
	if v {
		s.num = 1
	}
	return s
}

// StringScalar returns a valid string scalar backed by its own byte buffer.
func StringScalar(v string) Scalar {
	return Scalar{dtype: String, valid: true, bytes: []byte(v)}
}

// DType returns the scalar's type tag.
func (s Scalar) DType() DataType { return s.dtype }

// IsValid reports whether the scalar holds a value.
func (s Scalar) IsValid() bool { return s.valid }

// Int64 returns the integral payload.
func (s Scalar) Int64() (int64, error) {
	if !s.valid {
		return 0, errors.New(errors.ErrorTypeLogic, "reading value of null scalar")
	}
	return s.num, nil
}

// Float64 returns the floating payload.
func (s Scalar) Float64() (float64, error) {
	if !s.valid {
		return 0, errors.New(errors.ErrorTypeLogic, "reading value of null scalar")
	}
	if s.dtype == Float64 || s.dtype == Float32 {
		return s.f, nil
	}
	return float64(s.num), nil
}

// String returns the string payload.
func (s Scalar) String() (string, error) {
	if !s.valid {
		return "", errors.New(errors.ErrorTypeLogic, "reading value of null scalar")
	}
	if s.dtype != String {
		return "", errors.Newf(errors.ErrorTypeLogic, "scalar is %s, not string", s.dtype)
	}
	return string(s.bytes), nil
}
