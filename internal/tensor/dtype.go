// Package tensor provides the core tensor representation for the Ember ML framework:
// reference-counted storage, dense/sparse/quantized tensor metadata, and the
// narrow kernel-dispatch interface consumed by compute backends.
package tensor

// DType is a constraint for supported tensor element types.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~bool
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
	// Quantized types: raw storage bytes are mapped to real values by a
	// Quantizer (see quantized.go).
	QUInt8
	QInt8
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool, QUInt8, QInt8:
		return 1
	default:
		panic("unknown data type")
	}
}

// IsFloatingPoint reports whether the data type is a floating-point type.
// Only floating-point tensors may require gradients.
func (dt DataType) IsFloatingPoint() bool {
	return dt == Float32 || dt == Float64
}

// IsQuantized reports whether the data type stores quantized values.
func (dt DataType) IsQuantized() bool {
	return dt == QUInt8 || dt == QInt8
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case QUInt8:
		return "quint8"
	case QInt8:
		return "qint8"
	default:
		return "unknown"
	}
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
