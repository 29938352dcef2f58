package tensor

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// QScheme identifies the quantization scheme of a Quantizer.
type QScheme int

// Supported quantization schemes.
const (
	// PerTensorAffine uses a single scale/zero-point pair for the whole tensor.
	PerTensorAffine QScheme = iota
	// PerChannelAffine uses one scale/zero-point pair per slice along a
	// channel axis.
	PerChannelAffine
)

// String returns a human-readable scheme name.
func (q QScheme) String() string {
	switch q {
	case PerTensorAffine:
		return "per_tensor_affine"
	case PerChannelAffine:
		return "per_channel_affine"
	default:
		return "unknown"
	}
}

// Quantizer defines how raw storage bytes of a quantized tensor map to real
// values: real = (stored - zeroPoint) * scale.
type Quantizer struct {
	scheme     QScheme
	scales     []float64
	zeroPoints []int64
	axis       int // channel axis, PerChannelAffine only
}

// NewPerTensorAffineQuantizer creates a quantizer with a single scale and
// zero point.
func NewPerTensorAffineQuantizer(scale float64, zeroPoint int64) (*Quantizer, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("%w: quantizer scale must be positive, got %g", ErrInvalidArgument, scale)
	}
	return &Quantizer{
		scheme:     PerTensorAffine,
		scales:     []float64{scale},
		zeroPoints: []int64{zeroPoint},
	}, nil
}

// NewPerChannelAffineQuantizer creates a quantizer with one scale/zero-point
// pair per channel along the given axis.
func NewPerChannelAffineQuantizer(scales []float64, zeroPoints []int64, axis int) (*Quantizer, error) {
	if len(scales) == 0 || len(scales) != len(zeroPoints) {
		return nil, fmt.Errorf("%w: need matching non-empty scales (%d) and zero points (%d)",
			ErrInvalidArgument, len(scales), len(zeroPoints))
	}
	for i, s := range scales {
		if s <= 0 {
			return nil, fmt.Errorf("%w: quantizer scale for channel %d must be positive, got %g",
				ErrInvalidArgument, i, s)
		}
	}
	return &Quantizer{
		scheme:     PerChannelAffine,
		scales:     append([]float64(nil), scales...),
		zeroPoints: append([]int64(nil), zeroPoints...),
		axis:       axis,
	}, nil
}

// Scheme returns the quantization scheme.
func (q *Quantizer) Scheme() QScheme {
	return q.scheme
}

// Scale returns the scale of channel c (0 for per-tensor quantizers).
func (q *Quantizer) Scale(c int) float64 {
	return q.scales[c]
}

// ZeroPoint returns the zero point of channel c (0 for per-tensor quantizers).
func (q *Quantizer) ZeroPoint(c int) int64 {
	return q.zeroPoints[c]
}

// Axis returns the channel axis for per-channel quantizers.
func (q *Quantizer) Axis() int {
	return q.axis
}

// Quantize maps a real value to its stored uint8 representation under
// channel c's parameters.
func (q *Quantizer) Quantize(v float64, c int) uint8 {
	stored := int64(math.Round(v/q.scales[c])) + q.zeroPoints[c]
	return uint8(clamp(stored, 0, math.MaxUint8))
}

// Dequantize maps a stored uint8 value back to its real value under channel
// c's parameters.
func (q *Quantizer) Dequantize(stored uint8, c int) float64 {
	return float64(int64(stored)-q.zeroPoints[c]) * q.scales[c]
}

// clamp limits v to [lo, hi].
func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// QTensorImpl is the TensorImpl for quantized tensors: standard dense
// metadata plus the Quantizer that maps raw storage bytes to real values.
type QTensorImpl struct {
	*TensorImpl
	quantizer *Quantizer
}

// NewQTensorImpl allocates a contiguous quantized tensor.
func NewQTensorImpl(shape Shape, dtype DataType, device Device, quantizer *Quantizer) (*QTensorImpl, error) {
	if !dtype.IsQuantized() {
		return nil, fmt.Errorf("%w: QTensorImpl requires a quantized dtype, got %s", ErrInvalidArgument, dtype)
	}
	if quantizer == nil {
		return nil, fmt.Errorf("%w: QTensorImpl requires a quantizer", ErrInvalidArgument)
	}
	base, err := NewTensorImpl(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	return &QTensorImpl{TensorImpl: base, quantizer: quantizer}, nil
}

// Quantizer returns the tensor's quantizer.
func (t *QTensorImpl) Quantizer() *Quantizer {
	return t.quantizer
}

// ShallowCopyAndDetach produces an independent metadata view sharing storage,
// carrying the same quantizer.
func (t *QTensorImpl) ShallowCopyAndDetach() *QTensorImpl {
	return &QTensorImpl{
		TensorImpl: t.TensorImpl.ShallowCopyAndDetach(),
		quantizer:  t.quantizer,
	}
}

// ShallowCopyFrom overwrites this tensor's metadata, storage reference and
// quantizer from other, preserving identity.
func (t *QTensorImpl) ShallowCopyFrom(other *QTensorImpl) {
	t.TensorImpl.ShallowCopyFrom(other.TensorImpl)
	t.quantizer = other.quantizer
}
