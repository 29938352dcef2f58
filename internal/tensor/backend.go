package tensor

// Backend is the narrow kernel-dispatch interface the tensor core consumes.
// Given a tensor's dtype and device, a Backend supplies the concrete math;
// everything above it (autograd, bindings) is backend-agnostic.
//
// Contract: elementwise and reduction kernels take contiguous operands;
// callers materialize views first (GatherStrided does exactly that). Kernels
// panic on contract violations, mirroring the misuse-is-a-bug policy of the
// core.
type Backend interface {
	// Elementwise operations on matching contiguous shapes.
	Add(a, b *TensorImpl) *TensorImpl
	Mul(a, b *TensorImpl) *TensorImpl
	Neg(x *TensorImpl) *TensorImpl

	// Scalar variants.
	AddScalar(x *TensorImpl, s float64) *TensorImpl
	MulScalar(x *TensorImpl, s float64) *TensorImpl

	// Sum reduces to a 0-dimensional scalar tensor.
	Sum(x *TensorImpl) *TensorImpl

	// Fill sets every element of x to v, in place.
	Fill(x *TensorImpl, v float64)

	// BroadcastTo materializes x broadcast to shape.
	BroadcastTo(x *TensorImpl, shape Shape) *TensorImpl

	// Clone materializes a contiguous deep copy of x (views included).
	Clone(x *TensorImpl) *TensorImpl

	// AddInto accumulates src into dst element-wise, in place.
	AddInto(dst, src *TensorImpl)

	// GatherStrided materializes a contiguous tensor of the given sizes by
	// reading x's storage through (sizes, strides, offset).
	GatherStrided(x *TensorImpl, sizes, strides []int, offset int) *TensorImpl

	// ScatterStrided writes contiguous src into dst's storage through
	// (sizes, strides, offset); ScatterAddStrided accumulates instead.
	ScatterStrided(dst *TensorImpl, sizes, strides []int, offset int, src *TensorImpl)
	ScatterAddStrided(dst *TensorImpl, sizes, strides []int, offset int, src *TensorImpl)

	// Metadata.
	Name() string
	Device() Device
}
