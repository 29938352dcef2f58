package tensor

import (
	"fmt"
	"unsafe"
)

// TensorImpl is the dense strided tensor representation: shared Storage plus
// the metadata describing how elements are laid out in it (sizes, strides and
// an element offset). Views are TensorImpls sharing Storage with different
// metadata.
//
// numel and isContiguous are cached derived fields; every mutation of
// sizes/strides/storageOffset must go through a method that calls refresh().
type TensorImpl struct {
	storage       *Storage
	storageOffset int // element offset into storage
	sizes         []int
	strides       []int

	numel        int
	isContiguous bool

	dtype  DataType
	device Device

	isVariable      bool
	isWrappedNumber bool // scalar promoted to a 0-dim tensor by an operator
}

// NewTensorImpl allocates a contiguous dense tensor of the given shape.
func NewTensorImpl(shape Shape, dtype DataType, device Device) (*TensorImpl, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	storage, err := AllocateStorage(shape.NumElements()*dtype.Size(), dtype, device)
	if err != nil {
		return nil, err
	}

	t := &TensorImpl{
		storage: storage,
		sizes:   shape.Clone(),
		strides: shape.ComputeStrides(),
		dtype:   dtype,
		device:  device,
	}
	t.refresh()
	return t, nil
}

// NewTensorImplOfStorage creates a tensor over existing storage, taking shared
// ownership (the storage refcount is incremented).
func NewTensorImplOfStorage(storage *Storage, storageOffset int, sizes, strides []int) (*TensorImpl, error) {
	if len(sizes) != len(strides) {
		return nil, fmt.Errorf("%w: sizes (%d dims) and strides (%d dims) must have equal length",
			ErrInvalidArgument, len(sizes), len(strides))
	}
	if storageOffset < 0 {
		return nil, fmt.Errorf("%w: negative storage offset %d", ErrInvalidArgument, storageOffset)
	}

	storage.AddRef()
	t := &TensorImpl{
		storage:       storage,
		storageOffset: storageOffset,
		sizes:         append([]int(nil), sizes...),
		strides:       append([]int(nil), strides...),
		dtype:         storage.DType(),
		device:        storage.Device(),
	}
	t.refresh()
	return t, nil
}

// FromSlice creates a contiguous CPU tensor initialized from a Go slice.
func FromSlice[T DType](data []T, shape Shape) (*TensorImpl, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("%w: data length %d does not match shape %v (%d elements)",
			ErrInvalidArgument, len(data), shape, shape.NumElements())
	}

	var dummy T
	t, err := NewTensorImpl(shape, inferDataType(dummy), CPU)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		dst := unsafe.Slice((*T)(unsafe.Pointer(&t.storage.Data()[0])), len(data))
		copy(dst, data)
	}
	return t, nil
}

// WrapNumber creates a 0-dimensional tensor holding a scalar promoted by an
// operator, with the wrapped-number marker set.
func WrapNumber(value float64, dtype DataType, device Device) (*TensorImpl, error) {
	t, err := NewTensorImpl(Shape{}, dtype, device)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		t.AsFloat32()[0] = float32(value)
	case Float64:
		t.AsFloat64()[0] = value
	default:
		t.Release()
		return nil, fmt.Errorf("%w: cannot wrap a number as dtype %s", ErrInvalidArgument, dtype)
	}
	t.isWrappedNumber = true
	return t, nil
}

// Sizes returns the dimension extents. The slice is owned by the tensor.
func (t *TensorImpl) Sizes() Shape {
	return t.sizes
}

// Strides returns the per-dimension element strides.
func (t *TensorImpl) Strides() []int {
	return t.strides
}

// Dim returns the number of dimensions.
func (t *TensorImpl) Dim() int {
	return len(t.sizes)
}

// wrapDim normalizes a possibly-negative dimension index.
func (t *TensorImpl) wrapDim(d int) (int, error) {
	dim := t.Dim()
	wrapped := d
	if wrapped < 0 {
		wrapped += dim
	}
	if wrapped < 0 || wrapped >= dim {
		return 0, fmt.Errorf("%w: dimension %d out of range for %d-dimensional tensor", ErrIndex, d, dim)
	}
	return wrapped, nil
}

// Size returns the extent of dimension d, with negative-index wraparound.
func (t *TensorImpl) Size(d int) (int, error) {
	d, err := t.wrapDim(d)
	if err != nil {
		return 0, err
	}
	return t.sizes[d], nil
}

// Stride returns the stride of dimension d, with negative-index wraparound.
func (t *TensorImpl) Stride(d int) (int, error) {
	d, err := t.wrapDim(d)
	if err != nil {
		return 0, err
	}
	return t.strides[d], nil
}

// Numel returns the cached element count (product of sizes; 0 if any
// dimension is 0).
func (t *TensorImpl) Numel() int {
	return t.numel
}

// IsContiguous returns the cached contiguity flag.
func (t *TensorImpl) IsContiguous() bool {
	return t.isContiguous
}

// IsEmpty reports whether the tensor holds no elements.
func (t *TensorImpl) IsEmpty() bool {
	return t.numel == 0
}

// DType returns the element type.
func (t *TensorImpl) DType() DataType {
	return t.dtype
}

// Device returns the compute device.
func (t *TensorImpl) Device() Device {
	return t.device
}

// Storage returns the shared storage buffer.
func (t *TensorImpl) Storage() *Storage {
	return t.storage
}

// StorageOffset returns the element offset into storage.
func (t *TensorImpl) StorageOffset() int {
	return t.storageOffset
}

// IsVariable reports whether dispatch should treat this tensor as a
// differentiable variable. While a goroutine holds the non-variable mode
// guard, this reports false regardless of the flag (see mode.go).
func (t *TensorImpl) IsVariable() bool {
	return t.isVariable && !NonVariableModeEnabled()
}

// SetIsVariable marks the tensor as wrapped by autograd.
func (t *TensorImpl) SetIsVariable(v bool) {
	t.isVariable = v
}

// IsWrappedNumber reports whether this tensor is a scalar promoted by an
// operator.
func (t *TensorImpl) IsWrappedNumber() bool {
	return t.isWrappedNumber
}

// SetWrappedNumber sets the scalar-promotion marker.
func (t *TensorImpl) SetWrappedNumber(v bool) {
	t.isWrappedNumber = v
}

// computeContiguous re-derives contiguity from sizes and strides: walking
// dimensions from last to first with expected stride z (starting at 1),
// size-1 dimensions are skipped; any other dimension whose stride differs
// from z breaks contiguity, otherwise z accumulates by the dimension size.
func (t *TensorImpl) computeContiguous() bool {
	if t.IsEmpty() {
		return true
	}
	z := 1
	for d := t.Dim() - 1; d >= 0; d-- {
		if t.sizes[d] == 1 {
			continue
		}
		if t.strides[d] != z {
			return false
		}
		z *= t.sizes[d]
	}
	return true
}

// refresh recomputes the cached numel and contiguity flags. Must be called
// after every mutation of sizes/strides/storageOffset.
func (t *TensorImpl) refresh() {
	t.numel = Shape(t.sizes).NumElements()
	t.isContiguous = t.computeContiguous()
}

// SetSizesAndStrides replaces the shape metadata in place.
func (t *TensorImpl) SetSizesAndStrides(sizes, strides []int) error {
	if len(sizes) != len(strides) {
		return fmt.Errorf("%w: sizes (%d dims) and strides (%d dims) must have equal length",
			ErrInvalidArgument, len(sizes), len(strides))
	}
	t.sizes = append(t.sizes[:0], sizes...)
	t.strides = append(t.strides[:0], strides...)
	t.refresh()
	return nil
}

// SetStorageOffset moves the element offset into storage.
func (t *TensorImpl) SetStorageOffset(offset int) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative storage offset %d", ErrInvalidArgument, offset)
	}
	t.storageOffset = offset
	t.refresh()
	return nil
}

// MaybeZeroDim collapses an exactly-1-dimensional size-1 tensor to a
// 0-dimensional scalar in place when the condition holds. Used to preserve
// zero-dimensionality through legacy operator paths.
func (t *TensorImpl) MaybeZeroDim(condition bool) *TensorImpl {
	if condition && t.Dim() == 1 && t.sizes[0] == 1 {
		t.sizes = t.sizes[:0]
		t.strides = t.strides[:0]
		t.refresh()
	}
	return t
}

// ShallowCopyAndDetach produces a new TensorImpl sharing the same Storage,
// sizes, strides and offset: an independent metadata view for crossing an
// ownership boundary, with no data copy. The copy is not a variable.
func (t *TensorImpl) ShallowCopyAndDetach() *TensorImpl {
	t.storage.AddRef()
	c := &TensorImpl{
		storage:         t.storage,
		storageOffset:   t.storageOffset,
		sizes:           append([]int(nil), t.sizes...),
		strides:         append([]int(nil), t.strides...),
		dtype:           t.dtype,
		device:          t.device,
		isWrappedNumber: t.isWrappedNumber,
	}
	c.refresh()
	return c
}

// ShallowCopyFrom overwrites this tensor's storage reference and metadata
// from other, preserving the receiver's identity.
func (t *TensorImpl) ShallowCopyFrom(other *TensorImpl) {
	if other.storage != t.storage {
		other.storage.AddRef()
		if t.storage != nil {
			t.storage.Release()
		}
		t.storage = other.storage
	}
	t.storageOffset = other.storageOffset
	t.sizes = append(t.sizes[:0], other.sizes...)
	t.strides = append(t.strides[:0], other.strides...)
	t.dtype = other.dtype
	t.device = other.device
	t.isWrappedNumber = other.isWrappedNumber
	t.refresh()
}

// Narrow returns a view of this tensor restricted to length elements of
// dimension dim starting at start. The view shares storage; only metadata
// differs.
func (t *TensorImpl) Narrow(dim, start, length int) (*TensorImpl, error) {
	dim, err := t.wrapDim(dim)
	if err != nil {
		return nil, err
	}
	if start < 0 || length < 0 || start+length > t.sizes[dim] {
		return nil, fmt.Errorf("%w: narrow [%d, %d) out of range for dimension %d of size %d",
			ErrInvalidArgument, start, start+length, dim, t.sizes[dim])
	}

	sizes := append([]int(nil), t.sizes...)
	sizes[dim] = length
	view, err := NewTensorImplOfStorage(t.storage, t.storageOffset+start*t.strides[dim], sizes, t.strides)
	if err != nil {
		return nil, err
	}
	view.dtype = t.dtype
	view.device = t.device
	return view, nil
}

// Release drops this tensor's reference to its storage. The tensor must not
// be used afterwards.
func (t *TensorImpl) Release() {
	if t.storage != nil {
		t.storage.Release()
		t.storage = nil
	}
}

// linearExtent returns the number of elements, counted from storageOffset,
// that the strided layout can address (the As* accessors slice this extent).
func (t *TensorImpl) linearExtent() int {
	if t.IsEmpty() {
		return 0
	}
	extent := 1
	for d := range t.sizes {
		extent += (t.sizes[d] - 1) * t.strides[d]
	}
	return extent
}

// AsFloat32 interprets the data from the storage offset as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *TensorImpl) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.dtype))
	}
	n := t.linearExtent()
	if n == 0 {
		return nil
	}
	data := t.storage.Data()[t.storageOffset*t.dtype.Size():]
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
}

// AsFloat64 interprets the data from the storage offset as []float64.
// Panics if the tensor's dtype is not Float64.
func (t *TensorImpl) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", t.dtype))
	}
	n := t.linearExtent()
	if n == 0 {
		return nil
	}
	data := t.storage.Data()[t.storageOffset*t.dtype.Size():]
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), n)
}

// AsInt64 interprets the data from the storage offset as []int64.
// Panics if the tensor's dtype is not Int64.
func (t *TensorImpl) AsInt64() []int64 {
	if t.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", t.dtype))
	}
	n := t.linearExtent()
	if n == 0 {
		return nil
	}
	data := t.storage.Data()[t.storageOffset*t.dtype.Size():]
	return unsafe.Slice((*int64)(unsafe.Pointer(&data[0])), n)
}

// AsUint8 interprets the data from the storage offset as []uint8.
// Panics if the tensor's dtype is not Uint8 or a quantized byte type.
func (t *TensorImpl) AsUint8() []uint8 {
	if t.dtype != Uint8 && t.dtype != QUInt8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", t.dtype))
	}
	n := t.linearExtent()
	if n == 0 {
		return nil
	}
	return t.storage.Data()[t.storageOffset : t.storageOffset+n]
}

// AsInt8 interprets the data from the storage offset as []int8.
// Panics if the tensor's dtype is not QInt8.
func (t *TensorImpl) AsInt8() []int8 {
	if t.dtype != QInt8 {
		panic(fmt.Sprintf("tensor dtype is %s, not int8", t.dtype))
	}
	n := t.linearExtent()
	if n == 0 {
		return nil
	}
	data := t.storage.Data()[t.storageOffset:]
	return unsafe.Slice((*int8)(unsafe.Pointer(&data[0])), n)
}

func (t *TensorImpl) String() string {
	return fmt.Sprintf("TensorImpl(sizes=%v, strides=%v, offset=%d, dtype=%s, device=%s)",
		t.sizes, t.strides, t.storageOffset, t.dtype, t.device)
}
