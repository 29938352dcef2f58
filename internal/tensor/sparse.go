package tensor

import "fmt"

// SparseTensorImpl stores a tensor in COO format: an integer indices tensor
// and a values tensor.
//
// Invariants:
//   - sparseDims in [0, len(size)]; sparseDims + denseDims == len(size)
//   - indices: 2-dimensional Int64 tensor of shape [sparseDims, nnz]
//   - values: (1+denseDims)-dimensional tensor of shape [nnz, size[sparseDims:]...]
//
// A sparse tensor is coalesced if every index occurs at most once and the
// indices are sorted. Most sparse math requires coalesced inputs, since the
// algorithms proceed by merging sorted index lists.
type SparseTensorImpl struct {
	size       []int // the logical dense shape
	sparseDims int
	denseDims  int

	indices *TensorImpl
	values  *TensorImpl

	coalesced bool

	dtype  DataType
	device Device
}

// NewSparseTensorImpl creates an empty sparse tensor: 1 sparse dimension of
// size 0, no dense dimensions, nnz 0.
func NewSparseTensorImpl(dtype DataType, device Device) (*SparseTensorImpl, error) {
	indices, err := NewTensorImpl(Shape{1, 0}, Int64, device)
	if err != nil {
		return nil, err
	}
	values, err := NewTensorImpl(Shape{0}, dtype, device)
	if err != nil {
		indices.Release()
		return nil, err
	}

	return &SparseTensorImpl{
		size:       []int{0},
		sparseDims: 1,
		denseDims:  0,
		indices:    indices,
		values:     values,
		dtype:      dtype,
		device:     device,
	}, nil
}

// Sizes returns the logical dense shape.
func (s *SparseTensorImpl) Sizes() Shape {
	return s.size
}

// Dim returns the number of logical dimensions.
func (s *SparseTensorImpl) Dim() int {
	return len(s.size)
}

// SparseDims returns the number of sparse dimensions.
func (s *SparseTensorImpl) SparseDims() int {
	return s.sparseDims
}

// DenseDims returns the number of dense dimensions.
func (s *SparseTensorImpl) DenseDims() int {
	return s.denseDims
}

// NNZ returns the number of stored entries, derived from the values tensor.
func (s *SparseTensorImpl) NNZ() int {
	n, _ := s.values.Size(0)
	return n
}

// Indices returns the [sparseDims, nnz] index tensor.
func (s *SparseTensorImpl) Indices() *TensorImpl {
	return s.indices
}

// Values returns the [nnz, denseSize...] values tensor.
func (s *SparseTensorImpl) Values() *TensorImpl {
	return s.values
}

// Coalesced reports whether indices are sorted and duplicate-free.
func (s *SparseTensorImpl) Coalesced() bool {
	return s.coalesced
}

// SetCoalesced records the coalesced state. Callers assert it; it is not
// verified here.
func (s *SparseTensorImpl) SetCoalesced(coalesced bool) {
	s.coalesced = coalesced
}

// DType returns the element type of the values tensor.
func (s *SparseTensorImpl) DType() DataType {
	return s.dtype
}

// Device returns the compute device.
func (s *SparseTensorImpl) Device() Device {
	return s.device
}

// RawResize unconditionally overwrites the shape metadata.
// WARNING: does not preserve the sparseDims/denseDims invariants with respect
// to indices and values; the caller must guarantee them.
func (s *SparseTensorImpl) RawResize(sparseDims, denseDims int, size []int) {
	s.size = append(s.size[:0], size...)
	s.sparseDims = sparseDims
	s.denseDims = denseDims
}

// Resize changes the logical shape while preserving the indices/values
// invariants. A non-empty tensor may not change its sparseDims count and may
// not shrink any sparse-dimension extent; either would invalidate the stored
// indices. On a shape change the values and indices tensors are resized to
// the new dense payload and sparseDims row count.
func (s *SparseTensorImpl) Resize(sparseDims, denseDims int, size []int) error {
	if sparseDims+denseDims != len(size) {
		return fmt.Errorf("%w: number of dimensions must be sparseDims (%d) + denseDims (%d), but got %d",
			ErrInvalidArgument, sparseDims, denseDims, len(size))
	}
	if s.NNZ() > 0 {
		if sparseDims != s.sparseDims {
			return fmt.Errorf("%w: resizing a non-empty sparse tensor with a different sparseDims (%d -> %d) will invalidate its indices, use an empty sparse tensor instead",
				ErrInvalidArgument, s.sparseDims, sparseDims)
		}
		for d := 0; d < sparseDims; d++ {
			if size[d] < s.size[d] {
				return fmt.Errorf("%w: shrinking sparse dimension %d of a non-empty sparse tensor (%d -> %d) will invalidate its indices",
					ErrInvalidArgument, d, s.size[d], size[d])
			}
		}
	}

	if !Shape(size).Equal(Shape(s.size)) || sparseDims != s.sparseDims || denseDims != s.denseDims {
		valuesSize := append([]int{s.NNZ()}, size[sparseDims:]...)
		if err := resizeDense(s.values, valuesSize); err != nil {
			return err
		}

		indicesSize := append([]int(nil), s.indices.Sizes()...)
		indicesSize[0] = sparseDims
		if err := resizeDense(s.indices, indicesSize); err != nil {
			return err
		}
	}

	s.size = append(s.size[:0], size...)
	s.sparseDims = sparseDims
	s.denseDims = denseDims
	return nil
}

// ResizeAndClear resets the tensor to an empty (nnz = 0) tensor of the new
// shape, replacing indices and values entirely. Always valid.
func (s *SparseTensorImpl) ResizeAndClear(sparseDims, denseDims int, size []int) error {
	if sparseDims+denseDims != len(size) {
		return fmt.Errorf("%w: number of dimensions must be sparseDims (%d) + denseDims (%d), but got %d",
			ErrInvalidArgument, sparseDims, denseDims, len(size))
	}

	emptyIndices, err := NewTensorImpl(Shape{sparseDims, 0}, Int64, s.device)
	if err != nil {
		return err
	}
	valuesSize := append(Shape{0}, size[sparseDims:]...)
	emptyValues, err := NewTensorImpl(valuesSize, s.dtype, s.device)
	if err != nil {
		emptyIndices.Release()
		return err
	}

	s.size = append(s.size[:0], size...)
	s.sparseDims = sparseDims
	s.denseDims = denseDims
	if err := s.SetIndicesAndValuesUnsafe(emptyIndices, emptyValues); err != nil {
		return err
	}
	s.coalesced = false
	return nil
}

// SetIndicesAndValuesUnsafe installs new backing tensors directly, no copy.
// WARNING: no bounds validation is performed; the caller must guarantee every
// index lies within the logical size. Only the structural invariants (dtype
// and dimensionality) are checked.
func (s *SparseTensorImpl) SetIndicesAndValuesUnsafe(indices, values *TensorImpl) error {
	if indices.DType() != Int64 {
		return fmt.Errorf("%w: indices must be int64, got %s", ErrInvalidArgument, indices.DType())
	}
	if indices.Dim() != 2 {
		return fmt.Errorf("%w: indices must be 2-dimensional, got %d dims", ErrInvalidArgument, indices.Dim())
	}
	if values.Dim() != 1+s.denseDims {
		return fmt.Errorf("%w: values must be %d-dimensional (1 + denseDims), got %d dims",
			ErrInvalidArgument, 1+s.denseDims, values.Dim())
	}
	indicesNNZ, _ := indices.Size(1)
	valuesNNZ, _ := values.Size(0)
	if indicesNNZ != valuesNNZ {
		return fmt.Errorf("%w: indices nnz (%d) does not match values nnz (%d)",
			ErrInvalidArgument, indicesNNZ, valuesNNZ)
	}

	if s.indices != nil && s.indices != indices {
		s.indices.Release()
	}
	if s.values != nil && s.values != values {
		s.values.Release()
	}
	s.indices = indices
	s.values = values
	return nil
}

// SetNNZAndNarrow truncates indices and values to the first nnz entries along
// their leading axes (indices along axis 1, values along axis 0).
func (s *SparseTensorImpl) SetNNZAndNarrow(nnz int) error {
	narrowedIndices, err := s.indices.Narrow(1, 0, nnz)
	if err != nil {
		return err
	}
	narrowedValues, err := s.values.Narrow(0, 0, nnz)
	if err != nil {
		narrowedIndices.Release()
		return err
	}

	s.indices.Release()
	s.values.Release()
	s.indices = narrowedIndices
	s.values = narrowedValues
	return nil
}

func (s *SparseTensorImpl) String() string {
	return fmt.Sprintf("SparseTensorImpl(size=%v, sparseDims=%d, denseDims=%d, nnz=%d, coalesced=%t, dtype=%s)",
		s.size, s.sparseDims, s.denseDims, s.NNZ(), s.coalesced, s.dtype)
}

// resizeDense reshapes a dense tensor in place to newShape, reallocating
// storage when the element count changes. Overlapping leading elements (in
// row-major order per dimension) are preserved; new extent is zero-filled.
func resizeDense(t *TensorImpl, newShape []int) error {
	if err := Shape(newShape).Validate(); err != nil {
		return err
	}
	if Shape(newShape).Equal(t.Sizes()) {
		return nil
	}

	fresh, err := NewTensorImpl(Shape(newShape).Clone(), t.DType(), t.Device())
	if err != nil {
		return err
	}
	copyOverlap(fresh, t)
	t.ShallowCopyFrom(fresh)
	fresh.Release()
	return nil
}

// copyOverlap copies the region where dst's and src's shapes overlap,
// element by element in logical coordinates. Shapes may differ in rank; the
// missing trailing dimensions are treated as absent.
func copyOverlap(dst, src *TensorImpl) {
	dims := min(dst.Dim(), src.Dim())
	overlap := make([]int, dims)
	n := 1
	for d := 0; d < dims; d++ {
		overlap[d] = min(dst.Sizes()[d], src.Sizes()[d])
		n *= overlap[d]
	}
	if n == 0 || dims == 0 {
		return
	}

	elemSize := dst.DType().Size()
	dstData := dst.Storage().Data()
	srcData := src.Storage().Data()
	coord := make([]int, dims)
	for i := 0; i < n; i++ {
		dstIdx, srcIdx := dst.StorageOffset(), src.StorageOffset()
		for d := 0; d < dims; d++ {
			dstIdx += coord[d] * dst.Strides()[d]
			srcIdx += coord[d] * src.Strides()[d]
		}
		copy(dstData[dstIdx*elemSize:(dstIdx+1)*elemSize], srcData[srcIdx*elemSize:(srcIdx+1)*elemSize])

		for d := dims - 1; d >= 0; d-- {
			coord[d]++
			if coord[d] < overlap[d] {
				break
			}
			coord[d] = 0
		}
	}
}
