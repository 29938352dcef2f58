// Copyright 2026 Ember ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the tensor core of the Ember ML
// framework.
//
// The package re-exports the building blocks the runtime is made of:
//   - Storage: refcounted, device-tagged byte buffers
//   - TensorImpl: dense tensor metadata (sizes, strides, offset) over a Storage
//   - SparseTensorImpl: COO sparse tensors (indices + values)
//   - QTensorImpl, Quantizer: quantized tensors and their value mapping
//   - Backend: the device kernel interface
//
// Example:
//
//	t, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	view, err := t.Narrow(0, 1, 1) // shares t's storage
package tensor

import (
	"github.com/ember-ml/ember/internal/tensor"
)

// DType is a constraint over the Go element types a tensor can hold.
type DType = tensor.DType

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	QUInt8  DataType = tensor.QUInt8
	QInt8   DataType = tensor.QInt8
)

// Shape describes tensor dimensions.
type Shape = tensor.Shape

// Device identifies where tensor data lives.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Vulkan Device = tensor.Vulkan
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// Storage is a refcounted buffer of raw element data.
type Storage = tensor.Storage

// TensorImpl is the dense tensor representation: strided metadata over a
// Storage.
type TensorImpl = tensor.TensorImpl

// SparseTensorImpl is the COO sparse tensor representation.
type SparseTensorImpl = tensor.SparseTensorImpl

// QTensorImpl is the quantized tensor representation.
type QTensorImpl = tensor.QTensorImpl

// Quantizer maps between raw quantized storage values and real values.
type Quantizer = tensor.Quantizer

// QScheme identifies a quantization scheme.
type QScheme = tensor.QScheme

// Quantization scheme constants.
const (
	PerTensorAffine  QScheme = tensor.PerTensorAffine
	PerChannelAffine QScheme = tensor.PerChannelAffine
)

// Error taxonomy. Every error returned by the package wraps one of these
// sentinels.
var (
	ErrInvalidArgument = tensor.ErrInvalidArgument
	ErrIndex           = tensor.ErrIndex
	ErrLogic           = tensor.ErrLogic
	ErrUnsupported     = tensor.ErrUnsupported
	ErrAllocation      = tensor.ErrAllocation
)

// New creates a contiguous zero-filled tensor.
func New(shape Shape, dtype DataType, device Device) (*TensorImpl, error) {
	return tensor.NewTensorImpl(shape, dtype, device)
}

// OfStorage creates a tensor over existing storage with explicit geometry.
func OfStorage(storage *Storage, storageOffset int, sizes, strides []int) (*TensorImpl, error) {
	return tensor.NewTensorImplOfStorage(storage, storageOffset, sizes, strides)
}

// FromSlice creates a contiguous CPU tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape) (*TensorImpl, error) {
	return tensor.FromSlice(data, shape)
}

// WrapNumber creates a 0-dimensional tensor holding a single scalar.
func WrapNumber(value float64, dtype DataType, device Device) (*TensorImpl, error) {
	return tensor.WrapNumber(value, dtype, device)
}

// NewSparse creates an empty sparse tensor of shape {0}.
func NewSparse(dtype DataType, device Device) (*SparseTensorImpl, error) {
	return tensor.NewSparseTensorImpl(dtype, device)
}

// NewQuantized creates a quantized tensor with the given quantizer.
func NewQuantized(shape Shape, dtype DataType, device Device, quantizer *Quantizer) (*QTensorImpl, error) {
	return tensor.NewQTensorImpl(shape, dtype, device, quantizer)
}

// NewPerTensorAffineQuantizer builds a whole-tensor affine quantizer.
func NewPerTensorAffineQuantizer(scale float64, zeroPoint int64) (*Quantizer, error) {
	return tensor.NewPerTensorAffineQuantizer(scale, zeroPoint)
}

// NewPerChannelAffineQuantizer builds a per-channel affine quantizer.
func NewPerChannelAffineQuantizer(scales []float64, zeroPoints []int64, axis int) (*Quantizer, error) {
	return tensor.NewPerChannelAffineQuantizer(scales, zeroPoints, axis)
}

// AllocateStorage allocates a refcounted device buffer of byteSize bytes.
func AllocateStorage(byteSize int, dtype DataType, device Device) (*Storage, error) {
	return tensor.AllocateStorage(byteSize, dtype, device)
}

// BroadcastShapes computes the broadcast result of two shapes. The bool
// reports whether either input had to be expanded.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
