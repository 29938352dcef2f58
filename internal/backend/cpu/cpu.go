// Package cpu implements the reference CPU kernel backend for the tensor core.
package cpu

import (
	"fmt"
	"unsafe"

	"gonum.org/v1/gonum/floats"

	"github.com/ember-ml/ember/internal/parallel"
	"github.com/ember-ml/ember/internal/tensor"
)

// CPUBackend implements the tensor.Backend kernel interface in pure Go, with
// gonum vector routines on the float64 paths.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

func (cpu *CPUBackend) newResult(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.TensorImpl {
	result, err := tensor.NewTensorImpl(shape.Clone(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

func checkBinary(op string, a, b *tensor.TensorImpl) {
	if !a.Sizes().Equal(b.Sizes()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Sizes(), b.Sizes()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
	checkContiguous(op, a)
	checkContiguous(op, b)
}

func checkContiguous(op string, t *tensor.TensorImpl) {
	if !t.IsContiguous() {
		panic(fmt.Sprintf("%s: kernel requires a contiguous operand, got %v", op, t))
	}
}

// Add performs element-wise addition of contiguous same-shape tensors.
func (cpu *CPUBackend) Add(a, b *tensor.TensorImpl) *tensor.TensorImpl {
	checkBinary("add", a, b)
	result := cpu.newResult("add", a.Sizes(), a.DType())

	switch a.DType() {
	case tensor.Float32:
		x, y, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		parallel.ForRanges(len(dst), func(s, e int) {
			for i := s; i < e; i++ {
				dst[i] = x[i] + y[i]
			}
		}, cpu.par)
	case tensor.Float64:
		floats.AddTo(result.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}
	return result
}

// Mul performs element-wise multiplication of contiguous same-shape tensors.
func (cpu *CPUBackend) Mul(a, b *tensor.TensorImpl) *tensor.TensorImpl {
	checkBinary("mul", a, b)
	result := cpu.newResult("mul", a.Sizes(), a.DType())

	switch a.DType() {
	case tensor.Float32:
		x, y, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		parallel.ForRanges(len(dst), func(s, e int) {
			for i := s; i < e; i++ {
				dst[i] = x[i] * y[i]
			}
		}, cpu.par)
	case tensor.Float64:
		floats.MulTo(result.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	default:
		panic(fmt.Sprintf("mul: unsupported dtype %s", a.DType()))
	}
	return result
}

// Neg negates every element.
func (cpu *CPUBackend) Neg(x *tensor.TensorImpl) *tensor.TensorImpl {
	checkContiguous("neg", x)
	result := cpu.newResult("neg", x.Sizes(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i := range src {
			dst[i] = -src[i]
		}
	case tensor.Float64:
		floats.ScaleTo(result.AsFloat64(), -1, x.AsFloat64())
	default:
		panic(fmt.Sprintf("neg: unsupported dtype %s", x.DType()))
	}
	return result
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.TensorImpl, s float64) *tensor.TensorImpl {
	checkContiguous("add_scalar", x)
	result := cpu.newResult("add_scalar", x.Sizes(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		sf := float32(s)
		for i := range src {
			dst[i] = src[i] + sf
		}
	case tensor.Float64:
		dst := result.AsFloat64()
		copy(dst, x.AsFloat64())
		floats.AddConst(s, dst)
	default:
		panic(fmt.Sprintf("add_scalar: unsupported dtype %s", x.DType()))
	}
	return result
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.TensorImpl, s float64) *tensor.TensorImpl {
	checkContiguous("mul_scalar", x)
	result := cpu.newResult("mul_scalar", x.Sizes(), x.DType())

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		sf := float32(s)
		for i := range src {
			dst[i] = src[i] * sf
		}
	case tensor.Float64:
		floats.ScaleTo(result.AsFloat64(), s, x.AsFloat64())
	default:
		panic(fmt.Sprintf("mul_scalar: unsupported dtype %s", x.DType()))
	}
	return result
}

// Sum reduces to a 0-dimensional scalar.
func (cpu *CPUBackend) Sum(x *tensor.TensorImpl) *tensor.TensorImpl {
	checkContiguous("sum", x)
	result := cpu.newResult("sum", tensor.Shape{}, x.DType())

	switch x.DType() {
	case tensor.Float32:
		var total float32
		for _, v := range x.AsFloat32() {
			total += v
		}
		result.AsFloat32()[0] = total
	case tensor.Float64:
		result.AsFloat64()[0] = floats.Sum(x.AsFloat64())
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

// Fill sets every element of x to v, in place.
func (cpu *CPUBackend) Fill(x *tensor.TensorImpl, v float64) {
	checkContiguous("fill", x)

	switch x.DType() {
	case tensor.Float32:
		dst := x.AsFloat32()
		vf := float32(v)
		parallel.For(len(dst), func(i int) {
			dst[i] = vf
		}, cpu.par)
	case tensor.Float64:
		dst := x.AsFloat64()
		parallel.For(len(dst), func(i int) {
			dst[i] = v
		}, cpu.par)
	default:
		panic(fmt.Sprintf("fill: unsupported dtype %s", x.DType()))
	}
}

// BroadcastTo materializes x broadcast to shape.
func (cpu *CPUBackend) BroadcastTo(x *tensor.TensorImpl, shape tensor.Shape) *tensor.TensorImpl {
	outShape, _, err := tensor.BroadcastShapes(x.Sizes(), shape)
	if err != nil || !outShape.Equal(shape) {
		panic(fmt.Sprintf("broadcast_to: cannot broadcast %v to %v", x.Sizes(), shape))
	}

	// Virtual geometry: missing leading dims and size-1 dims get stride 0.
	strides := make([]int, len(shape))
	lead := len(shape) - x.Dim()
	for d := range shape {
		if d < lead {
			continue
		}
		if x.Sizes()[d-lead] != 1 {
			strides[d] = x.Strides()[d-lead]
		}
	}
	return cpu.GatherStrided(x, shape, strides, x.StorageOffset())
}

// Clone materializes a contiguous deep copy of x.
func (cpu *CPUBackend) Clone(x *tensor.TensorImpl) *tensor.TensorImpl {
	if x.IsContiguous() {
		result := cpu.newResult("clone", x.Sizes(), x.DType())
		elemSize := x.DType().Size()
		src := x.Storage().Data()[x.StorageOffset()*elemSize:]
		copy(result.Storage().Data(), src[:x.Numel()*elemSize])
		return result
	}
	return cpu.GatherStrided(x, x.Sizes(), x.Strides(), x.StorageOffset())
}

// AddInto accumulates src into dst element-wise, in place.
func (cpu *CPUBackend) AddInto(dst, src *tensor.TensorImpl) {
	checkBinary("add_into", dst, src)

	switch dst.DType() {
	case tensor.Float32:
		d, s := dst.AsFloat32(), src.AsFloat32()
		axpyF32(1, s, d)
	case tensor.Float64:
		floats.Add(dst.AsFloat64(), src.AsFloat64())
	default:
		panic(fmt.Sprintf("add_into: unsupported dtype %s", dst.DType()))
	}
}

// storageFloat32 views an entire storage buffer as []float32.
func storageFloat32(s *tensor.Storage) []float32 {
	data := s.Data()
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// storageFloat64 views an entire storage buffer as []float64.
func storageFloat64(s *tensor.Storage) []float64 {
	data := s.Data()
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), len(data)/8)
}
