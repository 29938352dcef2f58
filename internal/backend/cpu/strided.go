package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ember-ml/ember/internal/tensor"
)

// axpyF32 computes y += alpha*x.
func axpyF32(alpha float32, x, y []float32) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y})
}

// forEachIndex walks the logical coordinates of sizes in row-major order,
// calling f with the flat (contiguous) index and the strided storage index.
func forEachIndex(sizes, strides []int, offset int, f func(flat, strided int)) {
	n := tensor.Shape(sizes).NumElements()
	if n == 0 {
		return
	}
	coord := make([]int, len(sizes))
	for flat := 0; flat < n; flat++ {
		strided := offset
		for d := range sizes {
			strided += coord[d] * strides[d]
		}
		f(flat, strided)

		for d := len(sizes) - 1; d >= 0; d-- {
			coord[d]++
			if coord[d] < sizes[d] {
				break
			}
			coord[d] = 0
		}
	}
}

// GatherStrided materializes a contiguous tensor of the given sizes by
// reading x's storage through (sizes, strides, offset). offset is an element
// offset into x's storage.
func (cpu *CPUBackend) GatherStrided(x *tensor.TensorImpl, sizes, strides []int, offset int) *tensor.TensorImpl {
	result := cpu.newResult("gather_strided", sizes, x.DType())

	switch x.DType() {
	case tensor.Float32:
		src, dst := storageFloat32(x.Storage()), result.AsFloat32()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			dst[flat] = src[strided]
		})
	case tensor.Float64:
		src, dst := storageFloat64(x.Storage()), result.AsFloat64()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			dst[flat] = src[strided]
		})
	default:
		panic(fmt.Sprintf("gather_strided: unsupported dtype %s", x.DType()))
	}
	return result
}

// ScatterStrided writes contiguous src into dst's storage through
// (sizes, strides, offset).
func (cpu *CPUBackend) ScatterStrided(dst *tensor.TensorImpl, sizes, strides []int, offset int, src *tensor.TensorImpl) {
	checkContiguous("scatter_strided", src)
	if src.Numel() != tensor.Shape(sizes).NumElements() {
		panic(fmt.Sprintf("scatter_strided: source has %d elements, geometry covers %d",
			src.Numel(), tensor.Shape(sizes).NumElements()))
	}

	switch dst.DType() {
	case tensor.Float32:
		d, s := storageFloat32(dst.Storage()), src.AsFloat32()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			d[strided] = s[flat]
		})
	case tensor.Float64:
		d, s := storageFloat64(dst.Storage()), src.AsFloat64()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			d[strided] = s[flat]
		})
	default:
		panic(fmt.Sprintf("scatter_strided: unsupported dtype %s", dst.DType()))
	}
}

// ScatterAddStrided accumulates contiguous src into dst's storage through
// (sizes, strides, offset).
func (cpu *CPUBackend) ScatterAddStrided(dst *tensor.TensorImpl, sizes, strides []int, offset int, src *tensor.TensorImpl) {
	checkContiguous("scatter_add_strided", src)
	if src.Numel() != tensor.Shape(sizes).NumElements() {
		panic(fmt.Sprintf("scatter_add_strided: source has %d elements, geometry covers %d",
			src.Numel(), tensor.Shape(sizes).NumElements()))
	}

	switch dst.DType() {
	case tensor.Float32:
		d, s := storageFloat32(dst.Storage()), src.AsFloat32()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			d[strided] += s[flat]
		})
	case tensor.Float64:
		d, s := storageFloat64(dst.Storage()), src.AsFloat64()
		forEachIndex(sizes, strides, offset, func(flat, strided int) {
			d[strided] += s[flat]
		})
	default:
		panic(fmt.Sprintf("scatter_add_strided: unsupported dtype %s", dst.DType()))
	}
}
