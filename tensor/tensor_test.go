// Copyright 2026 Ember ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	internalcpu "github.com/ember-ml/ember/internal/backend/cpu"
	"github.com/ember-ml/ember/tensor"
)

// TestBackendInterface verifies that the CPU backend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*internalcpu.CPUBackend)(nil)
}

// TestPublicDenseAPI exercises the dense tensor surface through the facade.
func TestPublicDenseAPI(t *testing.T) {
	impl, err := tensor.New(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !impl.Sizes().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Sizes() = %v, want [2 3]", impl.Sizes())
	}
	if impl.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", impl.DType())
	}
	if impl.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", impl.Device())
	}
	if impl.Numel() != 6 {
		t.Errorf("Numel() = %d, want 6", impl.Numel())
	}

	data, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	view, err := data.Narrow(0, 1, 1)
	if err != nil {
		t.Fatalf("Narrow failed: %v", err)
	}
	if view.Storage() != data.Storage() {
		t.Error("view must share storage through the facade")
	}
}

// TestPublicSparseAPI exercises the sparse tensor surface through the facade.
func TestPublicSparseAPI(t *testing.T) {
	sp, err := tensor.NewSparse(tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewSparse failed: %v", err)
	}
	if err := sp.Resize(2, 0, []int{3, 3}); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if sp.SparseDims() != 2 {
		t.Errorf("SparseDims() = %d, want 2", sp.SparseDims())
	}
}

// TestPublicQuantizedAPI exercises the quantized tensor surface through the
// facade.
func TestPublicQuantizedAPI(t *testing.T) {
	q, err := tensor.NewPerTensorAffineQuantizer(0.5, 0)
	if err != nil {
		t.Fatalf("NewPerTensorAffineQuantizer failed: %v", err)
	}
	qt, err := tensor.NewQuantized(tensor.Shape{4}, tensor.QUInt8, tensor.CPU, q)
	if err != nil {
		t.Fatalf("NewQuantized failed: %v", err)
	}
	if qt.Quantizer() != q {
		t.Error("quantizer not attached through the facade")
	}
}
