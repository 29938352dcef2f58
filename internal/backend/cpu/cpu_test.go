package cpu

import (
	"testing"

	"github.com/ember-ml/ember/internal/tensor"
)

func fromF32(t *testing.T, data []float32, shape tensor.Shape) *tensor.TensorImpl {
	t.Helper()
	impl, err := tensor.FromSlice(data, shape)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return impl
}

func checkF32(t *testing.T, got *tensor.TensorImpl, want []float32) {
	t.Helper()
	vals := got.AsFloat32()
	if len(vals) < len(want) {
		t.Fatalf("got %d values, want %d", len(vals), len(want))
	}
	for i, w := range want {
		if vals[i] != w {
			t.Errorf("value[%d] = %v, want %v", i, vals[i], w)
		}
	}
}

func TestAddMulNeg(t *testing.T) {
	be := New()
	a := fromF32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := fromF32(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	checkF32(t, be.Add(a, b), []float32{11, 22, 33, 44})
	checkF32(t, be.Mul(a, b), []float32{10, 40, 90, 160})
	checkF32(t, be.Neg(a), []float32{-1, -2, -3, -4})
}

func TestScalarOps(t *testing.T) {
	be := New()
	x := fromF32(t, []float32{1, 2, 3}, tensor.Shape{3})

	checkF32(t, be.AddScalar(x, 0.5), []float32{1.5, 2.5, 3.5})
	checkF32(t, be.MulScalar(x, 3), []float32{3, 6, 9})
}

func TestSumToScalar(t *testing.T) {
	be := New()
	x := fromF32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})

	s := be.Sum(x)
	if s.Dim() != 0 {
		t.Errorf("Sum result Dim() = %d, want 0", s.Dim())
	}
	if got := s.AsFloat32()[0]; got != 10 {
		t.Errorf("Sum = %v, want 10", got)
	}
}

func TestFill(t *testing.T) {
	be := New()
	x := fromF32(t, make([]float32, 4), tensor.Shape{4})
	be.Fill(x, 7)
	checkF32(t, x, []float32{7, 7, 7, 7})
}

func TestBroadcastTo(t *testing.T) {
	be := New()

	scalar := fromF32(t, []float32{5}, tensor.Shape{})
	got := be.BroadcastTo(scalar, tensor.Shape{2, 3})
	if !got.Sizes().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("broadcast sizes = %v, want [2 3]", got.Sizes())
	}
	checkF32(t, got, []float32{5, 5, 5, 5, 5, 5})

	row := fromF32(t, []float32{1, 2, 3}, tensor.Shape{1, 3})
	got = be.BroadcastTo(row, tensor.Shape{2, 3})
	checkF32(t, got, []float32{1, 2, 3, 1, 2, 3})
}

func TestCloneMaterializesViews(t *testing.T) {
	be := New()
	base := fromF32(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{2, 3})

	view, err := base.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("Narrow failed: %v", err)
	}
	clone := be.Clone(view)
	if !clone.IsContiguous() {
		t.Error("clone of a view must be contiguous")
	}
	checkF32(t, clone, []float32{1, 2, 4, 5})

	// The clone owns fresh storage.
	clone.AsFloat32()[0] = 99
	if base.AsFloat32()[1] == 99 {
		t.Error("clone aliases the source storage")
	}
}

func TestGatherScatterRoundTrip(t *testing.T) {
	be := New()
	base := fromF32(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{2, 3})

	// Gather the middle column.
	col := be.GatherStrided(base, []int{2}, []int{3}, 1)
	checkF32(t, col, []float32{1, 4})

	// Scatter a replacement back into the same geometry.
	repl := fromF32(t, []float32{10, 40}, tensor.Shape{2})
	be.ScatterStrided(base, []int{2}, []int{3}, 1, repl)
	checkF32(t, base, []float32{0, 10, 2, 3, 40, 5})

	// Scatter-add accumulates on top.
	be.ScatterAddStrided(base, []int{2}, []int{3}, 1, repl)
	checkF32(t, base, []float32{0, 20, 2, 3, 80, 5})
}

func TestAddInto(t *testing.T) {
	be := New()
	dst := fromF32(t, []float32{1, 1, 1}, tensor.Shape{3})
	src := fromF32(t, []float32{1, 2, 3}, tensor.Shape{3})

	be.AddInto(dst, src)
	checkF32(t, dst, []float32{2, 3, 4})
}

func TestKernelPanicsOnNonContiguous(t *testing.T) {
	be := New()
	base := fromF32(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{2, 3})
	view, err := base.Narrow(1, 0, 2)
	if err != nil {
		t.Fatalf("Narrow failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Add on a non-contiguous operand should panic")
		}
	}()
	be.Add(view, view)
}
