package autograd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-ml/ember/internal/tensor"
)

func leafF32(t *testing.T, data []float32, shape tensor.Shape, requiresGrad bool) *Variable {
	t.Helper()
	impl, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	v, err := NewLeaf(impl, requiresGrad)
	require.NoError(t, err)
	return v
}

func TestRequiresGradNeedsFloatingPoint(t *testing.T) {
	impl, err := tensor.FromSlice([]int64{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)

	_, err = NewLeaf(impl, true)
	require.ErrorIs(t, err, tensor.ErrInvalidArgument)

	v, err := NewLeaf(impl, false)
	require.NoError(t, err)
	assert.False(t, v.RequiresGrad())
}

func TestViewDerivesRequiresGradFromBase(t *testing.T) {
	x := leafF32(t, []float32{1, 2, 3, 4}, tensor.Shape{4}, true)

	view, err := Narrow(x, 0, 1, 2)
	require.NoError(t, err)
	assert.True(t, view.IsView())
	assert.Same(t, x, view.Base())
	assert.True(t, view.RequiresGrad(), "view of a requires-grad base must require grad")
	assert.True(t, view.VersionCounter().Shares(x.VersionCounter()))

	plain := leafF32(t, []float32{1, 2}, tensor.Shape{2}, false)
	pview, err := Narrow(plain, 0, 0, 1)
	require.NoError(t, err)
	assert.False(t, pview.RequiresGrad())
	assert.Nil(t, pview.GradFn())
}

func TestViewOfViewCollapsesToRootBase(t *testing.T) {
	x := leafF32(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{6}, true)

	outer, err := Narrow(x, 0, 1, 4)
	require.NoError(t, err)
	inner, err := Narrow(outer, 0, 1, 2)
	require.NoError(t, err)

	assert.Same(t, x, inner.Base(), "nested views must point at the root base")
	assert.True(t, inner.VersionCounter().Shares(x.VersionCounter()))
}

func TestGradAccumulatorIdentity(t *testing.T) {
	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)

	acc1, err := x.GradAccumulator()
	require.NoError(t, err)
	require.NotNil(t, acc1)
	acc2, err := x.GradAccumulator()
	require.NoError(t, err)
	assert.Same(t, acc1, acc2, "a live leaf must keep one accumulator")

	// Non-leaves have a grad_fn instead.
	be := newTestBackend()
	y, err := Add(be, x, x)
	require.NoError(t, err)
	_, err = y.GradAccumulator()
	require.ErrorIs(t, err, tensor.ErrLogic)

	// Leaves that do not require grad have no accumulator and no edge.
	plain := leafF32(t, []float32{1}, tensor.Shape{1}, false)
	acc, err := plain.GradAccumulator()
	require.NoError(t, err)
	assert.Nil(t, acc)
	assert.False(t, plain.GradientEdge().IsValid())
}

func TestSetDataInvalidatesAccumulator(t *testing.T) {
	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	acc1, err := x.GradAccumulator()
	require.NoError(t, err)

	// Same dtype and device: the accumulator survives.
	same, err := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2})
	require.NoError(t, err)
	x.SetData(same)
	acc2, err := x.GradAccumulator()
	require.NoError(t, err)
	assert.Same(t, acc1, acc2)

	// Dtype change: the accumulator is rebuilt.
	other, err := tensor.FromSlice([]float64{3, 4}, tensor.Shape{2})
	require.NoError(t, err)
	x.SetData(other)
	acc3, err := x.GradAccumulator()
	require.NoError(t, err)
	assert.NotSame(t, acc1, acc3)
}

func TestDetachCutsGraph(t *testing.T) {
	be := newTestBackend()
	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	y, err := MulScalar(be, x, 2)
	require.NoError(t, err)
	require.NotNil(t, y.GradFn())

	d := y.Detach()
	assert.False(t, d.RequiresGrad())
	assert.Nil(t, d.GradFn())
	assert.Same(t, y.Impl().Storage(), d.Impl().Storage(), "detach shares storage")
}

func TestNoGradModeSkipsRecording(t *testing.T) {
	be := newTestBackend()
	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)

	restore := EnterNoGrad()
	y, err := Add(be, x, x)
	restore()
	require.NoError(t, err)

	assert.Nil(t, y.GradFn(), "no node may be recorded while grad mode is off")
	assert.False(t, y.RequiresGrad())
}

func TestBumpVersionSharedWithViews(t *testing.T) {
	x := leafF32(t, []float32{1, 2, 3}, tensor.Shape{3}, false)
	view, err := Narrow(x, 0, 0, 2)
	require.NoError(t, err)

	before := view.VersionCounter().Current()
	x.BumpVersion()
	assert.Equal(t, before+1, view.VersionCounter().Current())
}
