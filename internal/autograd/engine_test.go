package autograd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-ml/ember/internal/backend/cpu"
	"github.com/ember-ml/ember/internal/tensor"
)

func newTestBackend() tensor.Backend {
	return cpu.New()
}

func newTestEngine() *Engine {
	cfg := DefaultConfig()
	cfg.Deterministic = true
	return NewEngine(newTestBackend(), cfg)
}

func gradF32(t *testing.T, v *Variable) []float32 {
	t.Helper()
	g := v.Grad()
	require.NotNil(t, g, "expected a gradient on %v", v)
	return g.Impl().AsFloat32()
}

func TestBackwardSumOfSquares(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2, 3}, tensor.Shape{3}, true)
	y, err := Mul(be, x, x)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	// d(sum(x*x))/dx = 2x
	assert.Equal(t, []float32{2, 4, 6}, gradF32(t, x)[:3])
}

func TestSecondBackwardNeedsKeepGraph(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	y, err := Mul(be, x, x)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	err = loss.Backward(eng, nil, false, false)
	require.ErrorIs(t, err, tensor.ErrLogic)
	assert.Contains(t, err.Error(), "keep_graph")
}

func TestRepeatedBackwardWithKeepGraphAccumulates(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	y, err := Mul(be, x, x)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, true, false))
	require.NoError(t, loss.Backward(eng, nil, false, false))

	// Two passes sum into .grad: 2 * 2x.
	assert.Equal(t, []float32{4, 8}, gradF32(t, x)[:2])
}

func TestTwoBranchesAccumulateIntoLeaf(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	a, err := MulScalar(be, x, 3)
	require.NoError(t, err)
	b, err := MulScalar(be, x, 5)
	require.NoError(t, err)
	y, err := Add(be, a, b)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	// d(sum(3x + 5x))/dx = 8 everywhere.
	assert.Equal(t, []float32{8, 8}, gradF32(t, x)[:2])
}

func TestBackwardWithExplicitSeed(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2, 3}, tensor.Shape{3}, true)
	y, err := MulScalar(be, x, 2)
	require.NoError(t, err)

	seed := leafF32(t, []float32{1, 10, 100}, tensor.Shape{3}, false)
	require.NoError(t, y.Backward(eng, seed, false, false))

	assert.Equal(t, []float32{2, 20, 200}, gradF32(t, x)[:3])
}

func TestBackwardOnDetachedVariableFails(t *testing.T) {
	eng := newTestEngine()
	x := leafF32(t, []float32{1}, tensor.Shape{1}, false)

	err := x.Backward(eng, nil, false, false)
	require.ErrorIs(t, err, tensor.ErrLogic)
}

func TestBackwardMixedTree(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	// loss = sum(-(x * y) + x), with y a constant branch.
	x := leafF32(t, []float32{2, 3}, tensor.Shape{2}, true)
	y := leafF32(t, []float32{5, 7}, tensor.Shape{2}, false)

	xy, err := Mul(be, x, y)
	require.NoError(t, err)
	n, err := Neg(be, xy)
	require.NoError(t, err)
	s, err := Add(be, n, x)
	require.NoError(t, err)
	loss, err := Sum(be, s)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	// d/dx = -y + 1
	assert.Equal(t, []float32{-4, -6}, gradF32(t, x)[:2])
	assert.Nil(t, y.Grad(), "constant branch must receive no gradient")
}

func TestEngineParallelWorkersAgree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 4
	cfg.MinGraphSize = 1
	eng := NewEngine(newTestBackend(), cfg)
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2, 3, 4}, tensor.Shape{4}, true)

	// A wide fan-out: many independent branches all feeding one leaf.
	branches := make([]*Variable, 0, 8)
	for i := 1; i <= 8; i++ {
		b, err := MulScalar(be, x, float64(i))
		require.NoError(t, err)
		branches = append(branches, b)
	}
	total := branches[0]
	var err error
	for _, b := range branches[1:] {
		total, err = Add(be, total, b)
		require.NoError(t, err)
	}
	loss, err := Sum(be, total)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	// d/dx = 1+2+...+8 = 36 everywhere.
	assert.Equal(t, []float32{36, 36, 36, 36}, gradF32(t, x)[:4])
}

func TestCreateGraphEnablesSecondOrderGradient(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2, 3}, tensor.Shape{3}, true)
	y, err := Mul(be, x, x)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, true, true))

	gx := x.Grad()
	require.NotNil(t, gx)
	assert.Equal(t, []float32{2, 4, 6}, gx.Impl().AsFloat32()[:3])
	require.NotNil(t, gx.GradFn(), "gradient must stay connected to the graph")

	// Differentiate the gradient itself: d(2x)/dx = 2 per element, added on
	// top of the first-order gradient already stored on x.
	require.NoError(t, gx.Backward(eng, nil, false, false))
	assert.Equal(t, []float32{4, 6, 8}, gradF32(t, x)[:3])
}

func TestBackwardWithoutCreateGraphStaysDetached(t *testing.T) {
	eng := newTestEngine()
	be := eng.Backend()

	x := leafF32(t, []float32{1, 2}, tensor.Shape{2}, true)
	y, err := Mul(be, x, x)
	require.NoError(t, err)
	loss, err := Sum(be, y)
	require.NoError(t, err)

	require.NoError(t, loss.Backward(eng, nil, false, false))

	gx := x.Grad()
	require.NotNil(t, gx)
	assert.Nil(t, gx.GradFn())
	assert.False(t, gx.RequiresGrad())
}

func TestExecuteValidatesRoots(t *testing.T) {
	eng := newTestEngine()

	err := eng.Execute(nil, nil, false, false)
	require.ErrorIs(t, err, tensor.ErrInvalidArgument)

	err = eng.Execute([]Edge{{}}, []*Variable{nil}, false, false)
	require.ErrorIs(t, err, tensor.ErrLogic)

	x := leafF32(t, []float32{1}, tensor.Shape{1}, true)
	acc, errAcc := x.GradAccumulator()
	require.NoError(t, errAcc)
	err = eng.Execute([]Edge{{Fn: acc}}, nil, false, false)
	require.ErrorIs(t, err, tensor.ErrInvalidArgument)
}
