package autograd

import (
	"github.com/ember-ml/ember/internal/tensor"
)

// AccumulateGrad is the terminal node for a leaf Variable: instead of
// propagating further, it adds the arriving gradient into the Variable's
// .grad in place. Accumulation is serialized on the Variable's lock, so
// gradients arriving from parallel engine workers never lose updates.
type AccumulateGrad struct {
	funcBase
	variable *Variable
}

func newAccumulateGrad(v *Variable) *AccumulateGrad {
	return &AccumulateGrad{
		funcBase: newFuncBase(1, nil),
		variable: v,
	}
}

// Name identifies the node kind.
func (a *AccumulateGrad) Name() string {
	return "AccumulateGrad"
}

// Variable returns the leaf this accumulator feeds.
func (a *AccumulateGrad) Variable() *Variable {
	return a.variable
}

// Apply adds the incoming gradient into the leaf's .grad. When either side
// carries a graph the accumulation goes through a recorded Add, so the stored
// gradient remains differentiable for higher-order backward passes.
func (a *AccumulateGrad) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g := gradOutputs[0]
	if g == nil {
		return nil, nil
	}

	m := a.variable.meta
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.grad == nil && g.RequiresGrad():
		m.grad = g
	case m.grad == nil:
		// First arrival: clone so later in-place accumulation cannot alias
		// the producer's buffers.
		m.grad = NewVariable(be.Clone(g.impl))
	case m.grad.RequiresGrad() || g.RequiresGrad():
		sum, err := Add(be, m.grad, g)
		if err != nil {
			return nil, err
		}
		m.grad = sum
	default:
		be.AddInto(m.grad.impl, g.impl)
	}
	return nil, nil
}

// ReleaseSavedState is a no-op: an accumulator has no saved forward state
// and stays valid across repeated backward passes.
func (a *AccumulateGrad) ReleaseSavedState() {}
