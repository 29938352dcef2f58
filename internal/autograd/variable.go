// Package autograd implements reverse-mode automatic differentiation over the
// tensor core: Variables layering gradient-tracking state on TensorImpls, a
// dynamically built graph of Function nodes, and the Engine that traverses it
// backward.
package autograd

import (
	"fmt"
	"sync"

	"github.com/ember-ml/ember/internal/tensor"
)

// Variable is a differentiable tensor handle: a TensorImpl plus autograd
// metadata. A Variable is either a leaf (no producing Function; requires-grad
// set explicitly) or the output of a recorded operation (requires-grad
// derived from its grad_fn, or from its base for views).
type Variable struct {
	impl *tensor.TensorImpl
	meta *autogradMeta
}

// autogradMeta is the gradient-tracking state of one Variable.
//
// mu guards grad, gradFn (views), and the accumulator; it is taken from
// whichever engine worker delivers a gradient for this Variable.
type autogradMeta struct {
	mu sync.Mutex

	requiresGrad bool
	grad         *Variable
	gradFn       Function
	outputNr     int

	// gradAccumulator is the lazily built per-leaf accumulation node. It is
	// a back reference: SetData invalidates it when the new data's dtype or
	// device no longer matches, so a stale accumulator is never reused.
	gradAccumulator *AccumulateGrad

	version VersionCounter

	// View linkage. A view shares its base's version counter; attrVersion is
	// the version at which gradFn was last synthesized.
	isView      bool
	base        *Variable
	attrVersion uint32
}

// NewVariable wraps an impl as a non-differentiable Variable.
func NewVariable(impl *tensor.TensorImpl) *Variable {
	impl.SetIsVariable(true)
	return &Variable{
		impl: impl,
		meta: &autogradMeta{version: NewVersionCounter()},
	}
}

// NewLeaf wraps an impl as a leaf Variable with an explicit requires-grad
// flag. Enabling gradients requires a floating-point dtype.
func NewLeaf(impl *tensor.TensorImpl, requiresGrad bool) (*Variable, error) {
	v := NewVariable(impl)
	if requiresGrad {
		if err := v.SetRequiresGrad(true); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// makeFromEdge wraps an operation output: a non-leaf whose requires-grad-ness
// derives from its producing node.
func makeFromEdge(impl *tensor.TensorImpl, edge Edge) *Variable {
	v := NewVariable(impl)
	v.meta.gradFn = edge.Fn
	v.meta.outputNr = edge.InputNr
	return v
}

// makeView wraps viewImpl as a view of base. Views of views collapse to the
// root base; the version counter is shared with the base. edge carries the
// view operation's backward node (invalid when the base does not require
// grad).
func makeView(base *Variable, viewImpl *tensor.TensorImpl, edge Edge) *Variable {
	if base.IsView() {
		base = base.Base()
	}
	v := NewVariable(viewImpl)
	v.meta.isView = true
	v.meta.base = base
	v.meta.version = base.meta.version
	v.meta.gradFn = edge.Fn
	v.meta.outputNr = edge.InputNr
	v.meta.attrVersion = v.meta.version.Current()
	return v
}

// Impl returns the underlying TensorImpl.
func (v *Variable) Impl() *tensor.TensorImpl {
	return v.impl
}

// Sizes returns the dimension extents.
func (v *Variable) Sizes() tensor.Shape {
	return v.impl.Sizes()
}

// DType returns the element type.
func (v *Variable) DType() tensor.DataType {
	return v.impl.DType()
}

// Device returns the compute device.
func (v *Variable) Device() tensor.Device {
	return v.impl.Device()
}

// RequiresGrad reports whether gradients flow to or through this Variable:
// its own flag, or a producing node, or (for views) the base's requires-grad.
func (v *Variable) RequiresGrad() bool {
	m := v.meta
	return m.requiresGrad || m.gradFn != nil || (m.isView && m.base.RequiresGrad())
}

// SetRequiresGrad sets the leaf requires-grad flag. Only floating-point
// tensors can require gradients.
func (v *Variable) SetRequiresGrad(requiresGrad bool) error {
	if requiresGrad && !v.impl.DType().IsFloatingPoint() {
		return fmt.Errorf("%w: only tensors of floating point dtype can require gradients, got %s",
			tensor.ErrInvalidArgument, v.impl.DType())
	}
	v.meta.requiresGrad = requiresGrad
	return nil
}

// Grad returns the accumulated gradient, nil until backward has delivered one.
func (v *Variable) Grad() *Variable {
	v.meta.mu.Lock()
	defer v.meta.mu.Unlock()
	return v.meta.grad
}

// SetGrad replaces the accumulated gradient (nil clears it).
func (v *Variable) SetGrad(grad *Variable) {
	v.meta.mu.Lock()
	defer v.meta.mu.Unlock()
	v.meta.grad = grad
}

// OutputNr returns which output slot of GradFn this Variable corresponds to.
func (v *Variable) OutputNr() int {
	return v.meta.outputNr
}

// IsView reports whether this Variable aliases another Variable's storage.
func (v *Variable) IsView() bool {
	return v.meta.isView
}

// Base returns the Variable a view aliases, or nil for non-views.
func (v *Variable) Base() *Variable {
	return v.meta.base
}

// VersionCounter returns the mutation counter (shared between a view and its
// base).
func (v *Variable) VersionCounter() VersionCounter {
	return v.meta.version
}

// BumpVersion records an in-place mutation of the data.
func (v *Variable) BumpVersion() {
	v.meta.version.Bump()
}

// GradFn returns the node that produced this Variable, nil for leaves.
//
// For a view whose shared version counter has advanced since the last
// synthesis, the stale node is regenerated on demand: a fresh
// rebuild-from-base backward capturing the view's current geometry relative
// to its base.
func (v *Variable) GradFn() Function {
	m := v.meta
	if !m.isView {
		return m.gradFn
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gradFn == nil && !m.base.RequiresGrad() {
		return nil
	}
	if current := m.version.Current(); m.attrVersion != current {
		m.gradFn = newAsStridedBackward(m.base, v.impl)
		m.outputNr = 0
		m.attrVersion = current
	}
	return m.gradFn
}

// GradAccumulator lazily constructs the per-leaf accumulation node. Calling
// it on a non-leaf is a logic error. The accumulator is cached; repeated
// calls on a live leaf return the same node.
func (v *Variable) GradAccumulator() (Function, error) {
	m := v.meta
	if m.gradFn != nil {
		return nil, fmt.Errorf("%w: grad_accumulator() should only be called on leaf variables",
			tensor.ErrLogic)
	}
	if !m.requiresGrad {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gradAccumulator == nil {
		m.gradAccumulator = newAccumulateGrad(v)
	}
	return m.gradAccumulator, nil
}

// GradientEdge returns the edge gradients for this Variable are delivered
// to: (grad_fn, output_nr) for non-leaves, the accumulator for leaves that
// require grad, an invalid edge otherwise.
func (v *Variable) GradientEdge() Edge {
	if fn := v.GradFn(); fn != nil {
		return Edge{Fn: fn, InputNr: v.OutputNr()}
	}
	acc, err := v.GradAccumulator()
	if err != nil || acc == nil {
		return Edge{}
	}
	return Edge{Fn: acc, InputNr: 0}
}

// setGradientEdge installs a producing node directly.
func (v *Variable) setGradientEdge(edge Edge) {
	v.meta.gradFn = edge.Fn
	v.meta.outputNr = edge.InputNr
}

// RebaseHistory is called when an in-place operation has mutated this
// Variable. For a non-view, the operation's node is installed as the new
// grad_fn. For a view, the node is not attached to the view itself: the
// view's base is rewrapped with a copy-slices node that scatters the
// incoming view-shaped gradient into the correct slice of the base's
// gradient and forwards the rest unchanged; the view's own grad_fn is then
// refreshed from the advanced version counter.
func (v *Variable) RebaseHistory(edge Edge) error {
	if !edge.IsValid() {
		return fmt.Errorf("%w: rebase_history requires a function", tensor.ErrLogic)
	}
	if edge.Fn.NumOutputs() != 1 {
		return fmt.Errorf("%w: functions which modify views in-place must return a single variable",
			tensor.ErrLogic)
	}

	if !v.meta.isView {
		v.setGradientEdge(edge)
		return nil
	}

	if edge.InputNr != 0 {
		return fmt.Errorf("%w: in-place function output slot must be 0, got %d",
			tensor.ErrLogic, edge.InputNr)
	}
	base := v.meta.base
	cs := newCopySlices(base, v.impl, edge.Fn)
	base.setGradientEdge(Edge{Fn: cs, InputNr: 0})
	v.GradFn() // regenerate the view's grad_fn against the bumped version
	return nil
}

// SetData rebinds the Variable to a new TensorImpl, preserving identity. A
// previously built gradient accumulator captured the old dtype/device; when
// either differs it is invalidated so it cannot be reused with stale
// assumptions.
func (v *Variable) SetData(newImpl *tensor.TensorImpl) {
	m := v.meta
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gradAccumulator != nil &&
		(newImpl.DType() != v.impl.DType() || newImpl.Device() != v.impl.Device()) {
		m.gradAccumulator = nil
	}
	newImpl.SetIsVariable(true)
	v.impl = newImpl
}

// Detach returns a new leaf Variable sharing this Variable's storage but cut
// from the graph (no grad_fn, requires-grad off).
func (v *Variable) Detach() *Variable {
	return NewVariable(v.impl.ShallowCopyAndDetach())
}

// DetachInPlace cuts this Variable out of the graph: grad_fn and the
// requires-grad flag are cleared, the data stays. A detached view keeps its
// data aliasing but stops tracking its base.
func (v *Variable) DetachInPlace() {
	m := v.meta
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requiresGrad = false
	m.gradFn = nil
	m.outputNr = 0
	m.gradAccumulator = nil
	m.isView = false
	m.base = nil
}

// Backward runs the engine from this Variable. With a nil gradient an
// all-ones seed shaped like the Variable is synthesized (detached from any
// graph). keepGraph retains saved state for repeated backward passes;
// createGraph makes the backward computation itself differentiable.
func (v *Variable) Backward(eng *Engine, gradient *Variable, keepGraph, createGraph bool) error {
	root := v.GradientEdge()
	if !root.IsValid() {
		return fmt.Errorf("%w: variable does not require grad and has no grad_fn",
			tensor.ErrLogic)
	}

	if gradient == nil {
		seed, err := tensor.NewTensorImpl(v.Sizes().Clone(), v.DType(), v.Device())
		if err != nil {
			return err
		}
		eng.Backend().Fill(seed, 1)
		gradient = NewVariable(seed)
	}

	return eng.Execute([]Edge{root}, []*Variable{gradient}, keepGraph, createGraph)
}

func (v *Variable) String() string {
	return fmt.Sprintf("Variable(%v, requires_grad=%t, is_view=%t)", v.impl, v.RequiresGrad(), v.IsView())
}
