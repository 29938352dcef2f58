// Copyright 2026 Ember ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autograd provides reverse-mode automatic differentiation for the
// Ember ML framework.
//
// Differentiable computation happens through Variables: forward operations
// record a graph of Function nodes, and the Engine traverses it backward,
// accumulating gradients into the leaves.
//
// Example:
//
//	be := cpu.New()
//	eng := autograd.NewEngine(be, autograd.DefaultConfig())
//
//	x, _ := autograd.NewLeafFromSlice([]float32{1, 2, 3}, tensor.Shape{3})
//	y, _ := autograd.Mul(be, x, x)
//	loss, _ := autograd.Sum(be, y)
//
//	if err := loss.Backward(eng, nil, false, false); err != nil {
//	    log.Fatal(err)
//	}
//	grad := x.Grad() // d(sum(x*x))/dx = 2x
package autograd

import (
	"github.com/ember-ml/ember/internal/autograd"
	"github.com/ember-ml/ember/internal/tensor"
)

// Variable is a differentiable tensor handle.
type Variable = autograd.Variable

// Function is one node of the recorded graph.
type Function = autograd.Function

// Edge points at one input slot of a Function.
type Edge = autograd.Edge

// AccumulateGrad is the terminal node that sums gradients into a leaf.
type AccumulateGrad = autograd.AccumulateGrad

// Engine executes backward passes.
type Engine = autograd.Engine

// Config controls backward execution.
type Config = autograd.Config

// VersionCounter tracks in-place mutations; views share their base's counter.
type VersionCounter = autograd.VersionCounter

// NewEngine builds an engine over a kernel backend.
func NewEngine(backend tensor.Backend, cfg Config) *Engine {
	return autograd.NewEngine(backend, cfg)
}

// DefaultConfig sizes the engine to the machine.
func DefaultConfig() Config {
	return autograd.DefaultConfig()
}

// LoadConfig reads an engine Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	return autograd.LoadConfig(path)
}

// NewVariable wraps an impl as a non-differentiable Variable.
func NewVariable(impl *tensor.TensorImpl) *Variable {
	return autograd.NewVariable(impl)
}

// NewLeaf wraps an impl as a graph leaf, optionally requiring grad.
func NewLeaf(impl *tensor.TensorImpl, requiresGrad bool) (*Variable, error) {
	return autograd.NewLeaf(impl, requiresGrad)
}

// NewLeafFromSlice builds a requires-grad leaf directly from data.
func NewLeafFromSlice[T tensor.DType](data []T, shape tensor.Shape) (*Variable, error) {
	impl, err := tensor.FromSlice(data, shape)
	if err != nil {
		return nil, err
	}
	return autograd.NewLeaf(impl, true)
}

// GradEnabled reports whether forward operations record the graph.
func GradEnabled() bool {
	return autograd.GradEnabled()
}

// SetGradEnabled sets grad mode, returning a restore function for the
// previous mode.
func SetGradEnabled(enabled bool) func() {
	return autograd.SetGradEnabled(enabled)
}

// EnterNoGrad disables graph recording until the returned restore function
// is called.
//
//	defer autograd.EnterNoGrad()()
func EnterNoGrad() func() {
	return autograd.EnterNoGrad()
}

// Recorded operations.

// Add returns a + b.
func Add(be tensor.Backend, a, b *Variable) (*Variable, error) {
	return autograd.Add(be, a, b)
}

// Mul returns a * b element-wise.
func Mul(be tensor.Backend, a, b *Variable) (*Variable, error) {
	return autograd.Mul(be, a, b)
}

// Neg returns -x.
func Neg(be tensor.Backend, x *Variable) (*Variable, error) {
	return autograd.Neg(be, x)
}

// MulScalar returns x * s.
func MulScalar(be tensor.Backend, x *Variable, s float64) (*Variable, error) {
	return autograd.MulScalar(be, x, s)
}

// Sum reduces x to a 0-dimensional scalar.
func Sum(be tensor.Backend, x *Variable) (*Variable, error) {
	return autograd.Sum(be, x)
}

// Expand broadcasts a single-element tensor to shape.
func Expand(be tensor.Backend, x *Variable, shape tensor.Shape) (*Variable, error) {
	return autograd.Expand(be, x, shape)
}

// Narrow returns a gradient-tracking view of x.
func Narrow(x *Variable, dim, start, length int) (*Variable, error) {
	return autograd.Narrow(x, dim, start, length)
}

// AddInPlace adds other into v in place, rebasing v's gradient history.
func AddInPlace(be tensor.Backend, v, other *Variable) error {
	return autograd.AddInPlace(be, v, other)
}

// MulScalarInPlace multiplies v by s in place, rebasing v's gradient history.
func MulScalarInPlace(be tensor.Backend, v *Variable, s float64) error {
	return autograd.MulScalarInPlace(be, v, s)
}
