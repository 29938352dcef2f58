package autograd

import (
	"fmt"

	"github.com/ember-ml/ember/internal/tensor"
)

// contiguousImpl materializes a Variable's data for kernels that require
// contiguous operands.
func contiguousImpl(be tensor.Backend, v *Variable) *tensor.TensorImpl {
	if v.impl.IsContiguous() {
		return v.impl
	}
	return be.Clone(v.impl)
}

// recording reports whether an operation over the given inputs should build a
// graph node.
func recording(inputs ...*Variable) bool {
	if !GradEnabled() {
		return false
	}
	for _, v := range inputs {
		if v != nil && v.RequiresGrad() {
			return true
		}
	}
	return false
}

func checkSameShape(op string, a, b *Variable) error {
	if !a.Sizes().Equal(b.Sizes()) {
		return fmt.Errorf("%w: %s: shape mismatch %v vs %v", tensor.ErrInvalidArgument, op, a.Sizes(), b.Sizes())
	}
	return nil
}

// Add returns a + b, recording the operation when gradients are tracked.
func Add(be tensor.Backend, a, b *Variable) (*Variable, error) {
	if err := checkSameShape("add", a, b); err != nil {
		return nil, err
	}
	out := be.Add(contiguousImpl(be, a), contiguousImpl(be, b))
	if !recording(a, b) {
		return NewVariable(out), nil
	}
	fn := &addBackward{funcBase: newFuncBase(1, collectNextEdges(a, b))}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

// addBackward: d(a+b)/da = d(a+b)/db = 1.
type addBackward struct {
	funcBase
}

func (f *addBackward) Name() string { return "AddBackward" }

func (f *addBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g := gradOutputs[0]
	return []*Variable{g, g}, nil
}

// Mul returns a * b element-wise, recording the operation when gradients are
// tracked. The inputs are saved for the backward pass.
func Mul(be tensor.Backend, a, b *Variable) (*Variable, error) {
	if err := checkSameShape("mul", a, b); err != nil {
		return nil, err
	}
	out := be.Mul(contiguousImpl(be, a), contiguousImpl(be, b))
	if !recording(a, b) {
		return NewVariable(out), nil
	}
	fn := &mulBackward{
		funcBase: newFuncBase(1, collectNextEdges(a, b)),
		a:        a,
		b:        b,
	}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

// mulBackward: d(a*b)/da = b, d(a*b)/db = a. Saves both inputs; releasing
// the saved state forbids a second backward through this node.
type mulBackward struct {
	funcBase
	a, b *Variable
}

func (f *mulBackward) Name() string { return "MulBackward" }

func (f *mulBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g := gradOutputs[0]
	ga, err := Mul(be, g, f.b)
	if err != nil {
		return nil, err
	}
	gb, err := Mul(be, g, f.a)
	if err != nil {
		return nil, err
	}
	return []*Variable{ga, gb}, nil
}

func (f *mulBackward) ReleaseSavedState() {
	f.a, f.b = nil, nil
	f.funcBase.ReleaseSavedState()
}

// Neg returns -x.
func Neg(be tensor.Backend, x *Variable) (*Variable, error) {
	out := be.Neg(contiguousImpl(be, x))
	if !recording(x) {
		return NewVariable(out), nil
	}
	fn := &negBackward{funcBase: newFuncBase(1, collectNextEdges(x))}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

type negBackward struct {
	funcBase
}

func (f *negBackward) Name() string { return "NegBackward" }

func (f *negBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g, err := Neg(be, gradOutputs[0])
	if err != nil {
		return nil, err
	}
	return []*Variable{g}, nil
}

// MulScalar returns x * s.
func MulScalar(be tensor.Backend, x *Variable, s float64) (*Variable, error) {
	out := be.MulScalar(contiguousImpl(be, x), s)
	if !recording(x) {
		return NewVariable(out), nil
	}
	fn := &mulScalarBackward{funcBase: newFuncBase(1, collectNextEdges(x)), s: s}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

// mulScalarBackward: d(x*s)/dx = s. Also serves as the node recorded by
// MulScalarInPlace.
type mulScalarBackward struct {
	funcBase
	s float64
}

func (f *mulScalarBackward) Name() string { return "MulScalarBackward" }

func (f *mulScalarBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g, err := MulScalar(be, gradOutputs[0], f.s)
	if err != nil {
		return nil, err
	}
	return []*Variable{g}, nil
}

// Sum reduces x to a 0-dimensional scalar.
func Sum(be tensor.Backend, x *Variable) (*Variable, error) {
	out := be.Sum(contiguousImpl(be, x))
	if !recording(x) {
		return NewVariable(out), nil
	}
	fn := &sumBackward{
		funcBase: newFuncBase(1, collectNextEdges(x)),
		inSizes:  x.Sizes().Clone(),
	}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

// sumBackward broadcasts the scalar gradient back to the input shape.
type sumBackward struct {
	funcBase
	inSizes tensor.Shape
}

func (f *sumBackward) Name() string { return "SumBackward" }

func (f *sumBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g, err := Expand(be, gradOutputs[0], f.inSizes)
	if err != nil {
		return nil, err
	}
	return []*Variable{g}, nil
}

// Expand broadcasts a scalar (or size-1) tensor to shape.
func Expand(be tensor.Backend, x *Variable, shape tensor.Shape) (*Variable, error) {
	out := be.BroadcastTo(contiguousImpl(be, x), shape)
	if !recording(x) {
		return NewVariable(out), nil
	}
	if x.impl.Numel() != 1 {
		return nil, fmt.Errorf("%w: expand gradient is only defined for single-element inputs, got %v",
			tensor.ErrUnsupported, x.Sizes())
	}
	fn := &expandBackward{
		funcBase: newFuncBase(1, collectNextEdges(x)),
		inSizes:  x.Sizes().Clone(),
	}
	return makeFromEdge(out, Edge{Fn: fn, InputNr: 0}), nil
}

// expandBackward sums the gradient back down to the single-element input.
type expandBackward struct {
	funcBase
	inSizes tensor.Shape
}

func (f *expandBackward) Name() string { return "ExpandBackward" }

func (f *expandBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g, err := Sum(be, gradOutputs[0])
	if err != nil {
		return nil, err
	}
	if len(f.inSizes) > 0 {
		// Restore the input's size-1 dimensions.
		strides := f.inSizes.ComputeStrides()
		reshaped, err := tensor.NewTensorImplOfStorage(g.impl.Storage(), g.impl.StorageOffset(), f.inSizes, strides)
		if err != nil {
			return nil, err
		}
		g = NewVariable(reshaped)
	}
	return []*Variable{g}, nil
}

// Narrow returns a view of x restricted to length elements of dimension dim
// starting at start. The result shares x's storage and version counter.
func Narrow(x *Variable, dim, start, length int) (*Variable, error) {
	viewImpl, err := x.impl.Narrow(dim, start, length)
	if err != nil {
		return nil, err
	}

	var edge Edge
	if recording(x) {
		base := x
		if x.IsView() {
			base = x.Base()
		}
		edge = Edge{Fn: newAsStridedBackward(base, viewImpl), InputNr: 0}
	}
	return makeView(x, viewImpl, edge), nil
}

// checkInPlaceAllowed rejects in-place mutation of leaves (and views of
// leaves) that require grad: the leaf's accumulated history cannot be
// rewritten.
func checkInPlaceAllowed(v *Variable) error {
	target := v
	kind := "a leaf variable"
	if v.IsView() {
		target = v.Base()
		kind = "a view of a leaf variable"
	}
	if GradEnabled() && target.RequiresGrad() && target.GradFn() == nil {
		return fmt.Errorf("%w: %s that requires grad is being used in an in-place operation",
			tensor.ErrLogic, kind)
	}
	return nil
}

// applyInPlace runs compute over v's materialized values and scatters the
// result back through v's geometry, bumping the shared version counter.
func applyInPlace(be tensor.Backend, v *Variable, compute func(vals *tensor.TensorImpl) *tensor.TensorImpl) {
	impl := v.impl
	vals := be.GatherStrided(impl, impl.Sizes(), impl.Strides(), impl.StorageOffset())
	res := compute(vals)
	be.ScatterStrided(impl, impl.Sizes(), impl.Strides(), impl.StorageOffset(), res)
	v.BumpVersion()
}

// MulScalarInPlace multiplies v by s in place and rebases v's gradient
// history onto the recorded node.
func MulScalarInPlace(be tensor.Backend, v *Variable, s float64) error {
	if err := checkInPlaceAllowed(v); err != nil {
		return err
	}

	record := recording(v)
	var next []Edge
	if record {
		next = collectNextEdges(v) // pre-mutation history
	}

	applyInPlace(be, v, func(vals *tensor.TensorImpl) *tensor.TensorImpl {
		return be.MulScalar(vals, s)
	})

	if !record {
		return nil
	}
	fn := &mulScalarBackward{funcBase: newFuncBase(1, next), s: s}
	return v.RebaseHistory(Edge{Fn: fn, InputNr: 0})
}

// AddInPlace adds other into v in place and rebases v's gradient history.
func AddInPlace(be tensor.Backend, v, other *Variable) error {
	if err := checkSameShape("add_", v, other); err != nil {
		return err
	}
	if err := checkInPlaceAllowed(v); err != nil {
		return err
	}

	record := recording(v, other)
	var next []Edge
	if record {
		next = collectNextEdges(v, other)
	}

	otherImpl := contiguousImpl(be, other)
	applyInPlace(be, v, func(vals *tensor.TensorImpl) *tensor.TensorImpl {
		return be.Add(vals, otherImpl)
	})

	if !record {
		return nil
	}
	fn := &addBackward{funcBase: newFuncBase(1, next)}
	return v.RebaseHistory(Edge{Fn: fn, InputNr: 0})
}
