package autograd

import (
	"fmt"

	"github.com/ember-ml/ember/internal/tensor"
)

// viewGeometry pins down how a view addresses its base's storage: the view's
// sizes and strides plus its element offset relative to the base's own
// storage offset.
type viewGeometry struct {
	sizes     tensor.Shape
	strides   []int
	relOffset int
}

func captureGeometry(base *Variable, viewImpl *tensor.TensorImpl) viewGeometry {
	return viewGeometry{
		sizes:     viewImpl.Sizes().Clone(),
		strides:   append([]int(nil), viewImpl.Strides()...),
		relOffset: viewImpl.StorageOffset() - base.impl.StorageOffset(),
	}
}

// asStridedBackward routes a view's gradient back into its base: the
// view-shaped gradient is scatter-added into a zero tensor shaped like the
// base, through the view's geometry. It is the node synthesized both when a
// view is created and when a view's grad_fn is regenerated after the shared
// version counter advances.
//
// The geometry is interpreted against a densely packed base, so the base
// must be contiguous at capture time.
type asStridedBackward struct {
	funcBase
	baseSizes  tensor.Shape
	baseContig bool
	dtype      tensor.DataType
	device     tensor.Device
	geom       viewGeometry
}

func newAsStridedBackward(base *Variable, viewImpl *tensor.TensorImpl) *asStridedBackward {
	return &asStridedBackward{
		funcBase:   newFuncBase(1, collectNextEdges(base)),
		baseSizes:  base.Sizes().Clone(),
		baseContig: base.impl.IsContiguous(),
		dtype:      base.DType(),
		device:     base.Device(),
		geom:       captureGeometry(base, viewImpl),
	}
}

func (f *asStridedBackward) Name() string { return "AsStridedBackward" }

func (f *asStridedBackward) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g := gradOutputs[0]
	if g == nil {
		return []*Variable{nil}, nil
	}
	if !f.baseContig {
		return nil, fmt.Errorf("%w: gradient of a view over a non-contiguous base", tensor.ErrUnsupported)
	}

	gradBase, err := tensor.NewTensorImpl(f.baseSizes.Clone(), f.dtype, f.device)
	if err != nil {
		return nil, err
	}
	src := g.impl
	if !src.IsContiguous() {
		src = be.Clone(src)
	}
	be.ScatterAddStrided(gradBase, f.geom.sizes, f.geom.strides,
		gradBase.StorageOffset()+f.geom.relOffset, src)
	return []*Variable{NewVariable(gradBase)}, nil
}

// copySlices wraps the node recorded by an in-place operation on a view. The
// base-shaped gradient is sliced through the view's geometry, run through the
// wrapped node, and the slice of the result is written back over a copy of
// the incoming gradient; positions outside the view pass through untouched.
//
// Next edge 0 is the base's pre-mutation history; the wrapped node's edges
// past its own slot 0 follow.
type copySlices struct {
	funcBase
	fn   Function
	geom viewGeometry
}

func newCopySlices(base *Variable, viewImpl *tensor.TensorImpl, fn Function) *copySlices {
	next := make([]Edge, 0, len(fn.NextEdges()))
	next = append(next, base.GradientEdge())
	next = append(next, fn.NextEdges()[1:]...)
	return &copySlices{
		funcBase: newFuncBase(1, next),
		fn:       fn,
		geom:     captureGeometry(base, viewImpl),
	}
}

func (c *copySlices) Name() string { return "CopySlices" }

func (c *copySlices) Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error) {
	g := gradOutputs[0]
	if g == nil {
		out := make([]*Variable, 1+len(c.fn.NextEdges())-1)
		return out, nil
	}
	gi := g.impl
	if !gi.IsContiguous() {
		gi = be.Clone(gi)
	}

	gradSlice := be.GatherStrided(gi, c.geom.sizes, c.geom.strides,
		gi.StorageOffset()+c.geom.relOffset)
	res, err := c.fn.Apply(be, []*Variable{NewVariable(gradSlice)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.fn.Name(), err)
	}

	out0 := be.Clone(gi)
	if res[0] != nil {
		src := res[0].impl
		if !src.IsContiguous() {
			src = be.Clone(src)
		}
		be.ScatterStrided(out0, c.geom.sizes, c.geom.strides,
			out0.StorageOffset()+c.geom.relOffset, src)
	} else {
		zeros, err := tensor.NewTensorImpl(c.geom.sizes.Clone(), gi.DType(), gi.Device())
		if err != nil {
			return nil, err
		}
		be.ScatterStrided(out0, c.geom.sizes, c.geom.strides,
			out0.StorageOffset()+c.geom.relOffset, zeros)
	}

	outputs := make([]*Variable, 0, len(res))
	outputs = append(outputs, NewVariable(out0))
	outputs = append(outputs, res[1:]...)
	return outputs, nil
}

func (c *copySlices) ReleaseSavedState() {
	c.fn.ReleaseSavedState()
	c.funcBase.ReleaseSavedState()
}

func (c *copySlices) Released() bool {
	return c.funcBase.Released() || c.fn.Released()
}
