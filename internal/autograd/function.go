package autograd

import (
	"sync/atomic"

	"github.com/ember-ml/ember/internal/tensor"
)

// Function is one node of the autograd graph: the record of a differentiable
// operation. The engine invokes Apply with the gradients of the operation's
// outputs (one slot per output) and routes the returned gradients along
// NextEdges (one per differentiable input; slots of non-participating inputs
// are nil).
type Function interface {
	// Name identifies the node kind in error messages.
	Name() string

	// Apply computes input gradients from output gradients. gradOutputs has
	// NumOutputs entries (missing gradients are nil); the result must have
	// one entry per next edge.
	Apply(be tensor.Backend, gradOutputs []*Variable) ([]*Variable, error)

	// NextEdges returns the graph edges toward the producers of the
	// operation's forward inputs.
	NextEdges() []Edge

	// NumInputs returns how many forward inputs the operation took (the
	// number of gradients Apply produces).
	NumInputs() int

	// NumOutputs returns how many outputs the forward operation produced
	// (the number of gradient slots Apply consumes).
	NumOutputs() int

	// SequenceNr is the node's creation order during the forward pass. The
	// engine uses it to break ties among ready nodes deterministically.
	SequenceNr() uint64

	// ReleaseSavedState drops forward state saved for the backward pass.
	// Called by the engine after Apply when the graph is not being retained;
	// a released node cannot be applied again.
	ReleaseSavedState()

	// Released reports whether saved state has been dropped.
	Released() bool
}

// sequenceCounter numbers nodes in forward creation order.
var sequenceCounter atomic.Uint64

func nextSequenceNr() uint64 {
	return sequenceCounter.Add(1)
}

// funcBase carries the bookkeeping every Function node shares. Concrete ops
// embed it and implement Name and Apply.
type funcBase struct {
	seq        uint64
	next       []Edge
	numOutputs int
	released   bool
}

func newFuncBase(numOutputs int, next []Edge) funcBase {
	return funcBase{
		seq:        nextSequenceNr(),
		next:       next,
		numOutputs: numOutputs,
	}
}

func (f *funcBase) NextEdges() []Edge {
	return f.next
}

func (f *funcBase) NumInputs() int {
	return len(f.next)
}

func (f *funcBase) NumOutputs() int {
	return f.numOutputs
}

func (f *funcBase) SequenceNr() uint64 {
	return f.seq
}

func (f *funcBase) ReleaseSavedState() {
	f.released = true
}

func (f *funcBase) Released() bool {
	return f.released
}

// collectNextEdges builds the next-edge list for an operation's inputs:
// the producing node's edge for non-leaves, the gradient accumulator for
// leaves that require grad, and an invalid edge otherwise.
func collectNextEdges(inputs ...*Variable) []Edge {
	edges := make([]Edge, len(inputs))
	for i, v := range inputs {
		if v == nil || !v.RequiresGrad() {
			continue
		}
		edges[i] = v.GradientEdge()
	}
	return edges
}
