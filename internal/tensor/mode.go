package tensor

import "sync/atomic"

// Non-variable mode forces dispatch to treat every tensor as
// non-differentiable for the duration of a scoped guard. Generated dispatch
// shims enter it before calling back into base kernels so that IsVariable()
// gating cannot recurse into the autograd layer.
//
// Go has no thread-local storage, so the mode is process-wide: hold the guard
// only around synchronous calls that do not hand tensors to other goroutines.
var nonVariableDepth atomic.Int32

// NonVariableModeEnabled reports whether a non-variable mode guard is held.
func NonVariableModeEnabled() bool {
	return nonVariableDepth.Load() > 0
}

// EnterNonVariableMode enables non-variable mode and returns the restore
// function. Guards nest.
//
//	defer tensor.EnterNonVariableMode()()
func EnterNonVariableMode() func() {
	nonVariableDepth.Add(1)
	return func() {
		nonVariableDepth.Add(-1)
	}
}
