package autograd

import "sync/atomic"

// Grad mode gates graph construction: while disabled, forward operations run
// their kernels but record no Function nodes. The engine disables it during
// backward execution unless createGraph is requested.
//
// The flag is process-wide (Go has no thread-local state); hold a guard only
// around synchronous sections, as with tensor.EnterNonVariableMode.
var gradModeDisabled atomic.Int32

// GradEnabled reports whether forward operations record the graph.
func GradEnabled() bool {
	return gradModeDisabled.Load() == 0
}

// SetGradEnabled sets grad mode and returns a restore function that puts the
// previous mode back. Guards nest last-in first-out.
func SetGradEnabled(enabled bool) func() {
	var v int32
	if !enabled {
		v = 1
	}
	prev := gradModeDisabled.Swap(v)
	return func() {
		gradModeDisabled.Store(prev)
	}
}

// EnterNoGrad disables graph recording and returns the restore function.
//
//	defer autograd.EnterNoGrad()()
func EnterNoGrad() func() {
	return SetGradEnabled(false)
}
