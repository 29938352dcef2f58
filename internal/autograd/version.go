package autograd

import "sync/atomic"

// VersionCounter tracks in-place mutations of a tensor's data. A view and its
// base share one counter; every in-place write bumps it, and the view's
// grad_fn cache compares its recorded version against the current one with a
// single atomic load (no lock on the hot path).
type VersionCounter struct {
	v *atomic.Uint32
}

// NewVersionCounter creates a counter at version 0.
func NewVersionCounter() VersionCounter {
	return VersionCounter{v: new(atomic.Uint32)}
}

// Bump records one in-place mutation.
func (c VersionCounter) Bump() {
	c.v.Add(1)
}

// Current returns the current version.
func (c VersionCounter) Current() uint32 {
	return c.v.Load()
}

// Shares reports whether two counters are the same underlying counter.
func (c VersionCounter) Shares(other VersionCounter) bool {
	return c.v == other.v
}
