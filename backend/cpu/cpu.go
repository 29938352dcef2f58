// Copyright 2026 Ember ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU kernel backend.
//
// Kernels are pure Go, built on gonum for dense float math, with chunked
// parallel execution for large tensors.
package cpu

import (
	internalcpu "github.com/ember-ml/ember/internal/backend/cpu"
	"github.com/ember-ml/ember/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend.
//
// Example:
//
//	be := cpu.New()
//	eng := autograd.NewEngine(be, autograd.DefaultConfig())
func New() *Backend {
	return internalcpu.New()
}
