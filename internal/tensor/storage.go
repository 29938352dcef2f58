package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Device represents the compute device a storage buffer resides on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// maxStorageBytes caps a single allocation. Anything larger is treated as
// device memory exhaustion rather than letting the runtime abort.
const maxStorageBytes = 1 << 40

// Storage is a reference-counted raw byte buffer with an associated element
// type and device affinity. It is shared by every TensorImpl that aliases the
// same allocation (views included); the last owner to release it frees the
// buffer.
type Storage struct {
	data   []byte
	dtype  DataType
	device Device

	refs atomic.Int32
	mu   sync.Mutex // guards data during resize/deallocation
}

// AllocateStorage creates a zero-filled buffer of byteSize bytes with
// refcount 1. Returns ErrAllocation if the requested size cannot be served.
func AllocateStorage(byteSize int, dtype DataType, device Device) (*Storage, error) {
	if byteSize < 0 {
		return nil, fmt.Errorf("%w: negative storage size %d", ErrInvalidArgument, byteSize)
	}
	if byteSize > maxStorageBytes {
		return nil, fmt.Errorf("%w: requested %d bytes on %s exceeds limit", ErrAllocation, byteSize, device)
	}

	s := &Storage{
		data:   make([]byte, byteSize),
		dtype:  dtype,
		device: device,
	}
	s.refs.Store(1)
	return s, nil
}

// ByteSize returns the current capacity of the buffer in bytes.
func (s *Storage) ByteSize() int {
	return len(s.data)
}

// DType returns the element type tag of the buffer.
func (s *Storage) DType() DataType {
	return s.dtype
}

// Device returns the device the buffer resides on.
func (s *Storage) Device() Device {
	return s.device
}

// Data returns the raw byte slice.
// WARNING: direct access to underlying memory. Use with caution.
func (s *Storage) Data() []byte {
	return s.data
}

// Resize grows or shrinks the buffer in place, preserving the leading bytes.
// Growing zero-fills the new extent. Callers must not resize while another
// owner depends on the old extent; Storage does not enforce that policy.
func (s *Storage) Resize(newByteSize int) error {
	if newByteSize < 0 {
		return fmt.Errorf("%w: negative storage size %d", ErrInvalidArgument, newByteSize)
	}
	if newByteSize > maxStorageBytes {
		return fmt.Errorf("%w: requested %d bytes on %s exceeds limit", ErrAllocation, newByteSize, s.device)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if newByteSize == len(s.data) {
		return nil
	}
	grown := make([]byte, newByteSize)
	copy(grown, s.data)
	s.data = grown
	return nil
}

// AddRef increments the reference count (a new owner shares the buffer).
func (s *Storage) AddRef() {
	s.refs.Add(1)
}

// Release decrements the reference count and frees the buffer when it
// reaches zero.
func (s *Storage) Release() {
	if s.refs.Add(-1) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.data = nil
	}
}

// UniqueOwner reports whether exactly one owner references the buffer.
// Callers use this to enforce the resize aliasing policy and to decide
// whether in-place writes are safe.
func (s *Storage) UniqueOwner() bool {
	return s.refs.Load() == 1
}
