package tensor

import (
	"errors"
	"testing"
)

func TestAllocateStorage(t *testing.T) {
	s, err := AllocateStorage(16, Float32, CPU)
	if err != nil {
		t.Fatalf("AllocateStorage failed: %v", err)
	}
	if s.ByteSize() != 16 {
		t.Errorf("ByteSize() = %d, want 16", s.ByteSize())
	}
	if s.DType() != Float32 || s.Device() != CPU {
		t.Errorf("tags = (%s, %s), want (float32, CPU)", s.DType(), s.Device())
	}
	if !s.UniqueOwner() {
		t.Error("fresh storage should have a single owner")
	}
	for _, b := range s.Data() {
		if b != 0 {
			t.Fatal("fresh storage must be zero-filled")
		}
	}
}

func TestAllocateStorageErrors(t *testing.T) {
	if _, err := AllocateStorage(-1, Float32, CPU); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative size error = %v, want ErrInvalidArgument", err)
	}
	if _, err := AllocateStorage(1<<50, Float32, CUDA); !errors.Is(err, ErrAllocation) {
		t.Errorf("oversized error = %v, want ErrAllocation", err)
	}
}

func TestStorageRefCounting(t *testing.T) {
	s, err := AllocateStorage(8, Float32, CPU)
	if err != nil {
		t.Fatalf("AllocateStorage failed: %v", err)
	}

	s.AddRef()
	if s.UniqueOwner() {
		t.Error("UniqueOwner() should be false with two owners")
	}

	s.Release()
	if !s.UniqueOwner() {
		t.Error("UniqueOwner() should be true after one release")
	}
	if s.Data() == nil {
		t.Error("buffer freed while still owned")
	}

	s.Release()
	if s.Data() != nil {
		t.Error("buffer not freed at refcount zero")
	}
}

func TestStorageResizePreservesData(t *testing.T) {
	s, err := AllocateStorage(4, Uint8, CPU)
	if err != nil {
		t.Fatalf("AllocateStorage failed: %v", err)
	}
	copy(s.Data(), []byte{1, 2, 3, 4})

	if err := s.Resize(8); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if s.ByteSize() != 8 {
		t.Errorf("ByteSize() = %d, want 8", s.ByteSize())
	}
	for i, want := range []byte{1, 2, 3, 4, 0, 0, 0, 0} {
		if s.Data()[i] != want {
			t.Errorf("data[%d] = %d, want %d", i, s.Data()[i], want)
		}
	}

	if err := s.Resize(2); err != nil {
		t.Fatalf("shrink failed: %v", err)
	}
	if s.ByteSize() != 2 {
		t.Errorf("ByteSize() = %d after shrink, want 2", s.ByteSize())
	}

	if err := s.Resize(1 << 50); !errors.Is(err, ErrAllocation) {
		t.Errorf("oversized resize error = %v, want ErrAllocation", err)
	}
}

func TestTensorSharesStorageRefs(t *testing.T) {
	base, err := NewTensorImpl(Shape{4}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewTensorImpl failed: %v", err)
	}
	if !base.Storage().UniqueOwner() {
		t.Fatal("single tensor should uniquely own its storage")
	}

	view, err := base.Narrow(0, 1, 2)
	if err != nil {
		t.Fatalf("Narrow failed: %v", err)
	}
	if base.Storage().UniqueOwner() {
		t.Error("storage should have two owners after a view is taken")
	}

	view.Release()
	if !base.Storage().UniqueOwner() {
		t.Error("releasing the view should return unique ownership")
	}
}
