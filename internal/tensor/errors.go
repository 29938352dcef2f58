package tensor

import "errors"

// Error taxonomy for the tensor core. All failures are surfaced synchronously
// at the point of violation; these are programming-contract violations, never
// retried or downgraded. Callers match with errors.Is.
var (
	// ErrInvalidArgument marks bad shape/dimension combinations and dtype
	// mismatches (e.g. enabling grad on a non-floating-point tensor).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndex marks a dimension index that is out of range after negative
	// wraparound.
	ErrIndex = errors.New("index out of range")

	// ErrLogic marks misuse of an API invariant (e.g. requesting the gradient
	// accumulator of a non-leaf variable).
	ErrLogic = errors.New("logic error")

	// ErrUnsupported marks a feature that is not available on the current
	// backend or build.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrAllocation marks a storage allocation failure.
	ErrAllocation = errors.New("allocation failed")
)
