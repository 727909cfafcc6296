package compute

import "errors"

// Allocation errors.
var (
	// ErrAllocation is returned when the device rejects a buffer allocation.
	ErrAllocation = errors.New("compute: buffer allocation failed")

	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the
	// context's memory budget. It wraps ErrAllocation.
	ErrMemoryBudgetExceeded = subError(ErrAllocation, "memory budget exceeded")

	// ErrShaderCompile is returned when shader source cannot be reflected or
	// the device rejects the compute pipeline.
	ErrShaderCompile = errors.New("compute: shader compilation failed")
)

// Binding validation errors. The specific errors wrap ErrBindingValidation.
var (
	// ErrBindingValidation is returned when the bound set does not match the
	// slots the shader declares.
	ErrBindingValidation = errors.New("compute: binding validation failed")

	// ErrMissingBinding is returned when a declared slot has no binding.
	ErrMissingBinding = subError(ErrBindingValidation, "declared slot has no binding")

	// ErrBindingConflict is returned when two bindings share a (group, slot) pair.
	ErrBindingConflict = subError(ErrBindingValidation, "two bindings share a slot")

	// ErrUndeclaredBinding is returned when a binding targets a slot the shader
	// does not declare.
	ErrUndeclaredBinding = subError(ErrBindingValidation, "binding targets an undeclared slot")

	// ErrBindingUsage is returned when a bound buffer's policy does not permit
	// the kind of binding the shader declares.
	ErrBindingUsage = subError(ErrBindingValidation, "buffer usage does not match declared binding")

	// ErrEmptyBinding is returned when a zero-sized buffer is bound.
	ErrEmptyBinding = subError(ErrBindingValidation, "zero-sized buffer cannot be bound")
)

// Lifecycle and readback errors.
var (
	// ErrMapFailed is returned by ReadBytes when the host mapping fails.
	ErrMapFailed = errors.New("compute: buffer map failed")

	// ErrReleased is returned when using a buffer or shader that has been released.
	ErrReleased = errors.New("compute: resource released")

	// ErrContextClosed is returned when using a closed context.
	ErrContextClosed = errors.New("compute: context closed")

	// ErrNilBuffer is returned when a nil buffer is used.
	ErrNilBuffer = errors.New("compute: buffer is nil")
)

// Command encoder errors.
var (
	// ErrEncoderLocked is returned when operations are called on an encoder
	// that is locked (a pass is in progress).
	ErrEncoderLocked = errors.New("compute: encoder is locked (pass in progress)")

	// ErrEncoderFinished is returned when operations are called on an encoder
	// that has already been finished.
	ErrEncoderFinished = errors.New("compute: encoder already finished")

	// ErrEncoderConsumed is returned when a command buffer is submitted twice.
	ErrEncoderConsumed = errors.New("compute: command buffer has been consumed")

	// ErrCopySizeNotAligned is returned when a copy size is not a multiple of 4.
	ErrCopySizeNotAligned = errors.New("compute: copy size must be 4-byte aligned")

	// ErrCopyRangeOutOfBounds is returned when a copy exceeds buffer bounds.
	ErrCopyRangeOutOfBounds = errors.New("compute: copy range out of bounds")
)

// Compute pass errors.
var (
	// ErrComputePassEnded is returned when operations are called on an ended compute pass.
	ErrComputePassEnded = errors.New("compute: compute pass has already ended")

	// ErrNilComputePipeline is returned when SetPipeline is called with nil.
	ErrNilComputePipeline = errors.New("compute: compute pipeline is nil")

	// ErrNoPipeline is returned when dispatching without a pipeline.
	ErrNoPipeline = errors.New("compute: no compute pipeline set")

	// ErrNilComputeBindGroup is returned when SetBindGroup is called with an invalid ID.
	ErrNilComputeBindGroup = errors.New("compute: bind group is nil")

	// ErrComputeBindGroupIndexOutOfRange is returned when bind group index exceeds the device limit.
	ErrComputeBindGroupIndexOutOfRange = errors.New("compute: bind group index exceeds maximum")
)

// wrappedError is a sentinel that also matches its parent with errors.Is.
type wrappedError struct {
	parent error
	msg    string
}

func (e *wrappedError) Error() string { return e.parent.Error() + ": " + e.msg }
func (e *wrappedError) Unwrap() error { return e.parent }

func subError(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}
