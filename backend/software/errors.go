package software

import "errors"

// Software backend errors.
var (
	// ErrDestroyed is returned by operations on a destroyed adapter.
	ErrDestroyed = errors.New("software: adapter destroyed")

	// ErrDeviceLost is returned after the simulated device has been lost.
	ErrDeviceLost = errors.New("software: device lost")

	// ErrInvalidResource is returned for unknown or destroyed resource IDs.
	ErrInvalidResource = errors.New("software: invalid resource id")

	// ErrInvalidBufferSize is returned when creating a zero-sized buffer.
	ErrInvalidBufferSize = errors.New("software: buffer size must be greater than 0")

	// ErrBufferTooLarge is returned when a buffer exceeds the device limit.
	ErrBufferTooLarge = errors.New("software: buffer exceeds max buffer size")

	// ErrContentsSize is returned when initial contents do not match the buffer size.
	ErrContentsSize = errors.New("software: contents length does not match buffer size")

	// ErrNoKernel is returned when no kernel is registered for a shader.
	ErrNoKernel = errors.New("software: no kernel registered for shader entry point")

	// ErrBindGroupMismatch is returned when bind group entries do not match the layout.
	ErrBindGroupMismatch = errors.New("software: bind group does not match pipeline layout")

	// ErrUsage is returned when a buffer's usage flags do not permit an operation.
	ErrUsage = errors.New("software: buffer usage does not permit operation")

	// ErrBufferMapped is returned when submitted work references a mapped buffer.
	ErrBufferMapped = errors.New("software: buffer is mapped or has a pending map")

	// ErrDispatchTooLarge is returned when a workgroup count exceeds the device limit.
	ErrDispatchTooLarge = errors.New("software: workgroup count exceeds limit")

	// ErrCopyNotAligned is returned when a copy size is not a multiple of 4.
	ErrCopyNotAligned = errors.New("software: copy size must be a multiple of 4")

	// ErrCopyOutOfBounds is returned when a copy exceeds either buffer.
	ErrCopyOutOfBounds = errors.New("software: copy range out of bounds")
)
