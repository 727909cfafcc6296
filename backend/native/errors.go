// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrProviderNotHAL is returned when a device provider does not expose
	// HAL device and queue handles.
	ErrProviderNotHAL = errors.New("native: provider does not expose HAL types")

	// ErrDeviceLost is returned when the GPU device is lost.
	ErrDeviceLost = errors.New("native: GPU device lost")

	// ErrDestroyed is returned when using a destroyed adapter.
	ErrDestroyed = errors.New("native: adapter destroyed")

	// ErrInvalidResource is returned for unknown resource IDs.
	ErrInvalidResource = errors.New("native: invalid resource ID")

	// ErrInvalidBufferSize is returned for zero-sized buffers.
	ErrInvalidBufferSize = errors.New("native: buffer size must be greater than zero")

	// ErrBufferTooLarge is returned when a buffer exceeds MaxBufferSize.
	ErrBufferTooLarge = errors.New("native: buffer exceeds maximum size")

	// ErrContentsSize is returned when initial contents do not match the buffer size.
	ErrContentsSize = errors.New("native: contents length does not match buffer size")

	// ErrBindGroupMismatch is returned when bind group entries do not match
	// the pipeline layout.
	ErrBindGroupMismatch = errors.New("native: bind group does not match pipeline layout")

	// ErrUsage is returned when a buffer lacks the usage an operation needs.
	ErrUsage = errors.New("native: buffer usage does not allow operation")

	// ErrBufferMapped is returned when submitted work touches a mapped buffer.
	ErrBufferMapped = errors.New("native: buffer is mapped")

	// ErrDispatchTooLarge is returned when a dispatch exceeds the workgroup limit.
	ErrDispatchTooLarge = errors.New("native: dispatch exceeds workgroup limit")

	// ErrCopyNotAligned is returned for copies whose size is not a multiple of 4.
	ErrCopyNotAligned = errors.New("native: copy size is not a multiple of 4")

	// ErrCopyOutOfBounds is returned for copies past the end of a buffer.
	ErrCopyOutOfBounds = errors.New("native: copy range out of bounds")
)
