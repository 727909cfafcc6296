//go:build rust

package rust

import "errors"

// Package errors for rust backend.
var (
	// ErrNotInitialized is returned when the adapter is used after Destroy.
	ErrNotInitialized = errors.New("rust: adapter not initialized")

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("rust: no GPU adapter available")

	// ErrLibraryNotFound is returned when wgpu-native library is not found.
	ErrLibraryNotFound = errors.New("rust: wgpu-native library not found")

	// ErrInvalidBufferSize is returned for zero, unaligned or oversized buffers.
	ErrInvalidBufferSize = errors.New("rust: invalid buffer size")

	// ErrInvalidResource is returned for IDs the adapter does not know.
	ErrInvalidResource = errors.New("rust: invalid resource")
)
