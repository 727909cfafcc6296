package backend

import (
	"errors"

	"github.com/gogpu/compute/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotRegistered is returned by Get for an unknown backend name.
	ErrNotRegistered = errors.New("backend: not registered")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu HAL).
	BackendNative = "native"
	// BackendRust is the name of the wgpu-native FFI backend (go-webgpu/webgpu).
	BackendRust = "rust"
	// BackendCGO is the name of the wgpu-native cgo backend (openfluke/webgpu).
	BackendCGO = "cgo"
)

// Factory opens a device and returns an adapter for it.
// A factory returns an error wrapping ErrBackendNotAvailable when the
// backend is compiled in but cannot open a device on this machine.
type Factory func() (gpucore.Adapter, error)
