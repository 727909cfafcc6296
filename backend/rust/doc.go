// Package rust runs compute work on wgpu-native through go-webgpu/webgpu.
//
// The backend drives the Rust WebGPU implementation over FFI, so it reaches
// every platform wgpu-native supports (Vulkan, Metal, DX12) without cgo.
//
// # Registration and Selection
//
// Importing the package registers the "rust" backend. It only opens a device
// when built with the rust tag:
//
//	// Build with: go build -tags rust
//	import _ "github.com/gogpu/compute/backend/rust"
//
// Without the tag the registered factory returns an error wrapping
// backend.ErrBackendNotAvailable and backend.Default moves on to the next
// backend. With the tag it is preferred over every other backend.
//
// # Pipelines
//
// Shader sources are checked with naga before they reach the driver, so a
// malformed shader fails with a descriptive error instead of a driver
// validation message. Bind group layouts are derived by the driver; group
// indices the shader skips are filled with empty bind groups at dispatch.
//
// # Readback
//
// go-webgpu maps buffers synchronously. MapRead only queues the request and
// Poll performs the mapping, copying the contents out and unmapping the
// driver buffer at once.
//
// # Dependencies
//
// This backend requires the wgpu-native library:
//   - Windows: wgpu_native.dll
//   - Linux: libwgpu_native.so
//   - macOS: libwgpu_native.dylib
//
// Download from: https://github.com/gfx-rs/wgpu-native/releases
package rust
