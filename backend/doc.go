// Package backend provides the device backend registry.
//
// Backends register a [Factory] under a name from their init() functions
// and are selected at runtime, mirroring how database/sql drivers work:
//
//	import _ "github.com/gogpu/compute/backend/native"
//
// # Backend Selection
//
// Use Default() to open the best available backend, or Get() to request
// a specific backend by name:
//
//	// Open the default (best available) backend
//	a, err := backend.Default()
//
//	// Or request a specific backend
//	a, err := backend.Get(backend.BackendSoftware)
//
// # Available Backends
//
//   - "rust": wgpu-native through go-webgpu FFI (build tag "rust")
//   - "cgo": wgpu-native through cgo bindings (build tag "wgpucgo")
//   - "native": Pure Go gogpu/wgpu HAL, Vulkan by default
//   - "software": CPU reference implementation (always available)
package backend
