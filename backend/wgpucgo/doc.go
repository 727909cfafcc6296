// Package wgpucgo runs compute work on wgpu-native through the cgo bindings
// of openfluke/webgpu.
//
// Import the package and build with the wgpucgo tag to register the "cgo"
// backend:
//
//	// Build with: CGO_ENABLED=1 go build -tags wgpucgo
//	import _ "github.com/gogpu/compute/backend/wgpucgo"
//
// Without the tag the factory reports backend.ErrBackendNotAvailable.
//
// Pipelines use explicit bind group and pipeline layouts built from the
// reflected shader layout. Reads are asynchronous: MapRead starts a driver
// map and Poll drives the device until the map callback fires.
package wgpucgo
