// Package gpucore defines the device contract the compute engine runs on.
//
// The engine never talks to a graphics API directly. It records work against
// the [Adapter] interface, and thin adapters translate that contract to a
// concrete backend:
//
//	               +------------------+
//	               |  compute engine  |
//	               | (Buffer, Shader) |
//	               +--------+---------+
//	                        |
//	     +------------+-----+------+-------------+
//	     |            |            |             |
//	+----v----+  +----v----+  +----v----+  +-----v-----+
//	| native  |  |  rust   |  |   cgo   |  | software  |
//	|  (hal)  |  | (ffi)   |  | (cgo)   |  |  (CPU)    |
//	+---------+  +---------+  +---------+  +-----------+
//
// # Resource Management
//
// Resources are addressed by opaque IDs ([BufferID], [ComputePipelineID],
// [BindGroupID]). Each adapter keeps the mapping between IDs and its own
// handles. [InvalidID] never names a live resource.
//
// # Command Recording
//
// Work is described by a [CommandList]: an ordered list of dispatches and
// buffer copies. Adapters must execute a list in order, and lists in
// submission order, so a copy recorded after a dispatch observes its writes.
//
// # Readback
//
// Host reads follow the map/poll handshake: [Adapter.MapRead] registers a
// callback, [Adapter.Poll] drives pending work and fires callbacks, and
// [Adapter.MappedRange] exposes the bytes until [Adapter.Unmap].
package gpucore
