package gpucore

// Adapter abstracts over the device and queue a compute engine runs on.
//
// This interface is the core abstraction that allows the engine to work with
// multiple backends (gogpu/wgpu HAL, wgpu-native via FFI or cgo, and the CPU
// reference implementation). Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a buffer or bind group still referenced by submitted work
//     is deferred by the adapter until that work completes
//   - IDs become invalid after destruction and must not be reused
type Adapter interface {
	// === Capabilities ===

	// Name returns the adapter identifier (e.g., "native", "software").
	Name() string

	// Limits returns the device limits.
	Limits() Limits

	// === Buffer Management ===

	// CreateBuffer creates a device buffer, seeded with desc.Contents when set.
	// Returns an error if the device rejects the allocation.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a device buffer.
	// A pending map on the buffer completes with MapStatusDestroyedBeforeCallback.
	DestroyBuffer(id BufferID)

	// === Pipeline Management ===

	// CreateComputePipeline compiles desc.Source and creates a pipeline whose
	// bind group layouts match desc.Layout.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group for the given group index of a
	// pipeline's layout. Returns an error if entries do not match the layout.
	CreateBindGroup(pipeline ComputePipelineID, group uint32, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Execution ===

	// Submit hands a recorded command list to the queue.
	// Execution is asynchronous; completion is observed through Poll.
	Submit(list *CommandList) error

	// === Readback ===

	// MapRead requests a host mapping of the whole buffer for reading.
	// The callback fires from Poll once submitted work touching the buffer
	// has completed, or immediately if the request is rejected.
	MapRead(id BufferID, callback func(MapStatus)) error

	// Poll drives pending device work and fires completed map callbacks.
	// When wait is true it blocks until the queue is idle.
	// Returns true when no submitted work remains.
	Poll(wait bool) bool

	// MappedRange returns the mapped bytes of a buffer.
	// The slice is only valid until Unmap.
	MappedRange(id BufferID) ([]byte, error)

	// Unmap ends a mapping. Unmapping a pending map cancels it.
	Unmap(id BufferID)

	// Destroy releases the adapter and every resource it still owns.
	Destroy()
}
