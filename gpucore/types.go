package gpucore

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent device resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// MapStatus represents the result of an asynchronous map request.
type MapStatus int

const (
	// MapStatusSuccess indicates mapping completed successfully.
	MapStatusSuccess MapStatus = iota
	// MapStatusValidationError indicates the request was rejected.
	MapStatusValidationError
	// MapStatusUnknown indicates an unknown error.
	MapStatusUnknown
	// MapStatusDeviceLost indicates the device was lost.
	MapStatusDeviceLost
	// MapStatusDestroyedBeforeCallback indicates the buffer was destroyed.
	MapStatusDestroyedBeforeCallback
	// MapStatusUnmappedBeforeCallback indicates the buffer was unmapped.
	MapStatusUnmappedBeforeCallback
	// MapStatusMappingAlreadyPending indicates another map is pending.
	MapStatusMappingAlreadyPending
)

// String returns the string representation of MapStatus.
func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "Success"
	case MapStatusValidationError:
		return "ValidationError"
	case MapStatusUnknown:
		return "Unknown"
	case MapStatusDeviceLost:
		return "DeviceLost"
	case MapStatusDestroyedBeforeCallback:
		return "DestroyedBeforeCallback"
	case MapStatusUnmappedBeforeCallback:
		return "UnmappedBeforeCallback"
	case MapStatusMappingAlreadyPending:
		return "MappingAlreadyPending"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BindingType specifies how a shader declares a buffer binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a var<uniform> declaration.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a var<storage, read_write> declaration.
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a var<storage, read> declaration.
	BindingTypeReadOnlyStorageBuffer
)

// String returns the string representation of BindingType.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeStorageBuffer:
		return "storage"
	case BindingTypeReadOnlyStorageBuffer:
		return "read-only-storage"
	default:
		return fmt.Sprintf("BindingType(%d)", uint32(t))
	}
}

// BufferBindingType converts t to the gputypes layout binding type.
func (t BindingType) BufferBindingType() gputypes.BufferBindingType {
	switch t {
	case BindingTypeUniformBuffer:
		return gputypes.BufferBindingTypeUniform
	case BindingTypeReadOnlyStorageBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}

// LayoutEntry is one resource slot declared by a shader.
type LayoutEntry struct {
	// Group is the bind group index (@group).
	Group uint32

	// Binding is the slot index within the group (@binding).
	Binding uint32

	// Name is the variable name in the shader source.
	Name string

	// Type is the kind of buffer binding the shader expects.
	Type BindingType
}

// ShaderLayout is the set of slots a compute shader declares.
type ShaderLayout struct {
	Entries []LayoutEntry
}

// Lookup returns the entry declared at (group, binding).
func (l ShaderLayout) Lookup(group, binding uint32) (LayoutEntry, bool) {
	for _, e := range l.Entries {
		if e.Group == group && e.Binding == binding {
			return e, true
		}
	}
	return LayoutEntry{}, false
}

// Groups returns the distinct group indices in ascending order.
func (l ShaderLayout) Groups() []uint32 {
	seen := make(map[uint32]struct{}, len(l.Entries))
	groups := make([]uint32, 0, len(l.Entries))
	for _, e := range l.Entries {
		if _, ok := seen[e.Group]; ok {
			continue
		}
		seen[e.Group] = struct{}{}
		groups = append(groups, e.Group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// Group returns the entries of one group ordered by binding.
func (l ShaderLayout) Group(group uint32) []LayoutEntry {
	var out []LayoutEntry
	for _, e := range l.Entries {
		if e.Group == group {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

// GroupCount returns one past the highest group index, or 0 for an empty layout.
func (l ShaderLayout) GroupCount() uint32 {
	var n uint32
	for _, e := range l.Entries {
		if e.Group+1 > n {
			n = e.Group + 1
		}
	}
	return n
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage

	// Contents seeds the buffer. Nil means zero-initialized.
	// When set, len(Contents) must equal Size.
	Contents []byte
}

// ComputePipelineDesc describes a compute pipeline to create.
type ComputePipelineDesc struct {
	// Label is an optional debug name.
	Label string

	// Source is the WGSL source text.
	Source string

	// EntryPoint is the compute entry point function name.
	EntryPoint string

	// Layout is the reflected binding layout of Source.
	Layout ShaderLayout
}

// BindGroupEntry binds a buffer to a slot of a bind group.
type BindGroupEntry struct {
	// Binding is the slot index within the group.
	Binding uint32

	// Buffer is the buffer bound at the slot.
	Buffer BufferID

	// Size is the bound byte range, starting at offset 0.
	Size uint64
}

// Limits reports device limits relevant to compute dispatch.
type Limits struct {
	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxBindGroups is the maximum number of bind groups per pipeline.
	MaxBindGroups uint32

	// MaxComputeWorkgroupsPerDimension is the maximum workgroups per dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32
}

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:                    256 * 1024 * 1024,
		MaxBindGroups:                    4,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
}
