package software

import (
	"sync"
	"unsafe"
)

// Kernel is a Go implementation of a WGSL compute entry point.
type Kernel struct {
	// WorkgroupSize mirrors the shader's @workgroup_size.
	// Zero dimensions are treated as 1.
	WorkgroupSize [3]uint32

	// Invoke runs a single invocation.
	Invoke func(inv *Invocation)
}

func (k Kernel) size() [3]uint32 {
	s := k.WorkgroupSize
	for i := range s {
		if s[i] == 0 {
			s[i] = 1
		}
	}
	return s
}

type kernelKey struct {
	source     string
	entryPoint string
}

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[kernelKey]Kernel)
)

// RegisterKernel associates a kernel with a WGSL source and entry point.
// Registering the same pair again replaces the previous kernel.
func RegisterKernel(source, entryPoint string, k Kernel) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[kernelKey{source, entryPoint}] = k
}

// UnregisterKernel removes a registered kernel.
func UnregisterKernel(source, entryPoint string) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	delete(kernels, kernelKey{source, entryPoint})
}

func lookupKernel(source, entryPoint string) (Kernel, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	k, ok := kernels[kernelKey{source, entryPoint}]
	return k, ok && k.Invoke != nil
}

// slot addresses a binding by (group, binding).
type slot struct {
	group   uint32
	binding uint32
}

// Invocation carries the builtin IDs and bound buffers of one invocation.
type Invocation struct {
	GlobalID      [3]uint32
	LocalID       [3]uint32
	WorkgroupID   [3]uint32
	NumWorkgroups [3]uint32

	// LocalIndex is the flattened LocalID.
	LocalIndex uint32

	bindings map[slot][]byte
}

// Bytes returns the buffer bound at (group, binding), or nil if none is.
// Writes through the slice are visible to later commands.
func (inv *Invocation) Bytes(group, binding uint32) []byte {
	return inv.bindings[slot{group, binding}]
}

// View reinterprets the buffer bound at (group, binding) as a slice of T.
// Trailing bytes that do not fill a whole T are not included.
// T must be a fixed-size type without pointers.
func View[T any](inv *Invocation, group, binding uint32) []T {
	b := inv.Bytes(group, binding)
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/size)
}
