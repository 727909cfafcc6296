package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// Binding places a Buffer at a (group, slot) pair of a shader.
//
// Binding is a small value. It holds no reference of its own: a Shader
// retains the buffer when the binding is bound and releases it when the
// binding is replaced or removed.
type Binding struct {
	buffer    *Buffer
	group     uint32
	slot      uint32
	needsCopy bool
}

// NewBinding binds buf at (group, slot). The binding is copied back to the
// host after every dispatch.
func NewBinding(buf *Buffer, group, slot uint32) Binding {
	return Binding{buffer: buf, group: group, slot: slot, needsCopy: true}
}

// NoCopy returns a copy of b that is not copied back to the host after
// dispatch. Use it for buffers consumed by a later shader rather than read.
func (b Binding) NoCopy() Binding {
	b.needsCopy = false
	return b
}

// Buffer returns the bound buffer.
func (b Binding) Buffer() *Buffer { return b.buffer }

// Group returns the bind group index.
func (b Binding) Group() uint32 { return b.group }

// Slot returns the binding slot within the group.
func (b Binding) Slot() uint32 { return b.slot }

// NeedsCopy reports whether the binding is copied back after dispatch.
func (b Binding) NeedsCopy() bool { return b.needsCopy }

// Entry returns the bind group entry that exposes the device buffer at the
// binding's slot.
func (b Binding) Entry() gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{
		Binding: b.slot,
		Buffer:  b.buffer.device,
		Size:    b.buffer.alloc,
	}
}

// String returns a short description of b.
func (b Binding) String() string {
	label := "<nil>"
	if b.buffer != nil {
		label = b.buffer.label
	}
	return fmt.Sprintf("@group(%d) @binding(%d) %s", b.group, b.slot, label)
}
