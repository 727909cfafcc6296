// Package bindcheck validates bind group entries against a reflected shader
// layout for adapters that hand the result to a driver.
package bindcheck

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/gpucore"
)

var (
	// ErrMismatch is returned when entries do not cover the declared slots
	// of a group exactly once.
	ErrMismatch = errors.New("bindcheck: entries do not match layout")

	// ErrUnknownBuffer is returned when an entry names a buffer the lookup
	// does not know.
	ErrUnknownBuffer = errors.New("bindcheck: unknown buffer")

	// ErrUsage is returned when a buffer lacks the usage its slot needs.
	ErrUsage = errors.New("bindcheck: buffer usage does not match slot")
)

// Buffer is what the check needs to know about a bound buffer.
type Buffer struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// Lookup resolves a buffer ID.
type Lookup func(gpucore.BufferID) (Buffer, bool)

// RequiredUsage returns the usage flag a slot of type t needs.
func RequiredUsage(t gpucore.BindingType) gputypes.BufferUsage {
	if t == gpucore.BindingTypeUniformBuffer {
		return gputypes.BufferUsageUniform
	}
	return gputypes.BufferUsageStorage
}

// Group checks entries for one group of layout: every entry targets a
// declared slot, no slot is set twice, ranges fit their buffers, usages
// match, and every declared slot is covered.
func Group(layout gpucore.ShaderLayout, group uint32, entries []gpucore.BindGroupEntry, lookup Lookup) error {
	declared := layout.Group(group)
	if len(declared) == 0 {
		return fmt.Errorf("%w: group %d is not declared", ErrMismatch, group)
	}

	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		decl, ok := layout.Lookup(group, e.Binding)
		if !ok {
			return fmt.Errorf("%w: binding %d not declared in group %d", ErrMismatch, e.Binding, group)
		}
		if seen[e.Binding] {
			return fmt.Errorf("%w: binding %d set twice in group %d", ErrMismatch, e.Binding, group)
		}
		seen[e.Binding] = true

		b, ok := lookup(e.Buffer)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownBuffer, e.Buffer)
		}
		if e.Size == 0 || e.Size > b.Size {
			return fmt.Errorf("%w: binding %d size %d, buffer size %d", ErrMismatch, e.Binding, e.Size, b.Size)
		}
		if b.Usage&RequiredUsage(decl.Type) == 0 {
			return fmt.Errorf("%w: %s binding %d", ErrUsage, decl.Type, e.Binding)
		}
	}
	for _, decl := range declared {
		if !seen[decl.Binding] {
			return fmt.Errorf("%w: binding %d (%s) missing in group %d", ErrMismatch, decl.Binding, decl.Name, group)
		}
	}
	return nil
}

// Copy checks a buffer-to-buffer copy of size bytes.
func Copy(src, dst Buffer, size uint64) error {
	switch {
	case src.Usage&gputypes.BufferUsageCopySrc == 0:
		return fmt.Errorf("%w: source lacks CopySrc", ErrUsage)
	case dst.Usage&gputypes.BufferUsageCopyDst == 0:
		return fmt.Errorf("%w: destination lacks CopyDst", ErrUsage)
	case size%4 != 0:
		return fmt.Errorf("%w: copy size %d is not a multiple of 4", ErrMismatch, size)
	case size > src.Size || size > dst.Size:
		return fmt.Errorf("%w: copy size %d exceeds a buffer", ErrMismatch, size)
	}
	return nil
}
