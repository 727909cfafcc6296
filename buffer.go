package compute

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/gpucore"
)

// Buffer is a device buffer paired with a host staging buffer of the same
// size. Shaders read and write the device buffer; the staging buffer exists
// only to copy results back to the host.
//
// Buffers are reference counted. NewBuffer returns a Buffer holding one
// reference owned by the caller, each shader binding holds another, and the
// last Release destroys both device resources.
//
// Zero-sized buffers allocate nothing on the device and read back as empty.
type Buffer struct {
	ctx    *Context
	label  string
	policy Policy
	usage  gputypes.BufferUsage

	// size is the exact data size; alloc is size rounded up to 4 bytes,
	// the size of both device resources.
	size  uint64
	alloc uint64

	device gpucore.BufferID
	host   gpucore.BufferID

	refs atomic.Int32

	// readMu serializes reads: only one map may be in flight per buffer.
	readMu sync.Mutex
}

// NewBuffer creates a buffer seeded with data.
// It fails with an error wrapping ErrAllocation if the device rejects either
// allocation.
func NewBuffer(c *Context, p Policy, data Data, label string) (*Buffer, error) {
	if data.Kind() == DataUninitialized {
		return newBuffer(c, p, data.Size(), nil, label)
	}
	return newBuffer(c, p, data.Size(), data.Bytes(), label)
}

// NewEmptyBuffer creates a zero-initialized buffer of count elements of
// elemSize bytes each.
func NewEmptyBuffer(c *Context, p Policy, count int, elemSize uint64, label string) (*Buffer, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative element count %d", ErrAllocation, count)
	}
	hi, size := bits.Mul64(uint64(count), elemSize)
	if hi != 0 {
		return nil, fmt.Errorf("%w: %d elements of %d bytes overflow", ErrAllocation, count, elemSize)
	}
	return newBuffer(c, p, size, nil, label)
}

// maxBufferSize bounds a single Buffer so that its rounded size, counted
// twice for the device and staging buffers, fits in a uint64.
const maxBufferSize = math.MaxUint64 / 2 &^ 3

func newBuffer(c *Context, p Policy, size uint64, contents []byte, label string) (*Buffer, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if size > maxBufferSize {
		return nil, fmt.Errorf("%w: %q: %d bytes exceeds %d", ErrAllocation, label, size, uint64(maxBufferSize))
	}

	b := &Buffer{
		ctx:    c,
		label:  c.label(label),
		policy: p,
		usage:  p.Usage(),
		size:   size,
		alloc:  alignCopy(size),
	}
	b.refs.Store(1)

	if err := c.reserve(2 * b.alloc); err != nil {
		return nil, err
	}
	if b.alloc == 0 {
		Logger().Debug("compute: empty buffer", "label", b.label)
		return b, nil
	}

	if contents != nil && uint64(len(contents)) != b.alloc {
		padded := make([]byte, b.alloc)
		copy(padded, contents)
		contents = padded
	}

	device, err := c.adapter.CreateBuffer(&gpucore.BufferDesc{
		Label:    b.label,
		Size:     b.alloc,
		Usage:    b.usage,
		Contents: contents,
	})
	if err != nil {
		c.unreserve(2 * b.alloc)
		return nil, fmt.Errorf("%w: %q (%d bytes): %w", ErrAllocation, b.label, size, err)
	}
	host, err := c.adapter.CreateBuffer(&gpucore.BufferDesc{
		Label: b.label + ".staging",
		Size:  b.alloc,
		Usage: stagingUsage,
	})
	if err != nil {
		c.adapter.DestroyBuffer(device)
		c.unreserve(2 * b.alloc)
		return nil, fmt.Errorf("%w: %q staging (%d bytes): %w", ErrAllocation, b.label, size, err)
	}
	b.device, b.host = device, host

	Logger().Debug("compute: buffer created",
		"label", b.label, "size", size, "policy", p.String())
	return b, nil
}

// alignCopy rounds n up to the 4-byte copy alignment.
func alignCopy(n uint64) uint64 {
	return (n + 3) &^ 3
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the data size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Policy returns the policy the buffer was created with.
func (b *Buffer) Policy() Policy { return b.policy }

// RefCount returns the number of live references.
func (b *Buffer) RefCount() int { return int(b.refs.Load()) }

// Released reports whether the last reference has been released.
func (b *Buffer) Released() bool { return b.refs.Load() <= 0 }

// Retain adds a reference and returns b.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The last release destroys both device
// resources; the adapter defers destruction while submitted work still
// uses them. Releasing an already released buffer is a no-op.
func (b *Buffer) Release() {
	for {
		n := b.refs.Load()
		if n <= 0 {
			Logger().Warn("compute: release of released buffer", "label", b.label)
			return
		}
		if b.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				b.destroy()
			}
			return
		}
	}
}

func (b *Buffer) destroy() {
	if !b.ctx.closed.Load() && b.alloc > 0 {
		b.ctx.adapter.DestroyBuffer(b.device)
		b.ctx.adapter.DestroyBuffer(b.host)
	}
	b.ctx.unreserve(2 * b.alloc)
	Logger().Debug("compute: buffer destroyed", "label", b.label)
}

// CopyToHost records a copy of the whole device buffer into the staging
// buffer. The copy takes effect when the encoder's command buffer is submitted.
func (b *Buffer) CopyToHost(enc *CommandEncoder) error {
	if b.Released() {
		return fmt.Errorf("copy to host %q: %w", b.label, ErrReleased)
	}
	if b.alloc == 0 {
		return nil
	}
	return enc.copyBufferToBuffer(b.device, b.host, b.alloc)
}

// ToBinding binds b at (group, slot). The binding needs a copy back to the
// host after each dispatch; use NoCopy on the result for intermediate buffers.
func (b *Buffer) ToBinding(group, slot uint32) Binding {
	return NewBinding(b, group, slot)
}

// ReadBytes maps the staging buffer, copies its contents out and unmaps it.
// It drives the device's poll loop until the map completes or ctx ends.
// If ctx ends first the pending map is cancelled.
//
// The bytes reflect the last submitted CopyToHost; a buffer that was never
// copied back reads as zeros. Map failures return an error wrapping
// ErrMapFailed and may be retried.
func (b *Buffer) ReadBytes(ctx context.Context) ([]byte, error) {
	if b.Released() {
		return nil, fmt.Errorf("read %q: %w", b.label, ErrReleased)
	}
	if err := b.ctx.check(); err != nil {
		return nil, err
	}
	if b.size == 0 {
		return []byte{}, nil
	}

	b.readMu.Lock()
	defer b.readMu.Unlock()

	a := b.ctx.adapter
	done := make(chan gpucore.MapStatus, 1)
	err := a.MapRead(b.host, func(status gpucore.MapStatus) {
		select {
		case done <- status:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMapFailed, b.label, err)
	}

	status, err := b.ctx.waitMap(ctx, done)
	if err != nil {
		a.Unmap(b.host)
		return nil, fmt.Errorf("read %q: %w", b.label, err)
	}
	if status != gpucore.MapStatusSuccess {
		return nil, fmt.Errorf("%w: %q: %s", ErrMapFailed, b.label, status)
	}

	mapped, err := a.MappedRange(b.host)
	if err != nil {
		a.Unmap(b.host)
		return nil, fmt.Errorf("%w: %q: %w", ErrMapFailed, b.label, err)
	}
	out := make([]byte, b.size)
	copy(out, mapped)
	a.Unmap(b.host)
	return out, nil
}

// Read reads b back and reinterprets its bytes as a slice of T.
// It returns false ("no result") if the map fails or ctx ends; the read may
// be retried. Trailing bytes that do not fill a whole T are dropped.
func Read[T any](ctx context.Context, b *Buffer) ([]T, bool) {
	if b == nil {
		return nil, false
	}
	data, err := b.ReadBytes(ctx)
	if err != nil {
		Logger().Warn("compute: read failed", "label", b.label, "err", err)
		return nil, false
	}
	return elemsOf[T](data), true
}

// CreateUniform creates a uniform buffer seeded with v.
func CreateUniform[T any](c *Context, v T) (*Buffer, error) {
	return NewBuffer(c, UniformHostWrite, Scalar(v), "uniform")
}

// CreateStorageBufferWithData creates a storage buffer seeded with seq.
func CreateStorageBufferWithData[T any](c *Context, seq []T) (*Buffer, error) {
	return NewBuffer(c, StorageHostWrite, Sequence(seq), "storage")
}

// CreateStorageBuffer creates a zeroed storage buffer of count elements of T
// that shaders write and the host reads back.
func CreateStorageBuffer[T any](c *Context, count int) (*Buffer, error) {
	return NewEmptyBuffer(c, StorageHostReadWrite, count, sizeOf[T](), "storage")
}
