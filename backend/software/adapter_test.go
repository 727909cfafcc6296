package software

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/gpucore"
)

const doubleSource = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(4)
fn double(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < arrayLength(&data)) {
        data[id.x] = data[id.x] * 2u;
    }
}
`

var doubleLayout = gpucore.ShaderLayout{Entries: []gpucore.LayoutEntry{
	{Group: 0, Binding: 0, Name: "data", Type: gpucore.BindingTypeStorageBuffer},
}}

func init() {
	RegisterKernel(doubleSource, "double", Kernel{
		WorkgroupSize: [3]uint32{4, 1, 1},
		Invoke: func(inv *Invocation) {
			data := View[uint32](inv, 0, 0)
			if i := inv.GlobalID[0]; int(i) < len(data) {
				data[i] *= 2
			}
		},
	})
}

func u32Bytes(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func bytesU32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}

// fixture holds a doubling pipeline bound to a storage buffer and a staging buffer.
type fixture struct {
	a        *Adapter
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	storage  gpucore.BufferID
	staging  gpucore.BufferID
	size     uint64
}

func newFixture(t *testing.T, vals ...uint32) *fixture {
	t.Helper()
	a := New(WithWorkers(2))
	t.Cleanup(a.Destroy)

	contents := u32Bytes(vals...)
	size := uint64(len(contents))

	storage, err := a.CreateBuffer(&gpucore.BufferDesc{
		Label:    "storage",
		Size:     size,
		Usage:    gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
		Contents: contents,
	})
	if err != nil {
		t.Fatalf("CreateBuffer(storage) error = %v", err)
	}
	staging, err := a.CreateBuffer(&gpucore.BufferDesc{
		Label: "staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer(staging) error = %v", err)
	}
	pipeline, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Source:     doubleSource,
		EntryPoint: "double",
		Layout:     doubleLayout,
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}
	group, err := a.CreateBindGroup(pipeline, 0, []gpucore.BindGroupEntry{{Binding: 0, Buffer: storage, Size: size}})
	if err != nil {
		t.Fatalf("CreateBindGroup() error = %v", err)
	}
	return &fixture{a: a, pipeline: pipeline, group: group, storage: storage, staging: staging, size: size}
}

func (f *fixture) commands(workgroups uint32) *gpucore.CommandList {
	list := &gpucore.CommandList{Label: "test"}
	list.Dispatch(f.pipeline, []gpucore.BoundGroup{{Index: 0, Group: f.group}}, workgroups, 1, 1)
	list.Copy(f.storage, f.staging, f.size)
	return list
}

// readStaging maps the staging buffer and returns a copy of its contents.
func (f *fixture) readStaging(t *testing.T) ([]byte, gpucore.MapStatus) {
	t.Helper()
	var status gpucore.MapStatus = -1
	if err := f.a.MapRead(f.staging, func(s gpucore.MapStatus) { status = s }); err != nil {
		t.Fatalf("MapRead() error = %v", err)
	}
	f.a.Poll(true)
	if status != gpucore.MapStatusSuccess {
		return nil, status
	}
	data, err := f.a.MappedRange(f.staging)
	if err != nil {
		t.Fatalf("MappedRange() error = %v", err)
	}
	out := append([]byte(nil), data...)
	f.a.Unmap(f.staging)
	return out, status
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestAdapter_DispatchAndReadback(t *testing.T) {
	f := newFixture(t, 1, 2, 3, 4, 5, 6)

	// 6 elements with workgroup size 4 need 2 workgroups.
	if err := f.a.Submit(f.commands(2)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	data, status := f.readStaging(t)
	if status != gpucore.MapStatusSuccess {
		t.Fatalf("map status = %v", status)
	}

	got := bytesU32(data)
	want := []uint32{2, 4, 6, 8, 10, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("data[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAdapter_SubmitRunsOnPoll(t *testing.T) {
	f := newFixture(t, 7)
	if err := f.a.Submit(f.commands(1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Nothing has run before Poll.
	f.a.Poll(false)
	data, _ := f.readStaging(t)
	if got := bytesU32(data)[0]; got != 14 {
		t.Errorf("data[0] = %d, want 14", got)
	}
}

func TestAdapter_ZeroWorkgroupsIsNoop(t *testing.T) {
	f := newFixture(t, 5, 6)
	if err := f.a.Submit(f.commands(0)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	data, _ := f.readStaging(t)
	got := bytesU32(data)
	if got[0] != 5 || got[1] != 6 {
		t.Errorf("data = %v, want [5 6]", got)
	}
}

func TestWorkgroupID(t *testing.T) {
	tests := []struct {
		name string
		i    uint64
		n    [3]uint32
		want [3]uint32
	}{
		{"first", 0, [3]uint32{4, 3, 2}, [3]uint32{0, 0, 0}},
		{"row wrap", 5, [3]uint32{4, 3, 2}, [3]uint32{1, 1, 0}},
		{"last", 23, [3]uint32{4, 3, 2}, [3]uint32{3, 2, 1}},
		{"index past 32 bits", 1<<32 + 7, [3]uint32{1 << 16, 1 << 16, 4}, [3]uint32{7, 0, 1}},
		{"max dimensions", 65535*65535*65535 - 1, [3]uint32{65535, 65535, 65535}, [3]uint32{65534, 65534, 65534}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workgroupID(tt.i, tt.n); got != tt.want {
				t.Errorf("workgroupID(%d, %v) = %v, want %v", tt.i, tt.n, got, tt.want)
			}
		})
	}
}

func TestAdapter_DestroyAfterSubmitIsDeferred(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.a.Submit(f.commands(1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	f.a.DestroyBindGroup(f.group)
	f.a.DestroyBuffer(f.storage)

	data, status := f.readStaging(t)
	if status != gpucore.MapStatusSuccess {
		t.Fatalf("map status = %v", status)
	}
	if got := bytesU32(data)[0]; got != 6 {
		t.Errorf("data[0] = %d, want 6", got)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestAdapter_CreateBufferErrors(t *testing.T) {
	a := New(WithWorkers(1), WithLimits(gpucore.Limits{MaxBufferSize: 16, MaxBindGroups: 4, MaxComputeWorkgroupsPerDimension: 8}))
	defer a.Destroy()

	tests := []struct {
		name string
		desc gpucore.BufferDesc
		want error
	}{
		{"zero size", gpucore.BufferDesc{Size: 0}, ErrInvalidBufferSize},
		{"too large", gpucore.BufferDesc{Size: 32}, ErrBufferTooLarge},
		{"contents mismatch", gpucore.BufferDesc{Size: 8, Contents: []byte{1, 2}}, ErrContentsSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateBuffer(&tt.desc)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateBuffer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdapter_NoKernel(t *testing.T) {
	a := New(WithWorkers(1))
	defer a.Destroy()

	_, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Source: "fn main() {}", EntryPoint: "main"})
	if !errors.Is(err, ErrNoKernel) {
		t.Errorf("CreateComputePipeline() error = %v, want ErrNoKernel", err)
	}
}

func TestAdapter_BindGroupMismatch(t *testing.T) {
	f := newFixture(t, 1, 2)
	uniform, err := f.a.CreateBuffer(&gpucore.BufferDesc{Size: 8, Usage: gputypes.BufferUsageUniform})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	tests := []struct {
		name    string
		group   uint32
		entries []gpucore.BindGroupEntry
		want    error
	}{
		{"undeclared group", 1, []gpucore.BindGroupEntry{{Binding: 0, Buffer: f.storage, Size: f.size}}, ErrBindGroupMismatch},
		{"undeclared binding", 0, []gpucore.BindGroupEntry{{Binding: 3, Buffer: f.storage, Size: f.size}}, ErrBindGroupMismatch},
		{"missing binding", 0, nil, ErrBindGroupMismatch},
		{"unknown buffer", 0, []gpucore.BindGroupEntry{{Binding: 0, Buffer: 999, Size: 4}}, ErrInvalidResource},
		{"wrong usage", 0, []gpucore.BindGroupEntry{{Binding: 0, Buffer: uniform, Size: 8}}, ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.a.CreateBindGroup(f.pipeline, tt.group, tt.entries)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateBindGroup() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdapter_SubmitValidation(t *testing.T) {
	f := newFixture(t, 1, 2)

	tests := []struct {
		name  string
		build func() *gpucore.CommandList
		want  error
	}{
		{
			name: "missing bind group",
			build: func() *gpucore.CommandList {
				l := &gpucore.CommandList{}
				l.Dispatch(f.pipeline, nil, 1, 1, 1)
				return l
			},
			want: ErrBindGroupMismatch,
		},
		{
			name: "too many workgroups",
			build: func() *gpucore.CommandList {
				l := &gpucore.CommandList{}
				l.Dispatch(f.pipeline, []gpucore.BoundGroup{{Index: 0, Group: f.group}}, 70000, 1, 1)
				return l
			},
			want: ErrDispatchTooLarge,
		},
		{
			name: "copy without CopySrc",
			build: func() *gpucore.CommandList {
				l := &gpucore.CommandList{}
				l.Copy(f.staging, f.storage, f.size)
				return l
			},
			want: ErrUsage,
		},
		{
			name: "unaligned copy",
			build: func() *gpucore.CommandList {
				l := &gpucore.CommandList{}
				l.Copy(f.storage, f.staging, 3)
				return l
			},
			want: ErrCopyNotAligned,
		},
		{
			name: "copy out of bounds",
			build: func() *gpucore.CommandList {
				l := &gpucore.CommandList{}
				l.Copy(f.storage, f.staging, f.size+4)
				return l
			},
			want: ErrCopyOutOfBounds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.a.Submit(tt.build())
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdapter_SubmitToMappedBuffer(t *testing.T) {
	f := newFixture(t, 1)
	if err := f.a.MapRead(f.staging, func(gpucore.MapStatus) {}); err != nil {
		t.Fatalf("MapRead() error = %v", err)
	}
	if err := f.a.Submit(f.commands(1)); !errors.Is(err, ErrBufferMapped) {
		t.Errorf("Submit() error = %v, want ErrBufferMapped", err)
	}
}

// =============================================================================
// Map Tests
// =============================================================================

func TestAdapter_MapReadRequiresMapUsage(t *testing.T) {
	f := newFixture(t, 1)
	var status gpucore.MapStatus = -1
	err := f.a.MapRead(f.storage, func(s gpucore.MapStatus) { status = s })
	if !errors.Is(err, ErrUsage) {
		t.Errorf("MapRead() error = %v, want ErrUsage", err)
	}
	if status != gpucore.MapStatusValidationError {
		t.Errorf("status = %v, want ValidationError", status)
	}
}

func TestAdapter_DestroyPendingMap(t *testing.T) {
	f := newFixture(t, 1)
	var status gpucore.MapStatus = -1
	if err := f.a.MapRead(f.staging, func(s gpucore.MapStatus) { status = s }); err != nil {
		t.Fatalf("MapRead() error = %v", err)
	}
	f.a.DestroyBuffer(f.staging)
	if status != gpucore.MapStatusDestroyedBeforeCallback {
		t.Errorf("status = %v, want DestroyedBeforeCallback", status)
	}
}

func TestAdapter_LoseDevice(t *testing.T) {
	f := newFixture(t, 1)
	if err := f.a.Submit(f.commands(1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	var status gpucore.MapStatus = -1
	if err := f.a.MapRead(f.staging, func(s gpucore.MapStatus) { status = s }); err != nil {
		t.Fatalf("MapRead() error = %v", err)
	}

	f.a.LoseDevice()
	if status != gpucore.MapStatusDeviceLost {
		t.Errorf("pending map status = %v, want DeviceLost", status)
	}
	if err := f.a.Submit(f.commands(1)); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Submit() after loss error = %v, want ErrDeviceLost", err)
	}
	if err := f.a.MapRead(f.staging, func(s gpucore.MapStatus) { status = s }); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("MapRead() after loss error = %v, want ErrDeviceLost", err)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestAdapter_Counts(t *testing.T) {
	f := newFixture(t, 1)
	if b, p, g := f.a.Counts(); b != 2 || p != 1 || g != 1 {
		t.Errorf("Counts() = (%d, %d, %d), want (2, 1, 1)", b, p, g)
	}
	f.a.DestroyBindGroup(f.group)
	f.a.DestroyComputePipeline(f.pipeline)
	f.a.DestroyBuffer(f.storage)
	if b, p, g := f.a.Counts(); b != 1 || p != 0 || g != 0 {
		t.Errorf("Counts() = (%d, %d, %d), want (1, 0, 0)", b, p, g)
	}
}

func TestAdapter_BufferSize(t *testing.T) {
	a := New(WithWorkers(1))
	defer a.Destroy()

	id, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 12, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if size, ok := a.BufferSize(id); !ok || size != 12 {
		t.Errorf("BufferSize() = (%d, %v), want (12, true)", size, ok)
	}
	a.DestroyBuffer(id)
	if _, ok := a.BufferSize(id); ok {
		t.Error("BufferSize() after DestroyBuffer reported a live buffer")
	}
}

func TestAdapter_DestroyIdempotent(t *testing.T) {
	a := New(WithWorkers(1))
	a.Destroy()
	a.Destroy()
	if _, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 4}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("CreateBuffer() after Destroy error = %v, want ErrDestroyed", err)
	}
}
