package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/mapping"
	"github.com/gogpu/compute/internal/parallel"
)

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Adapter, error) {
		return New(), nil
	})
}

type buffer struct {
	label string
	usage gputypes.BufferUsage
	data  []byte
}

func (b *buffer) size() uint64 { return uint64(len(b.data)) }

type pipeline struct {
	label  string
	layout gpucore.ShaderLayout
	kernel Kernel
}

type bindGroup struct {
	pipeline gpucore.ComputePipelineID
	group    uint32
	buffers  map[uint32]*buffer
}

// op is one resolved command. Buffer storage is captured at Submit, so
// resources destroyed after submission stay alive until the op has run.
type op struct {
	kind gpucore.CommandKind

	kernel     Kernel
	bindings   map[slot][]byte
	workgroups [3]uint32

	src, dst *buffer
	size     uint64
}

type submission struct {
	label string
	ops   []op
}

var _ gpucore.Adapter = (*Adapter)(nil)

// Adapter is the CPU implementation of gpucore.Adapter.
type Adapter struct {
	mu sync.Mutex

	limits gpucore.Limits
	pool   *parallel.WorkerPool
	maps   *mapping.Tracker

	nextID     atomic.Uint64
	buffers    map[gpucore.BufferID]*buffer
	pipelines  map[gpucore.ComputePipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]*bindGroup

	queue []submission

	lost      bool
	destroyed bool
}

// New creates a software adapter.
func New(opts ...Option) *Adapter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &Adapter{
		limits:     o.limits,
		pool:       parallel.NewWorkerPool(o.workers),
		maps:       mapping.NewTracker(),
		buffers:    make(map[gpucore.BufferID]*buffer),
		pipelines:  make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}
	a.nextID.Store(1)
	slogger().Debug("software: adapter created", "workers", a.pool.Workers())
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return backend.BackendSoftware }

// Limits returns the device limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// SetLogger sets the logger for the software backend.
func (a *Adapter) SetLogger(l *slog.Logger) { setLogger(l) }

// usable reports why the adapter cannot accept new work, if it cannot.
// Caller must hold a.mu.
func (a *Adapter) usable() error {
	switch {
	case a.destroyed:
		return ErrDestroyed
	case a.lost:
		return ErrDeviceLost
	}
	return nil
}

// CreateBuffer allocates host memory for a buffer.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, ErrInvalidBufferSize
	}
	if desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d > %d", ErrBufferTooLarge, desc.Size, a.limits.MaxBufferSize)
	}
	if desc.Contents != nil && uint64(len(desc.Contents)) != desc.Size {
		return gpucore.InvalidID, fmt.Errorf("%w: %d != %d", ErrContentsSize, len(desc.Contents), desc.Size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return gpucore.InvalidID, err
	}

	b := &buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}
	copy(b.data, desc.Contents)

	id := gpucore.BufferID(a.newID())
	a.buffers[id] = b
	return id, nil
}

// DestroyBuffer releases a buffer. A pending map fails with
// MapStatusDestroyedBeforeCallback.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	_, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()

	if ok {
		a.maps.Forget(id)
	}
}

// CreateComputePipeline resolves the registered kernel for desc.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	k, ok := lookupKernel(desc.Source, desc.EntryPoint)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %q", ErrNoKernel, desc.EntryPoint)
	}
	if n := desc.Layout.GroupCount(); n > a.limits.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bind groups exceed limit %d", ErrBindGroupMismatch, n, a.limits.MaxBindGroups)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return gpucore.InvalidID, err
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = &pipeline{label: desc.Label, layout: desc.Layout, kernel: k}
	return id, nil
}

// DestroyComputePipeline releases a pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelines, id)
}

// CreateBindGroup validates entries against the pipeline's layout for group.
func (a *Adapter) CreateBindGroup(pipelineID gpucore.ComputePipelineID, group uint32, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return gpucore.InvalidID, err
	}

	p, ok := a.pipelines[pipelineID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, pipelineID)
	}
	declared := p.layout.Group(group)
	if len(declared) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: group %d is not declared", ErrBindGroupMismatch, group)
	}

	bound := make(map[uint32]*buffer, len(entries))
	for _, e := range entries {
		decl, ok := p.layout.Lookup(group, e.Binding)
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: binding %d not declared in group %d", ErrBindGroupMismatch, e.Binding, group)
		}
		if _, dup := bound[e.Binding]; dup {
			return gpucore.InvalidID, fmt.Errorf("%w: binding %d set twice in group %d", ErrBindGroupMismatch, e.Binding, group)
		}
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", ErrInvalidResource, e.Buffer)
		}
		if e.Size == 0 || e.Size > b.size() {
			return gpucore.InvalidID, fmt.Errorf("%w: binding %d size %d, buffer size %d", ErrBindGroupMismatch, e.Binding, e.Size, b.size())
		}
		want := gputypes.BufferUsageStorage
		if decl.Type == gpucore.BindingTypeUniformBuffer {
			want = gputypes.BufferUsageUniform
		}
		if b.usage&want == 0 {
			return gpucore.InvalidID, fmt.Errorf("%w: %s binding %d", ErrUsage, decl.Type, e.Binding)
		}
		bound[e.Binding] = &buffer{label: b.label, usage: b.usage, data: b.data[:e.Size]}
	}
	for _, decl := range declared {
		if _, ok := bound[decl.Binding]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: binding %d (%s) missing in group %d", ErrBindGroupMismatch, decl.Binding, decl.Name, group)
		}
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &bindGroup{pipeline: pipelineID, group: group, buffers: bound}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bindGroups, id)
}

// Submit validates list and queues it for execution on the next Poll.
func (a *Adapter) Submit(list *gpucore.CommandList) error {
	if list.Len() == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}

	sub := submission{label: list.Label, ops: make([]op, 0, list.Len())}
	for i, cmd := range list.Commands {
		var (
			o   op
			err error
		)
		switch cmd.Kind {
		case gpucore.CommandDispatch:
			o, err = a.resolveDispatch(cmd)
		case gpucore.CommandCopy:
			o, err = a.resolveCopy(cmd)
		default:
			err = fmt.Errorf("software: unknown command %s", cmd.Kind)
		}
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
		sub.ops = append(sub.ops, o)
	}
	a.queue = append(a.queue, sub)
	return nil
}

// resolveDispatch captures the kernel and bound storage of a dispatch.
// Caller must hold a.mu.
func (a *Adapter) resolveDispatch(cmd gpucore.Command) (op, error) {
	p, ok := a.pipelines[cmd.Pipeline]
	if !ok {
		return op{}, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, cmd.Pipeline)
	}
	for _, n := range cmd.Workgroups {
		if n > a.limits.MaxComputeWorkgroupsPerDimension {
			return op{}, fmt.Errorf("%w: %d > %d", ErrDispatchTooLarge, n, a.limits.MaxComputeWorkgroupsPerDimension)
		}
	}

	set := make(map[uint32]*bindGroup, len(cmd.BindGroups))
	for _, bg := range cmd.BindGroups {
		g, ok := a.bindGroups[bg.Group]
		if !ok {
			return op{}, fmt.Errorf("%w: bind group %d", ErrInvalidResource, bg.Group)
		}
		if g.pipeline != cmd.Pipeline || g.group != bg.Index {
			return op{}, fmt.Errorf("%w: bind group %d is not compatible with group %d", ErrBindGroupMismatch, bg.Group, bg.Index)
		}
		set[bg.Index] = g
	}

	bindings := make(map[slot][]byte)
	for _, group := range p.layout.Groups() {
		g, ok := set[group]
		if !ok {
			return op{}, fmt.Errorf("%w: no bind group set at index %d", ErrBindGroupMismatch, group)
		}
		for binding, b := range g.buffers {
			bindings[slot{group, binding}] = b.data
		}
	}

	return op{
		kind:       gpucore.CommandDispatch,
		kernel:     p.kernel,
		bindings:   bindings,
		workgroups: cmd.Workgroups,
	}, nil
}

// resolveCopy validates a buffer copy. Caller must hold a.mu.
func (a *Adapter) resolveCopy(cmd gpucore.Command) (op, error) {
	src, ok := a.buffers[cmd.Src]
	if !ok {
		return op{}, fmt.Errorf("%w: source buffer %d", ErrInvalidResource, cmd.Src)
	}
	dst, ok := a.buffers[cmd.Dst]
	if !ok {
		return op{}, fmt.Errorf("%w: destination buffer %d", ErrInvalidResource, cmd.Dst)
	}
	if src.usage&gputypes.BufferUsageCopySrc == 0 {
		return op{}, fmt.Errorf("%w: source lacks CopySrc", ErrUsage)
	}
	if dst.usage&gputypes.BufferUsageCopyDst == 0 {
		return op{}, fmt.Errorf("%w: destination lacks CopyDst", ErrUsage)
	}
	if cmd.Size%4 != 0 {
		return op{}, fmt.Errorf("%w: %d", ErrCopyNotAligned, cmd.Size)
	}
	if cmd.Size > src.size() || cmd.Size > dst.size() {
		return op{}, fmt.Errorf("%w: size %d", ErrCopyOutOfBounds, cmd.Size)
	}
	if a.maps.State(cmd.Src) != mapping.StateUnmapped || a.maps.State(cmd.Dst) != mapping.StateUnmapped {
		return op{}, ErrBufferMapped
	}
	return op{kind: gpucore.CommandCopy, src: src, dst: dst, size: cmd.Size}, nil
}

// MapRead requests a read mapping of a whole buffer.
// The mapping completes on the next Poll, after all queued work has run.
func (a *Adapter) MapRead(id gpucore.BufferID, callback func(gpucore.MapStatus)) error {
	a.mu.Lock()
	err := a.usable()
	b, ok := a.buffers[id]
	a.mu.Unlock()

	switch {
	case err != nil:
		if callback != nil {
			callback(gpucore.MapStatusDeviceLost)
		}
		return err
	case !ok:
		if callback != nil {
			callback(gpucore.MapStatusValidationError)
		}
		return fmt.Errorf("%w: buffer %d", ErrInvalidResource, id)
	case b.usage&gputypes.BufferUsageMapRead == 0:
		if callback != nil {
			callback(gpucore.MapStatusValidationError)
		}
		return fmt.Errorf("%w: buffer lacks MapRead", ErrUsage)
	}
	return a.maps.Begin(id, callback)
}

// Poll runs every queued submission and then completes pending maps.
// The software queue always drains, so Poll returns true.
func (a *Adapter) Poll(_ bool) bool {
	a.mu.Lock()
	queue := a.queue
	a.queue = nil
	lost := a.lost || a.destroyed
	a.mu.Unlock()

	if lost {
		a.maps.FailAll(gpucore.MapStatusDeviceLost)
		return true
	}

	for _, sub := range queue {
		for _, o := range sub.ops {
			a.run(o)
		}
		slogger().Debug("software: submission complete", "label", sub.label, "ops", len(sub.ops))
	}

	for _, id := range a.maps.Pending() {
		a.mu.Lock()
		b, ok := a.buffers[id]
		a.mu.Unlock()
		if !ok {
			a.maps.Fail(id, gpucore.MapStatusDestroyedBeforeCallback)
			continue
		}
		a.maps.Complete(id, b.data)
	}
	return true
}

func (a *Adapter) run(o op) {
	switch o.kind {
	case gpucore.CommandCopy:
		copy(o.dst.data[:o.size], o.src.data[:o.size])
	case gpucore.CommandDispatch:
		a.dispatch(o)
	}
}

// dispatch runs every workgroup of o. Workgroups are spread over the pool;
// the invocations of one workgroup run in order on a single goroutine.
// A zero workgroup count is a no-op.
func (a *Adapter) dispatch(o op) {
	nx, ny, nz := o.workgroups[0], o.workgroups[1], o.workgroups[2]
	total := int(nx) * int(ny) * int(nz)
	if total == 0 {
		return
	}
	size := o.kernel.size()

	a.pool.ForEach(total, func(i int) {
		wg := workgroupID(uint64(i), o.workgroups)
		inv := Invocation{
			WorkgroupID:   wg,
			NumWorkgroups: o.workgroups,
			bindings:      o.bindings,
		}
		var local uint32
		for lz := range size[2] {
			for ly := range size[1] {
				for lx := range size[0] {
					inv.LocalID = [3]uint32{lx, ly, lz}
					inv.LocalIndex = local
					inv.GlobalID = [3]uint32{
						wg[0]*size[0] + lx,
						wg[1]*size[1] + ly,
						wg[2]*size[2] + lz,
					}
					o.kernel.Invoke(&inv)
					local++
				}
			}
		}
	})
}

// workgroupID converts a linear workgroup index into (x, y, z) coordinates
// for a dispatch of n workgroups. The arithmetic is done in 64 bits since
// the index and n[0]*n[1] can both exceed 32 bits.
func workgroupID(i uint64, n [3]uint32) [3]uint32 {
	nx, ny := uint64(n[0]), uint64(n[1])
	return [3]uint32{
		uint32(i % nx),
		uint32(i / nx % ny),
		uint32(i / (nx * ny)),
	}
}

// MappedRange returns the mapped contents of a buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) {
	return a.maps.Range(id)
}

// Unmap ends a mapping or cancels a pending one.
func (a *Adapter) Unmap(id gpucore.BufferID) {
	a.maps.Unmap(id)
}

// LoseDevice simulates device loss. Queued work is dropped, pending maps
// fail with MapStatusDeviceLost and further work is rejected.
func (a *Adapter) LoseDevice() {
	a.mu.Lock()
	a.lost = true
	dropped := len(a.queue)
	a.queue = nil
	a.mu.Unlock()

	slogger().Warn("software: device lost", "dropped_submissions", dropped)
	a.maps.FailAll(gpucore.MapStatusDeviceLost)
}

// BufferSize returns the allocated size of a live buffer.
func (a *Adapter) BufferSize(id gpucore.BufferID) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return 0, false
	}
	return b.size(), true
}

// Counts returns the number of live buffers, pipelines and bind groups.
func (a *Adapter) Counts() (buffers, pipelines, bindGroups int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers), len(a.pipelines), len(a.bindGroups)
}

// Destroy releases every resource and stops the worker pool.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	ids := make([]gpucore.BufferID, 0, len(a.buffers))
	for id := range a.buffers {
		ids = append(ids, id)
	}
	a.buffers = make(map[gpucore.BufferID]*buffer)
	a.pipelines = make(map[gpucore.ComputePipelineID]*pipeline)
	a.bindGroups = make(map[gpucore.BindGroupID]*bindGroup)
	a.queue = nil
	a.mu.Unlock()

	for _, id := range ids {
		a.maps.Forget(id)
	}
	a.pool.Close()
	slogger().Debug("software: adapter destroyed")
}
