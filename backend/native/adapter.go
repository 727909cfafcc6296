// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/mapping"
)

type buffer struct {
	id    gpucore.BufferID
	raw   hal.Buffer
	label string
	usage gputypes.BufferUsage
	size  uint64

	// lastUse is the submission index of the last submission touching the
	// buffer; zero if none has.
	lastUse uint64
}

type pipeline struct {
	raw    hal.ComputePipeline
	label  string
	module *cachedModule
	shader gpucore.ShaderLayout

	layout hal.PipelineLayout
	// groupLayouts has one entry per group index in [0, GroupCount).
	groupLayouts []hal.BindGroupLayout
	// empty holds a bind group for each index the shader does not use.
	empty map[uint32]hal.BindGroup

	lastUse uint64
}

type bindGroup struct {
	raw      hal.BindGroup
	pipeline gpucore.ComputePipelineID
	group    uint32
	buffers  []*buffer
	lastUse  uint64
}

// grave is a destroyed resource waiting for its last submission.
type grave struct {
	after   uint64
	release func()
}

var _ gpucore.Adapter = (*Adapter)(nil)

// Adapter implements gpucore.Adapter on a HAL device and queue.
//
// Thread Safety: Adapter is safe for concurrent use from multiple goroutines.
// Resource maps are protected by a mutex; HAL calls that do not touch them
// run outside it.
type Adapter struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	// shared devices belong to the host application and are not destroyed.
	shared bool

	info    gputypes.AdapterInfo
	limits  gpucore.Limits
	modules *moduleCache
	maps    *mapping.Tracker

	// ID generation
	nextID atomic.Uint64

	buffers    map[gpucore.BufferID]*buffer
	pipelines  map[gpucore.ComputePipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]*bindGroup

	submitted uint64
	completed uint64
	graves    []grave

	lost      bool
	destroyed bool
}

// newAdapter wraps an open device and queue.
func newAdapter(device hal.Device, queue hal.Queue, info gputypes.AdapterInfo, limits gputypes.Limits) *Adapter {
	a := &Adapter{
		device:  device,
		queue:   queue,
		info:    info,
		limits:  fromHALLimits(limits),
		modules: newModuleCache(),
		maps:    mapping.NewTracker(),

		buffers:    make(map[gpucore.BufferID]*buffer),
		pipelines:  make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

func fromHALLimits(l gputypes.Limits) gpucore.Limits {
	return gpucore.Limits{
		MaxBufferSize:                    l.MaxBufferSize,
		MaxBindGroups:                    l.MaxBindGroups,
		MaxComputeWorkgroupsPerDimension: l.MaxComputeWorkgroupsPerDimension,
	}
}

// newID generates a unique resource ID.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// === Capabilities ===

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return backend.BackendNative }

// Info returns the GPU adapter information.
func (a *Adapter) Info() gputypes.AdapterInfo { return a.info }

// Limits returns the device limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// Shared reports whether the device belongs to the host application.
func (a *Adapter) Shared() bool { return a.shared }

// SetLogger sets the logger for the native backend.
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

// bury releases a resource once submission after has completed.
// Caller must hold a.mu.
func (a *Adapter) bury(after uint64, release func()) {
	if after <= a.completed {
		release()
		return
	}
	a.graves = append(a.graves, grave{after: after, release: release})
}

// exhume removes and returns the graves whose submission has completed.
// Caller must hold a.mu.
func (a *Adapter) exhume() []grave {
	var ready []grave
	kept := a.graves[:0]
	for _, g := range a.graves {
		if g.after <= a.completed {
			ready = append(ready, g)
		} else {
			kept = append(kept, g)
		}
	}
	a.graves = kept
	return ready
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer and uploads its initial contents.
// Buffers without contents are cleared to zero.
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
	err := a.usable()
	a.mu.Unlock()
	if err != nil {
		return gpucore.InvalidID, err
	}

	// The upload goes through the queue, which needs CopyDst.
	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	contents := desc.Contents
	if contents == nil {
		contents = make([]byte, desc.Size)
	}
	if err := a.queue.WriteBuffer(raw, 0, contents); err != nil {
		a.device.DestroyBuffer(raw)
		return gpucore.InvalidID, fmt.Errorf("upload buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(a.newID())
	b := &buffer{id: id, raw: raw, label: desc.Label, usage: desc.Usage, size: desc.Size}

	a.mu.Lock()
	a.buffers[id] = b
	a.mu.Unlock()

	slogger().Debug("native: buffer created", "label", desc.Label, "size", desc.Size)
	return id, nil
}

// DestroyBuffer releases a buffer once the GPU no longer uses it.
// A pending map fails with MapStatusDestroyedBeforeCallback.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
		if !a.destroyed {
			a.bury(b.lastUse, func() { a.device.DestroyBuffer(b.raw) })
		}
	}
	a.mu.Unlock()

	if ok {
		a.maps.Forget(id)
	}
}

// === Pipeline Management ===

// CreateComputePipeline compiles desc.Source to SPIR-V and builds explicit
// bind group and pipeline layouts from desc.Layout.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	n := desc.Layout.GroupCount()
	if n > a.limits.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bind groups exceed limit %d", ErrBindGroupMismatch, n, a.limits.MaxBindGroups)
	}

	a.mu.Lock()
	err := a.usable()
	a.mu.Unlock()
	if err != nil {
		return gpucore.InvalidID, err
	}

	module, err := a.modules.acquire(a.device, desc.Label, desc.Source)
	if err != nil {
		return gpucore.InvalidID, err
	}

	p := &pipeline{
		label:  desc.Label,
		module: module,
		shader: desc.Layout,
		empty:  make(map[uint32]hal.BindGroup),
	}
	if err := a.buildLayouts(p, n); err != nil {
		a.releasePipeline(p)
		return gpucore.InvalidID, err
	}

	raw, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     module.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		a.releasePipeline(p)
		return gpucore.InvalidID, fmt.Errorf("create compute pipeline %q: %w", desc.Label, err)
	}
	p.raw = raw

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.pipelines[id] = p
	a.mu.Unlock()

	hits, misses := a.modules.stats()
	slogger().Debug("native: pipeline created",
		"label", desc.Label, "groups", n, "module_hits", hits, "module_misses", misses)
	return id, nil
}

// buildLayouts creates one bind group layout per group index and the
// pipeline layout. Indices the shader skips get an empty layout and an
// empty bind group.
func (a *Adapter) buildLayouts(p *pipeline, n uint32) error {
	for g := range n {
		declared := p.shader.Group(g)
		entries := make([]gputypes.BindGroupLayoutEntry, 0, len(declared))
		for _, e := range declared {
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    e.Binding,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: e.Type.BufferBindingType()},
			})
		}
		bgl, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s.group%d", p.label, g),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bind group layout %d: %w", g, err)
		}
		p.groupLayouts = append(p.groupLayouts, bgl)

		if len(declared) == 0 {
			bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
				Label:  fmt.Sprintf("%s.empty%d", p.label, g),
				Layout: bgl,
			})
			if err != nil {
				return fmt.Errorf("create empty bind group %d: %w", g, err)
			}
			p.empty[g] = bg
		}
	}

	layout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label,
		BindGroupLayouts: p.groupLayouts,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.layout = layout
	return nil
}

// releasePipeline destroys every HAL object a pipeline owns.
func (a *Adapter) releasePipeline(p *pipeline) {
	if p.raw != nil {
		a.device.DestroyComputePipeline(p.raw)
	}
	if p.layout != nil {
		a.device.DestroyPipelineLayout(p.layout)
	}
	for _, bg := range p.empty {
		a.device.DestroyBindGroup(bg)
	}
	for _, bgl := range p.groupLayouts {
		a.device.DestroyBindGroupLayout(bgl)
	}
	a.modules.release(a.device, p.module)
}

// DestroyComputePipeline releases a pipeline once the GPU no longer uses it.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pipelines[id]
	if !ok {
		return
	}
	delete(a.pipelines, id)
	if !a.destroyed {
		a.bury(p.lastUse, func() { a.releasePipeline(p) })
	}
}

// CreateBindGroup validates entries against the pipeline's layout for group
// and creates the HAL bind group.
func (a *Adapter) CreateBindGroup(pipelineID gpucore.ComputePipelineID, group uint32, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	if err := a.usable(); err != nil {
		a.mu.Unlock()
		return gpucore.InvalidID, err
	}
	p, buffers, err := a.resolveEntries(pipelineID, group, entries)
	a.mu.Unlock()
	if err != nil {
		return gpucore.InvalidID, err
	}

	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		halEntries[i] = gputypes.BindGroupEntry{
			Binding: e.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: buffers[i].raw.NativeHandle(),
				Size:   e.Size,
			},
		}
	}
	raw, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s.group%d", p.label, group),
		Layout:  p.groupLayouts[group],
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = &bindGroup{raw: raw, pipeline: pipelineID, group: group, buffers: buffers}
	a.mu.Unlock()
	return id, nil
}

// resolveEntries checks entries against the declared slots of group and
// returns the buffer of each entry. Caller must hold a.mu.
func (a *Adapter) resolveEntries(pipelineID gpucore.ComputePipelineID, group uint32, entries []gpucore.BindGroupEntry) (*pipeline, []*buffer, error) {
	p, ok := a.pipelines[pipelineID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, pipelineID)
	}
	declared := p.shader.Group(group)
	if len(declared) == 0 {
		return nil, nil, fmt.Errorf("%w: group %d is not declared", ErrBindGroupMismatch, group)
	}

	seen := make(map[uint32]bool, len(entries))
	buffers := make([]*buffer, len(entries))
	for i, e := range entries {
		decl, ok := p.shader.Lookup(group, e.Binding)
		if !ok {
			return nil, nil, fmt.Errorf("%w: binding %d not declared in group %d", ErrBindGroupMismatch, e.Binding, group)
		}
		if seen[e.Binding] {
			return nil, nil, fmt.Errorf("%w: binding %d set twice in group %d", ErrBindGroupMismatch, e.Binding, group)
		}
		seen[e.Binding] = true

		b, ok := a.buffers[e.Buffer]
		if !ok {
			return nil, nil, fmt.Errorf("%w: buffer %d", ErrInvalidResource, e.Buffer)
		}
		if e.Size == 0 || e.Size > b.size {
			return nil, nil, fmt.Errorf("%w: binding %d size %d, buffer size %d", ErrBindGroupMismatch, e.Binding, e.Size, b.size)
		}
		want := gputypes.BufferUsageStorage
		if decl.Type == gpucore.BindingTypeUniformBuffer {
			want = gputypes.BufferUsageUniform
		}
		if b.usage&want == 0 {
			return nil, nil, fmt.Errorf("%w: %s binding %d", ErrUsage, decl.Type, e.Binding)
		}
		buffers[i] = b
	}
	for _, decl := range declared {
		if !seen[decl.Binding] {
			return nil, nil, fmt.Errorf("%w: binding %d (%s) missing in group %d", ErrBindGroupMismatch, decl.Binding, decl.Name, group)
		}
	}
	return p, buffers, nil
}

// DestroyBindGroup releases a bind group once the GPU no longer uses it.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.bindGroups[id]
	if !ok {
		return
	}
	delete(a.bindGroups, id)
	if !a.destroyed {
		a.bury(g.lastUse, func() { a.device.DestroyBindGroup(g.raw) })
	}
}

// === Command Execution ===

// recorded is a validated command ready for encoding.
type recorded struct {
	kind gpucore.CommandKind

	pipeline   *pipeline
	groups     []hal.BindGroup
	workgroups [3]uint32

	src, dst *buffer
	size     uint64
}

// Submit validates list, encodes it into one HAL command buffer and submits
// it. Every resource the list touches is kept alive until the submission
// completes.
func (a *Adapter) Submit(list *gpucore.CommandList) error {
	if list.Len() == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}

	cmds := make([]recorded, 0, list.Len())
	var touched []*bindGroup
	for i, cmd := range list.Commands {
		var (
			r    recorded
			used []*bindGroup
			err  error
		)
		switch cmd.Kind {
		case gpucore.CommandDispatch:
			r, used, err = a.resolveDispatch(cmd)
		case gpucore.CommandCopy:
			r, err = a.resolveCopy(cmd)
		default:
			err = fmt.Errorf("native: unknown command %s", cmd.Kind)
		}
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
		cmds = append(cmds, r)
		touched = append(touched, used...)
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: list.Label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(list.Label); err != nil {
		encoder.Destroy()
		return fmt.Errorf("begin encoding: %w", err)
	}
	for _, r := range cmds {
		a.encode(encoder, list.Label, r)
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return fmt.Errorf("end encoding: %w", err)
	}

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		a.device.FreeCommandBuffer(cmdBuf)
		encoder.Destroy()
		if errors.Is(err, hal.ErrDeviceLost) {
			a.loseLocked()
			return fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
		return fmt.Errorf("submit: %w", err)
	}
	a.submitted = max(a.submitted, index)

	for _, r := range cmds {
		switch r.kind {
		case gpucore.CommandDispatch:
			r.pipeline.lastUse = index
		case gpucore.CommandCopy:
			r.src.lastUse = index
			r.dst.lastUse = index
		}
	}
	for _, g := range touched {
		g.lastUse = index
		for _, b := range g.buffers {
			b.lastUse = index
		}
	}
	a.graves = append(a.graves, grave{after: index, release: func() {
		a.device.FreeCommandBuffer(cmdBuf)
		encoder.Destroy()
	}})

	slogger().Debug("native: submitted", "label", list.Label, "commands", len(cmds), "index", index)
	return nil
}

// encode records one validated command. Zero-sized dispatches are skipped.
func (a *Adapter) encode(encoder hal.CommandEncoder, label string, r recorded) {
	switch r.kind {
	case gpucore.CommandDispatch:
		x, y, z := r.workgroups[0], r.workgroups[1], r.workgroups[2]
		if x == 0 || y == 0 || z == 0 {
			return
		}
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
		pass.SetPipeline(r.pipeline.raw)
		for i, bg := range r.groups {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
		pass.Dispatch(x, y, z)
		pass.End()
	case gpucore.CommandCopy:
		encoder.CopyBufferToBuffer(r.src.raw, r.dst.raw, []hal.BufferCopy{{Size: r.size}})
	}
}

// resolveDispatch resolves the pipeline and one bind group per group index.
// Caller must hold a.mu.
func (a *Adapter) resolveDispatch(cmd gpucore.Command) (recorded, []*bindGroup, error) {
	p, ok := a.pipelines[cmd.Pipeline]
	if !ok {
		return recorded{}, nil, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, cmd.Pipeline)
	}
	for _, n := range cmd.Workgroups {
		if n > a.limits.MaxComputeWorkgroupsPerDimension {
			return recorded{}, nil, fmt.Errorf("%w: %d > %d", ErrDispatchTooLarge, n, a.limits.MaxComputeWorkgroupsPerDimension)
		}
	}

	set := make(map[uint32]*bindGroup, len(cmd.BindGroups))
	for _, bg := range cmd.BindGroups {
		g, ok := a.bindGroups[bg.Group]
		if !ok {
			return recorded{}, nil, fmt.Errorf("%w: bind group %d", ErrInvalidResource, bg.Group)
		}
		if g.pipeline != cmd.Pipeline || g.group != bg.Index {
			return recorded{}, nil, fmt.Errorf("%w: bind group %d is not compatible with group %d", ErrBindGroupMismatch, bg.Group, bg.Index)
		}
		for _, b := range g.buffers {
			if a.maps.State(b.id) != mapping.StateUnmapped {
				return recorded{}, nil, fmt.Errorf("%w: %q", ErrBufferMapped, b.label)
			}
		}
		set[bg.Index] = g
	}

	n := uint32(len(p.groupLayouts))
	groups := make([]hal.BindGroup, n)
	used := make([]*bindGroup, 0, len(set))
	for i := range n {
		if g, ok := set[i]; ok {
			groups[i] = g.raw
			used = append(used, g)
			continue
		}
		empty, ok := p.empty[i]
		if !ok {
			return recorded{}, nil, fmt.Errorf("%w: no bind group set at index %d", ErrBindGroupMismatch, i)
		}
		groups[i] = empty
	}

	return recorded{
		kind:       gpucore.CommandDispatch,
		pipeline:   p,
		groups:     groups,
		workgroups: cmd.Workgroups,
	}, used, nil
}

// resolveCopy validates a buffer copy. Caller must hold a.mu.
func (a *Adapter) resolveCopy(cmd gpucore.Command) (recorded, error) {
	src, ok := a.buffers[cmd.Src]
	if !ok {
		return recorded{}, fmt.Errorf("%w: source buffer %d", ErrInvalidResource, cmd.Src)
	}
	dst, ok := a.buffers[cmd.Dst]
	if !ok {
		return recorded{}, fmt.Errorf("%w: destination buffer %d", ErrInvalidResource, cmd.Dst)
	}
	if src.usage&gputypes.BufferUsageCopySrc == 0 {
		return recorded{}, fmt.Errorf("%w: source lacks CopySrc", ErrUsage)
	}
	if dst.usage&gputypes.BufferUsageCopyDst == 0 {
		return recorded{}, fmt.Errorf("%w: destination lacks CopyDst", ErrUsage)
	}
	if cmd.Size%4 != 0 {
		return recorded{}, fmt.Errorf("%w: %d", ErrCopyNotAligned, cmd.Size)
	}
	if cmd.Size > src.size || cmd.Size > dst.size {
		return recorded{}, fmt.Errorf("%w: size %d", ErrCopyOutOfBounds, cmd.Size)
	}
	if a.maps.State(cmd.Src) != mapping.StateUnmapped || a.maps.State(cmd.Dst) != mapping.StateUnmapped {
		return recorded{}, ErrBufferMapped
	}
	return recorded{kind: gpucore.CommandCopy, src: src, dst: dst, size: cmd.Size}, nil
}

// === Readback ===

// MapRead requests a read mapping of a whole buffer. The mapping completes
// from Poll once the last submission touching the buffer has finished.
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

type readyMap struct {
	id gpucore.BufferID
	b  *buffer
}

// Poll collects completed submissions, releases resources they kept alive
// and completes maps of idle buffers. With wait it first blocks until the
// device is idle.
func (a *Adapter) Poll(wait bool) bool {
	a.mu.Lock()
	if a.lost || a.destroyed {
		a.mu.Unlock()
		a.maps.FailAll(gpucore.MapStatusDeviceLost)
		return true
	}
	target := a.submitted
	a.mu.Unlock()

	if wait && a.queue.PollCompleted() < target {
		if err := a.device.WaitIdle(); err != nil {
			if errors.Is(err, hal.ErrDeviceLost) {
				a.LoseDevice()
				return true
			}
			slogger().Warn("native: wait idle failed", "err", err)
		}
	}
	completed := a.queue.PollCompleted()

	a.mu.Lock()
	a.completed = max(a.completed, completed)
	graves := a.exhume()
	var ready []readyMap
	for _, id := range a.maps.Pending() {
		b, ok := a.buffers[id]
		if !ok {
			continue
		}
		if b.lastUse <= a.completed {
			ready = append(ready, readyMap{id: id, b: b})
		}
	}
	done := a.completed >= a.submitted
	a.mu.Unlock()

	for _, g := range graves {
		g.release()
	}
	for _, r := range ready {
		data, err := a.readBack(r.b)
		if err != nil {
			slogger().Warn("native: map failed", "label", r.b.label, "err", err)
			a.maps.Fail(r.id, gpucore.MapStatusUnknown)
			continue
		}
		a.maps.Complete(r.id, data)
	}
	return done
}

// readBack copies the contents of an idle host-visible buffer.
func (a *Adapter) readBack(b *buffer) ([]byte, error) {
	m, err := a.device.MapBuffer(b.raw, 0, b.size)
	if err != nil {
		return nil, err
	}
	data := make([]byte, b.size)
	copy(data, unsafe.Slice((*byte)(m.Ptr), b.size))
	if err := a.device.UnmapBuffer(b.raw); err != nil {
		return nil, err
	}
	return data, nil
}

// MappedRange returns the mapped contents of a buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) {
	return a.maps.Range(id)
}

// Unmap ends a mapping or cancels a pending one.
func (a *Adapter) Unmap(id gpucore.BufferID) {
	a.maps.Unmap(id)
}

// LoseDevice marks the device as lost. Pending maps fail with
// MapStatusDeviceLost and further work is rejected.
func (a *Adapter) LoseDevice() {
	a.mu.Lock()
	a.loseLocked()
	a.mu.Unlock()
	a.maps.FailAll(gpucore.MapStatusDeviceLost)
}

func (a *Adapter) loseLocked() {
	if !a.lost {
		a.lost = true
		slogger().Warn("native: device lost", "pending_submissions", a.submitted-a.completed)
	}
}

// Counts returns the number of live buffers, pipelines and bind groups.
func (a *Adapter) Counts() (buffers, pipelines, bindGroups int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers), len(a.pipelines), len(a.bindGroups)
}

// Destroy waits for the device to go idle and releases every resource.
// A device opened by the adapter is destroyed with it; a shared device is
// left to its owner. Destroy is idempotent.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	buffers, pipelines, groups := a.buffers, a.pipelines, a.bindGroups
	graves := a.graves
	a.buffers = make(map[gpucore.BufferID]*buffer)
	a.pipelines = make(map[gpucore.ComputePipelineID]*pipeline)
	a.bindGroups = make(map[gpucore.BindGroupID]*bindGroup)
	a.graves = nil
	a.mu.Unlock()

	ids := make([]gpucore.BufferID, 0, len(buffers))
	for id := range buffers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a.maps.Forget(id)
	}

	if !a.lost {
		if err := a.device.WaitIdle(); err != nil {
			slogger().Warn("native: wait idle on destroy", "err", err)
		}
	}
	for _, g := range graves {
		g.release()
	}
	for _, g := range groups {
		a.device.DestroyBindGroup(g.raw)
	}
	for _, p := range pipelines {
		a.releasePipeline(p)
	}
	for _, b := range buffers {
		a.device.DestroyBuffer(b.raw)
	}
	a.modules.clear(a.device)

	if !a.shared {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	slogger().Debug("native: adapter destroyed", "shared", a.shared)
}
