//go:build wgpucgo

package wgpucgo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/openfluke/webgpu/wgpu"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/bindcheck"
	"github.com/gogpu/compute/internal/mapping"
)

func init() {
	backend.Register(backend.BackendCGO, func() (gpucore.Adapter, error) {
		a, err := New()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
		}
		return a, nil
	})
}

var (
	// ErrNoAdapter is returned when no adapter satisfies any power preference.
	ErrNoAdapter = errors.New("wgpucgo: no adapter")

	// ErrInvalidResource is returned for IDs the adapter does not know.
	ErrInvalidResource = errors.New("wgpucgo: invalid resource")

	// ErrClosed is returned after Destroy.
	ErrClosed = errors.New("wgpucgo: adapter destroyed")
)

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(slog.DiscardHandler)) }

type buffer struct {
	raw   *wgpu.Buffer
	label string
	usage gputypes.BufferUsage
	size  uint64
}

type pipeline struct {
	raw     *wgpu.ComputePipeline
	label   string
	layout  gpucore.ShaderLayout
	groups  []*wgpu.BindGroupLayout
	empty   map[uint32]*wgpu.BindGroup
	release []func()
}

type bindGroup struct {
	raw      *wgpu.BindGroup
	pipeline gpucore.ComputePipelineID
	group    uint32
}

// mapResult is a driver map callback waiting to be collected by Poll.
type mapResult struct {
	id     gpucore.BufferID
	status wgpu.BufferMapAsyncStatus
}

var _ gpucore.Adapter = (*Adapter)(nil)

// Adapter implements gpucore.Adapter on wgpu-native through cgo.
type Adapter struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	name   string
	limits gpucore.Limits
	maps   *mapping.Tracker

	nextID     atomic.Uint64
	buffers    map[gpucore.BufferID]*buffer
	pipelines  map[gpucore.ComputePipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]*bindGroup

	readyMu sync.Mutex
	ready   []mapResult

	destroyed bool
}

// New requests an adapter, trying high performance, then low power, then
// the driver default, and opens a device with the WebGPU default limits.
func New() (*Adapter, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("%w: instance creation failed", ErrNoAdapter)
	}

	var (
		adapter *wgpu.Adapter
		errs    []error
	)
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		a, err := instance.RequestAdapter(opts)
		if err == nil && a != nil {
			adapter = a
			break
		}
		errs = append(errs, err)
	}
	if adapter == nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoAdapter, errors.Join(errs...))
	}

	info := adapter.GetInfo()
	supported := adapter.GetLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	a := &Adapter{
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      device.GetQueue(),
		name:       info.Name,
		limits:     gpucore.DefaultLimits(),
		maps:       mapping.NewTracker(),
		buffers:    make(map[gpucore.BufferID]*buffer),
		pipelines:  make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}
	a.nextID.Store(1)
	logger.Load().Info("wgpucgo: device opened",
		"adapter", info.Name, "vendor", info.VendorName, "type", info.AdapterType.String(),
		"max_buffer_size", supported.Limits.MaxBufferSize)
	return a, nil
}

func (a *Adapter) newID() uint64 { return a.nextID.Add(1) - 1 }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return backend.BackendCGO }

// AdapterName returns the driver's name for the GPU.
func (a *Adapter) AdapterName() string { return a.name }

// Limits returns the device limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// SetLogger sets the logger for the cgo backend.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}

// CreateBuffer creates a buffer, seeding it from Contents when set.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 || desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer size %d", bindcheck.ErrMismatch, desc.Size)
	}
	if desc.Contents != nil && uint64(len(desc.Contents)) != desc.Size {
		return gpucore.InvalidID, fmt.Errorf("%w: contents %d != size %d", bindcheck.ErrMismatch, len(desc.Contents), desc.Size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrClosed
	}

	var (
		raw *wgpu.Buffer
		err error
	)
	if desc.Contents != nil {
		raw, err = a.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: desc.Contents,
			Usage:    wgpu.BufferUsage(desc.Usage),
		})
	} else {
		raw, err = a.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: wgpu.BufferUsage(desc.Usage),
		})
	}
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{raw: raw, label: desc.Label, usage: desc.Usage, size: desc.Size}
	return id, nil
}

// DestroyBuffer releases a buffer. wgpu-native keeps it alive until
// submitted work using it has finished.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok {
		a.maps.Forget(id)
		b.raw.Release()
	}
}

// CreateComputePipeline builds explicit layouts from desc.Layout, including
// empty layouts for group indices the shader skips.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	n := desc.Layout.GroupCount()
	if n > a.limits.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bind groups exceed limit %d", bindcheck.ErrMismatch, n, a.limits.MaxBindGroups)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrClosed
	}

	p := &pipeline{label: desc.Label, layout: desc.Layout, empty: make(map[uint32]*wgpu.BindGroup)}
	if err := a.build(p, desc); err != nil {
		p.destroy()
		return gpucore.InvalidID, err
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = p
	logger.Load().Debug("wgpucgo: pipeline created", "label", desc.Label, "groups", n)
	return id, nil
}

func (a *Adapter) build(p *pipeline, desc *gpucore.ComputePipelineDesc) error {
	module, err := a.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Source},
	})
	if err != nil {
		return fmt.Errorf("shader compile: %w", err)
	}
	p.release = append(p.release, module.Release)

	for g := range desc.Layout.GroupCount() {
		var entries []wgpu.BindGroupLayoutEntry
		for _, e := range desc.Layout.Group(g) {
			entries = append(entries, wgpu.BindGroupLayoutEntry{
				Binding:    e.Binding,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: bindingType(e.Type)},
			})
		}
		bgl, err := a.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_BGL%d", desc.Label, g),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bgl %d: %w", g, err)
		}
		p.groups = append(p.groups, bgl)
		if len(entries) == 0 {
			bg, err := a.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Layout: bgl})
			if err != nil {
				return fmt.Errorf("create empty bind group %d: %w", g, err)
			}
			p.empty[g] = bg
		}
	}

	pl, err := a.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label + "_Layout",
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.release = append(p.release, pl.Release)

	p.raw, err = a.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

func (p *pipeline) destroy() {
	if p.raw != nil {
		p.raw.Release()
	}
	for _, bg := range p.empty {
		bg.Release()
	}
	for _, bgl := range p.groups {
		bgl.Release()
	}
	for _, release := range p.release {
		release()
	}
}

func bindingType(t gpucore.BindingType) wgpu.BufferBindingType {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return wgpu.BufferBindingTypeUniform
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return wgpu.BufferBindingTypeReadOnlyStorage
	default:
		return wgpu.BufferBindingTypeStorage
	}
}

// DestroyComputePipeline releases a pipeline and its layouts.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	p, ok := a.pipelines[id]
	delete(a.pipelines, id)
	a.mu.Unlock()
	if ok {
		p.destroy()
	}
}

// CreateBindGroup validates entries and creates the bind group.
func (a *Adapter) CreateBindGroup(pipelineID gpucore.ComputePipelineID, group uint32, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pipelines[pipelineID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, pipelineID)
	}
	if err := bindcheck.Group(p.layout, group, entries, a.lookup); err != nil {
		return gpucore.InvalidID, err
	}

	wgpuEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		wgpuEntries[i] = wgpu.BindGroupEntry{Binding: e.Binding, Buffer: a.buffers[e.Buffer].raw, Offset: 0, Size: e.Size}
	}
	raw, err := a.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_bg%d", p.label, group),
		Layout:  p.groups[group],
		Entries: wgpuEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bindgroup: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &bindGroup{raw: raw, pipeline: pipelineID, group: group}
	return id, nil
}

// lookup resolves a buffer for bindcheck. Caller must hold a.mu.
func (a *Adapter) lookup(id gpucore.BufferID) (bindcheck.Buffer, bool) {
	b, ok := a.buffers[id]
	if !ok {
		return bindcheck.Buffer{}, false
	}
	return bindcheck.Buffer{Size: b.size, Usage: b.usage}, true
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	g, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()
	if ok {
		g.raw.Release()
	}
}

// Submit validates list, encodes it and submits one command buffer.
func (a *Adapter) Submit(list *gpucore.CommandList) error {
	if list.Len() == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrClosed
	}

	groups := make([][]*wgpu.BindGroup, len(list.Commands))
	for i, cmd := range list.Commands {
		var err error
		switch cmd.Kind {
		case gpucore.CommandDispatch:
			groups[i], err = a.resolveGroups(cmd)
		case gpucore.CommandCopy:
			err = a.checkCopy(cmd)
		default:
			err = fmt.Errorf("unknown command %s", cmd.Kind)
		}
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
	}

	enc, err := a.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	for i, cmd := range list.Commands {
		switch cmd.Kind {
		case gpucore.CommandDispatch:
			x, y, z := cmd.Workgroups[0], cmd.Workgroups[1], cmd.Workgroups[2]
			if x == 0 || y == 0 || z == 0 {
				continue
			}
			pass := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: list.Label})
			pass.SetPipeline(a.pipelines[cmd.Pipeline].raw)
			for g, bg := range groups[i] {
				pass.SetBindGroup(uint32(g), bg, nil)
			}
			pass.DispatchWorkgroups(x, y, z)
			pass.End()
		case gpucore.CommandCopy:
			enc.CopyBufferToBuffer(a.buffers[cmd.Src].raw, 0, a.buffers[cmd.Dst].raw, 0, cmd.Size)
		}
	}
	cb, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("finish command buffer: %w", err)
	}
	a.queue.Submit(cb)
	cb.Release()
	return nil
}

// resolveGroups returns the bind group of every group index for a dispatch.
// Caller must hold a.mu.
func (a *Adapter) resolveGroups(cmd gpucore.Command) ([]*wgpu.BindGroup, error) {
	p, ok := a.pipelines[cmd.Pipeline]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, cmd.Pipeline)
	}
	for _, n := range cmd.Workgroups {
		if n > a.limits.MaxComputeWorkgroupsPerDimension {
			return nil, fmt.Errorf("%w: %d workgroups", bindcheck.ErrMismatch, n)
		}
	}
	groups := make([]*wgpu.BindGroup, len(p.groups))
	for i := range groups {
		groups[i] = p.empty[uint32(i)]
	}
	for _, bg := range cmd.BindGroups {
		g, ok := a.bindGroups[bg.Group]
		if !ok {
			return nil, fmt.Errorf("%w: bind group %d", ErrInvalidResource, bg.Group)
		}
		if g.pipeline != cmd.Pipeline || g.group != bg.Index || int(bg.Index) >= len(groups) {
			return nil, fmt.Errorf("%w: bind group %d at index %d", bindcheck.ErrMismatch, bg.Group, bg.Index)
		}
		groups[bg.Index] = g.raw
	}
	for i, g := range groups {
		if g == nil {
			return nil, fmt.Errorf("%w: no bind group set at index %d", bindcheck.ErrMismatch, i)
		}
	}
	return groups, nil
}

// checkCopy validates a copy. Caller must hold a.mu.
func (a *Adapter) checkCopy(cmd gpucore.Command) error {
	src, ok := a.lookup(cmd.Src)
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrInvalidResource, cmd.Src)
	}
	dst, ok := a.lookup(cmd.Dst)
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrInvalidResource, cmd.Dst)
	}
	if a.maps.State(cmd.Src) != mapping.StateUnmapped || a.maps.State(cmd.Dst) != mapping.StateUnmapped {
		return fmt.Errorf("%w: copy touches a mapped buffer", bindcheck.ErrUsage)
	}
	return bindcheck.Copy(src, dst, cmd.Size)
}

// MapRead starts a driver map. The callback fires from Poll.
func (a *Adapter) MapRead(id gpucore.BufferID, callback func(gpucore.MapStatus)) error {
	a.mu.Lock()
	b, ok := a.buffers[id]
	destroyed := a.destroyed
	a.mu.Unlock()

	switch {
	case destroyed:
		if callback != nil {
			callback(gpucore.MapStatusDeviceLost)
		}
		return ErrClosed
	case !ok:
		if callback != nil {
			callback(gpucore.MapStatusValidationError)
		}
		return fmt.Errorf("%w: buffer %d", ErrInvalidResource, id)
	case b.usage&gputypes.BufferUsageMapRead == 0:
		if callback != nil {
			callback(gpucore.MapStatusValidationError)
		}
		return fmt.Errorf("%w: buffer lacks MapRead", bindcheck.ErrUsage)
	}

	if err := a.maps.Begin(id, callback); err != nil {
		return err
	}
	err := b.raw.MapAsync(wgpu.MapModeRead, 0, b.size, func(status wgpu.BufferMapAsyncStatus) {
		a.readyMu.Lock()
		a.ready = append(a.ready, mapResult{id: id, status: status})
		a.readyMu.Unlock()
	})
	if err != nil {
		a.maps.Fail(id, gpucore.MapStatusValidationError)
		return fmt.Errorf("MapAsync failed: %w", err)
	}
	return nil
}

// Poll drives the device, then completes maps whose driver callback fired.
// Maps cancelled in the meantime are unmapped in the driver and dropped.
func (a *Adapter) Poll(wait bool) bool {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		a.maps.FailAll(gpucore.MapStatusDeviceLost)
		return true
	}
	a.mu.Unlock()

	idle := a.device.Poll(wait, nil)

	a.readyMu.Lock()
	ready := a.ready
	a.ready = nil
	a.readyMu.Unlock()

	for _, r := range ready {
		a.mu.Lock()
		b, ok := a.buffers[r.id]
		a.mu.Unlock()
		if !ok {
			continue
		}
		if r.status != wgpu.BufferMapAsyncStatusSuccess {
			logger.Load().Warn("wgpucgo: map failed", "label", b.label, "status", r.status)
			a.maps.Fail(r.id, gpucore.MapStatusUnknown)
			continue
		}
		if a.maps.State(r.id) != mapping.StatePending {
			b.raw.Unmap()
			continue
		}
		data := make([]byte, b.size)
		copy(data, b.raw.GetMappedRange(0, uint(b.size)))
		b.raw.Unmap()
		a.maps.Complete(r.id, data)
	}
	return idle
}

// MappedRange returns the mapped contents of a buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) { return a.maps.Range(id) }

// Unmap ends a mapping or cancels a pending one.
func (a *Adapter) Unmap(id gpucore.BufferID) { a.maps.Unmap(id) }

// Destroy waits for the device and releases everything.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	buffers, pipelines, groups := a.buffers, a.pipelines, a.bindGroups
	a.buffers, a.pipelines, a.bindGroups = nil, nil, nil
	a.mu.Unlock()

	a.device.Poll(true, nil)
	for id, b := range buffers {
		a.maps.Forget(id)
		b.raw.Release()
	}
	for _, g := range groups {
		g.raw.Release()
	}
	for _, p := range pipelines {
		p.destroy()
	}
	a.queue.Release()
	a.device.Release()
	a.adapter.Release()
	a.instance.Release()
}
