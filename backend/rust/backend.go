//go:build rust

package rust

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/bindcheck"
	"github.com/gogpu/compute/internal/mapping"
	"github.com/gogpu/compute/internal/wgslreflect"
)

// init registers the rust backend on package import.
func init() {
	backend.Register(backend.BackendRust, func() (gpucore.Adapter, error) {
		a, err := New()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
		}
		return a, nil
	})
}

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(slog.DiscardHandler)) }

type buffer struct {
	raw   *wgpu.Buffer
	label string
	usage gputypes.BufferUsage
	size  uint64
}

func (b *buffer) check() bindcheck.Buffer {
	return bindcheck.Buffer{Size: b.size, Usage: b.usage}
}

type pipeline struct {
	raw    *wgpu.ComputePipeline
	module *wgpu.ShaderModule
	label  string
	layout gpucore.ShaderLayout
	groups []*wgpu.BindGroupLayout
	empty  map[uint32]*wgpu.BindGroup
}

type bindGroup struct {
	raw      *wgpu.BindGroup
	pipeline gpucore.ComputePipelineID
	group    uint32
}

var _ gpucore.Adapter = (*Adapter)(nil)

// Adapter implements gpucore.Adapter on wgpu-native through go-webgpu.
//
// wgpu-native keeps released resources alive until the work using them has
// finished, so Destroy* calls release immediately.
type Adapter struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	gpuInfo *GPUInfo
	limits  gpucore.Limits
	maps    *mapping.Tracker

	nextID atomic.Uint64

	buffers    map[gpucore.BufferID]*buffer
	pipelines  map[gpucore.ComputePipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]*bindGroup

	destroyed bool
}

// GPUInfo contains information about the selected GPU.
type GPUInfo struct {
	Vendor       string
	Architecture string
	Device       string
	Description  string
	BackendType  string
	AdapterType  string
	VendorID     uint32
	DeviceID     uint32
}

// New loads wgpu-native, requests a high-performance adapter and opens a
// device with default limits.
func New() (*Adapter, error) {
	if err := wgpu.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLibraryNotFound, err)
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("instance creation failed: %w", err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoGPU, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("device creation failed: %w", err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("queue retrieval failed")
	}

	a := &Adapter{
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      queue,
		gpuInfo:    gpuInfo(adapter),
		limits:     gpucore.DefaultLimits(),
		maps:       mapping.NewTracker(),
		buffers:    make(map[gpucore.BufferID]*buffer),
		pipelines:  make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}
	a.nextID.Store(1)

	if info := a.gpuInfo; info != nil {
		logger.Load().Info("rust: device opened",
			"device", info.Device, "backend", info.BackendType, "type", info.AdapterType,
			"vendor_id", info.VendorID, "device_id", info.DeviceID)
	}
	return a, nil
}

func (a *Adapter) newID() uint64 { return a.nextID.Add(1) - 1 }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return backend.BackendRust }

// Limits returns the WebGPU default limits the device was requested with.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// GPUInfoData returns information about the selected GPU.
func (a *Adapter) GPUInfoData() *GPUInfo { return a.gpuInfo }

// SetLogger sets the logger for the rust backend.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}

// CreateBuffer creates a buffer, writing Contents through a mapping at
// creation. Buffers without contents are zeroed by the driver.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	switch {
	case desc.Size == 0 || desc.Size%4 != 0:
		return gpucore.InvalidID, fmt.Errorf("%w: %d", ErrInvalidBufferSize, desc.Size)
	case desc.Size > a.limits.MaxBufferSize:
		return gpucore.InvalidID, fmt.Errorf("%w: %d > %d", ErrInvalidBufferSize, desc.Size, a.limits.MaxBufferSize)
	case desc.Contents != nil && uint64(len(desc.Contents)) != desc.Size:
		return gpucore.InvalidID, fmt.Errorf("%w: contents %d != size %d", ErrInvalidBufferSize, len(desc.Contents), desc.Size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrNotInitialized
	}

	bd := &wgpu.BufferDescriptor{
		Usage: desc.Usage,
		Size:  desc.Size,
	}
	if desc.Contents != nil {
		bd.MappedAtCreation = wgpu.True
	}
	raw := a.device.CreateBuffer(bd)
	if raw == nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: device rejected allocation", desc.Label)
	}
	if desc.Contents != nil {
		mapped := raw.GetMappedRange(0, desc.Size)
		//nolint:gosec // mapped range covers desc.Size bytes
		copy(unsafe.Slice((*byte)(mapped), desc.Size), desc.Contents)
		raw.Unmap()
	}

	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{raw: raw, label: desc.Label, usage: desc.Usage, size: desc.Size}
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.maps.Forget(id)
	b.raw.Release()
}

// CreateComputePipeline validates desc.Source with naga, then lets the
// driver derive the layout. Group indices the shader skips get an empty
// bind group.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	n := desc.Layout.GroupCount()
	if n > a.limits.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bind groups exceed limit %d", bindcheck.ErrMismatch, n, a.limits.MaxBindGroups)
	}
	if _, err := wgslreflect.Reflect(desc.Source, desc.EntryPoint); err != nil {
		return gpucore.InvalidID, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrNotInitialized
	}

	module := a.device.CreateShaderModuleWGSL(desc.Source)
	if module == nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module %q failed", desc.Label)
	}
	raw := a.device.CreateComputePipelineSimple(nil, module, desc.EntryPoint)
	if raw == nil {
		module.Release()
		return gpucore.InvalidID, fmt.Errorf("create compute pipeline %q failed", desc.Label)
	}

	p := &pipeline{
		raw:    raw,
		module: module,
		label:  desc.Label,
		layout: desc.Layout,
		empty:  make(map[uint32]*wgpu.BindGroup),
	}
	for g := range n {
		bgl := raw.GetBindGroupLayout(g)
		p.groups = append(p.groups, bgl)
		if len(desc.Layout.Group(g)) == 0 {
			p.empty[g] = a.device.CreateBindGroupSimple(bgl, nil)
		}
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = p
	logger.Load().Debug("rust: pipeline created", "label", desc.Label, "groups", n)
	return id, nil
}

// DestroyComputePipeline releases a pipeline and the objects derived from it.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	p, ok := a.pipelines[id]
	delete(a.pipelines, id)
	a.mu.Unlock()
	if ok {
		releasePipeline(p)
	}
}

func releasePipeline(p *pipeline) {
	for _, bg := range p.empty {
		bg.Release()
	}
	for _, bgl := range p.groups {
		bgl.Release()
	}
	p.raw.Release()
	p.module.Release()
}

// CreateBindGroup validates entries against the declared slots of group
// and creates the bind group.
func (a *Adapter) CreateBindGroup(pipelineID gpucore.ComputePipelineID, group uint32, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pipelines[pipelineID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %d", ErrInvalidResource, pipelineID)
	}
	err := bindcheck.Group(p.layout, group, entries, func(id gpucore.BufferID) (bindcheck.Buffer, bool) {
		b, ok := a.buffers[id]
		if !ok {
			return bindcheck.Buffer{}, false
		}
		return b.check(), true
	})
	if err != nil {
		return gpucore.InvalidID, err
	}

	wgpuEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		wgpuEntries[i] = wgpu.BufferBindingEntry(e.Binding, a.buffers[e.Buffer].raw, 0, e.Size)
	}
	raw := a.device.CreateBindGroupSimple(p.groups[group], wgpuEntries)
	if raw == nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group %d of %q failed", group, p.label)
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &bindGroup{raw: raw, pipeline: pipelineID, group: group}
	return id, nil
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

// Submit validates list and records it into one command buffer.
func (a *Adapter) Submit(list *gpucore.CommandList) error {
	if list.Len() == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrNotInitialized
	}

	for i, cmd := range list.Commands {
		if err := a.validate(cmd); err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
	}

	encoder := a.device.CreateCommandEncoder(nil)
	defer encoder.Release()
	for _, cmd := range list.Commands {
		switch cmd.Kind {
		case gpucore.CommandDispatch:
			x, y, z := cmd.Workgroups[0], cmd.Workgroups[1], cmd.Workgroups[2]
			if x == 0 || y == 0 || z == 0 {
				continue
			}
			p := a.pipelines[cmd.Pipeline]
			pass := encoder.BeginComputePass(nil)
			pass.SetPipeline(p.raw)
			for i, bg := range a.groupsFor(p, cmd) {
				pass.SetBindGroup(uint32(i), bg, nil)
			}
			pass.DispatchWorkgroups(x, y, z)
			pass.End()
			pass.Release()
		case gpucore.CommandCopy:
			encoder.CopyBufferToBuffer(a.buffers[cmd.Src].raw, 0, a.buffers[cmd.Dst].raw, 0, cmd.Size)
		}
	}
	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)
	cmdBuffer.Release()

	logger.Load().Debug("rust: submitted", "label", list.Label, "commands", list.Len())
	return nil
}

// validate checks one command. Caller must hold a.mu.
func (a *Adapter) validate(cmd gpucore.Command) error {
	switch cmd.Kind {
	case gpucore.CommandDispatch:
		p, ok := a.pipelines[cmd.Pipeline]
		if !ok {
			return fmt.Errorf("%w: pipeline %d", ErrInvalidResource, cmd.Pipeline)
		}
		for _, n := range cmd.Workgroups {
			if n > a.limits.MaxComputeWorkgroupsPerDimension {
				return fmt.Errorf("%w: %d workgroups", bindcheck.ErrMismatch, n)
			}
		}
		bound := make(map[uint32]bool, len(cmd.BindGroups))
		for _, bg := range cmd.BindGroups {
			g, ok := a.bindGroups[bg.Group]
			if !ok {
				return fmt.Errorf("%w: bind group %d", ErrInvalidResource, bg.Group)
			}
			if g.pipeline != cmd.Pipeline || g.group != bg.Index {
				return fmt.Errorf("%w: bind group %d at index %d", bindcheck.ErrMismatch, bg.Group, bg.Index)
			}
			bound[bg.Index] = true
		}
		for g := range uint32(len(p.groups)) {
			if _, empty := p.empty[g]; !empty && !bound[g] {
				return fmt.Errorf("%w: no bind group set at index %d", bindcheck.ErrMismatch, g)
			}
		}
		return nil
	case gpucore.CommandCopy:
		src, ok := a.buffers[cmd.Src]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrInvalidResource, cmd.Src)
		}
		dst, ok := a.buffers[cmd.Dst]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrInvalidResource, cmd.Dst)
		}
		if a.maps.State(cmd.Dst) != mapping.StateUnmapped {
			return fmt.Errorf("%w: %q is mapped", bindcheck.ErrUsage, dst.label)
		}
		return bindcheck.Copy(src.check(), dst.check(), cmd.Size)
	}
	return fmt.Errorf("rust: unknown command %s", cmd.Kind)
}

// groupsFor returns one bind group per group index of p for a validated
// dispatch. Caller must hold a.mu.
func (a *Adapter) groupsFor(p *pipeline, cmd gpucore.Command) []*wgpu.BindGroup {
	groups := make([]*wgpu.BindGroup, len(p.groups))
	for i := range groups {
		groups[i] = p.empty[uint32(i)]
	}
	for _, bg := range cmd.BindGroups {
		groups[bg.Index] = a.bindGroups[bg.Group].raw
	}
	return groups
}

// MapRead queues a read mapping; it is served by the next Poll.
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
		return ErrNotInitialized
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
	return a.maps.Begin(id, callback)
}

// Poll serves pending maps. go-webgpu maps synchronously, waiting for the
// queue, so every submission has completed when Poll returns.
func (a *Adapter) Poll(bool) bool {
	for _, id := range a.maps.Pending() {
		a.mu.Lock()
		b, ok := a.buffers[id]
		a.mu.Unlock()
		if !ok {
			continue
		}
		if err := b.raw.MapAsync(a.device, wgpu.MapModeRead, 0, b.size); err != nil {
			logger.Load().Warn("rust: map failed", "label", b.label, "err", err)
			a.maps.Fail(id, gpucore.MapStatusUnknown)
			continue
		}
		data := make([]byte, b.size)
		//nolint:gosec // mapped range covers b.size bytes
		copy(data, unsafe.Slice((*byte)(b.raw.GetMappedRange(0, b.size)), b.size))
		b.raw.Unmap()
		a.maps.Complete(id, data)
	}
	return true
}

// MappedRange returns the mapped contents of a buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) { return a.maps.Range(id) }

// Unmap ends a mapping or cancels a pending one.
func (a *Adapter) Unmap(id gpucore.BufferID) { a.maps.Unmap(id) }

// Destroy releases every resource, the device and the instance.
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

	for id, b := range buffers {
		a.maps.Forget(id)
		b.raw.Release()
	}
	for _, g := range groups {
		g.raw.Release()
	}
	for _, p := range pipelines {
		releasePipeline(p)
	}
	a.queue.Release()
	a.device.Release()
	a.adapter.Release()
	a.instance.Release()
	logger.Load().Debug("rust: adapter destroyed")
}

// gpuInfo retrieves information about the adapter.
func gpuInfo(adapter *wgpu.Adapter) *GPUInfo {
	info, err := adapter.GetInfo()
	if err != nil {
		return nil
	}
	return &GPUInfo{
		Vendor:       info.Vendor,
		Architecture: info.Architecture,
		Device:       info.Device,
		Description:  info.Description,
		BackendType:  backendTypeToString(info.BackendType),
		AdapterType:  adapterTypeToString(info.AdapterType),
		VendorID:     info.VendorID,
		DeviceID:     info.DeviceID,
	}
}

func backendTypeToString(bt wgpu.BackendType) string {
	switch bt {
	case wgpu.BackendTypeD3D12:
		return "D3D12"
	case wgpu.BackendTypeMetal:
		return "Metal"
	case wgpu.BackendTypeVulkan:
		return "Vulkan"
	case wgpu.BackendTypeOpenGL:
		return "OpenGL"
	case wgpu.BackendTypeOpenGLES:
		return "OpenGLES"
	default:
		return "Unknown"
	}
}

func adapterTypeToString(at wgpu.AdapterType) string {
	switch at {
	case wgpu.AdapterTypeDiscreteGPU:
		return "DiscreteGPU"
	case wgpu.AdapterTypeIntegratedGPU:
		return "IntegratedGPU"
	case wgpu.AdapterTypeCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}
