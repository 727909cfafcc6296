// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan HAL backend

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
)

// init registers the native backend on package import.
func init() {
	backend.Register(backend.BackendNative, func() (gpucore.Adapter, error) {
		return New()
	})
}

// New opens a Vulkan device and returns an adapter that owns it.
// Discrete and integrated GPUs are preferred over software adapters.
func New() (*Adapter, error) {
	return Open(gputypes.BackendVulkan)
}

// Open opens a device on the given HAL backend variant. The backend package
// must be imported for the variant to be registered.
func Open(variant gputypes.Backend) (*Adapter, error) {
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend not registered", ErrNoGPU, variant)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := gputypes.DefaultLimits()
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	a := newAdapter(open.Device, open.Queue, selected.Info, limits)
	a.instance = instance
	slogger().Info("native: device opened",
		"adapter", selected.Info.Name, "type", selected.Info.DeviceType, "backend", variant)
	return a, nil
}

// NewFromDevice wraps a device and queue owned by the caller. The device is
// not destroyed when the adapter is.
func NewFromDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits) *Adapter {
	a := newAdapter(device, queue, gputypes.AdapterInfo{}, limits)
	a.shared = true
	return a
}

// NewFromProvider runs on the device of a host application. The provider
// must expose its HAL device and queue through HalDevice and HalQueue, as
// gogpu windows do.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProviderNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderNotHAL)
	}

	a := NewFromDevice(device, queue, gputypes.DefaultLimits())
	info := provider.AdapterInfo()
	a.info = gputypes.AdapterInfo{Name: info.Name}
	slogger().Info("native: using shared device", "adapter", info.Name)
	return a, nil
}
