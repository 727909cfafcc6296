// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native runs compute dispatches on a GPU through the Pure Go
// gogpu/wgpu hardware abstraction layer.
//
// Importing the package registers the "native" backend:
//
//	import _ "github.com/gogpu/compute/backend/native"
//
// The adapter opens a Vulkan device of its own, or runs on a device shared
// by the host application:
//
//	a, err := native.NewFromProvider(provider) // gpucontext.DeviceProvider
//	ctx, err := compute.NewContext(compute.WithAdapter(a))
//
// WGSL is compiled to SPIR-V with naga. Bind group and pipeline layouts are
// created explicitly from the reflected binding slots, and groups the shader
// skips are filled with empty bind groups at dispatch.
//
// The HAL queue reports completion by submission index. Poll compares that
// index with the last submission that touched each resource: pending maps
// complete once their buffer is idle, and destroyed resources are released
// once the GPU is done with them.
package native
