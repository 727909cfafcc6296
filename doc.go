// Package compute runs WGSL compute shaders and reads their results back.
//
// # Overview
//
// compute is a small dispatch engine over a GPU device and queue. Callers
// declare typed buffers, attach them to the binding slots a shader declares,
// dispatch a grid of workgroups and read results back on the host. Devices are
// reached through the [gpucore.Adapter] contract, so the same code runs on the
// Pure Go HAL backend, on wgpu-native, or on the CPU reference backend.
//
// # Quick Start
//
//	import "github.com/gogpu/compute"
//
//	ctx, err := compute.NewContext()
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	input, _ := compute.CreateStorageBufferWithData(ctx, []Pair{{1, 1}, {2, 2}})
//	output, _ := compute.CreateStorageBuffer[Pair](ctx, 2)
//	defer input.Release()
//	defer output.Release()
//
//	shader, _ := ctx.CreateShader(doubleWGSL, "main")
//	defer shader.Release()
//	_ = shader.Bind("input", input.ToBinding(0, 0).NoCopy())
//	_ = shader.Bind("output", output.ToBinding(0, 1))
//
//	if err := shader.Execute(2, 1, 1); err != nil {
//	    return err
//	}
//	pairs, ok := compute.Read[Pair](context.Background(), output)
//
// # Buffers
//
// Every [Buffer] owns two device resources of the same size: a device buffer
// that shaders read and write, and a host staging buffer used only for
// readback. Buffers are reference counted; a [Shader] holds a reference for
// each buffer bound to it, and the last [Buffer.Release] destroys both
// resources.
//
// The usage flags of the device buffer come from a [Policy]: a storage class
// (general storage or uniform) combined with an access direction.
//
// # Execution
//
// [Shader.Execute] groups the bound [Binding]s by bind group index, validates
// them against the slots the shader source declares, records one compute
// pass with one dispatch, records a device-to-host copy for every binding
// that needs one, and submits. Execution is asynchronous: results are
// observed by [Read] or [Buffer.ReadBytes], which drive the device's poll
// loop until the host mapping completes.
//
// # Ordering
//
// All work goes through one queue, so a shader that consumes a buffer written
// by an earlier Execute sees that write. The engine inserts no other
// synchronization and performs no read/write conflict detection.
package compute

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
