package compute

import (
	"github.com/gogpu/compute/backend/software"
)

// Pair is the element type of the pair-doubling shader.
type Pair struct {
	A uint32
	B uint32
}

const doublePairsWGSL = `
struct Pair {
    a: u32,
    b: u32,
}

@group(0) @binding(0) var<storage, read> input: array<Pair>;
@group(0) @binding(1) var<storage, read_write> output: array<Pair>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    output[i] = Pair(input[i].a * 2u, input[i].b * 2u);
}
`

const copyWGSL = `
@group(0) @binding(0) var<storage, read> src: array<u32>;
@group(0) @binding(1) var<storage, read_write> dst: array<u32>;

@compute @workgroup_size(8)
fn copy_main(@builtin(global_invocation_id) id: vec3<u32>) {
    dst[id.x] = src[id.x];
}
`

const scaleWGSL = `
struct Params {
    factor: u32,
}

@group(0) @binding(0) var<storage, read_write> data: array<u32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(1)
fn scale(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * params.factor;
}
`

// sixSlotWGSL reads five scalars spread across two groups and writes a
// positional sum, so any slot mix-up changes the result.
const sixSlotWGSL = `
@group(0) @binding(0) var<storage, read> g0s0: array<u32>;
@group(0) @binding(1) var<storage, read> g0s1: array<u32>;
@group(0) @binding(2) var<storage, read> g0s2: array<u32>;
@group(1) @binding(0) var<storage, read> g1s0: array<u32>;
@group(1) @binding(1) var<storage, read> g1s1: array<u32>;
@group(1) @binding(2) var<storage, read_write> out: array<u32>;

@compute @workgroup_size(1)
fn combine() {
    out[0] = g0s0[0] + g0s1[0] * 10u + g0s2[0] * 100u + g1s0[0] * 1000u + g1s1[0] * 10000u;
}
`

const generateWGSL = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(4)
fn generate(@builtin(global_invocation_id) id: vec3<u32>) {
    values[id.x] = id.x + 1u;
}
`

const squareWGSL = `
@group(0) @binding(0) var<storage, read> values: array<u32>;
@group(0) @binding(1) var<storage, read_write> squares: array<u32>;

@compute @workgroup_size(4)
fn square(@builtin(global_invocation_id) id: vec3<u32>) {
    squares[id.x] = values[id.x] * values[id.x];
}
`

// twoEntryWGSL holds two entry points over disjoint slots. incrementA reaches
// its buffer only through a helper function.
const twoEntryWGSL = `
@group(0) @binding(0) var<storage, read_write> a: array<u32>;
@group(0) @binding(1) var<storage, read_write> b: array<u32>;

fn bump_a(i: u32) {
    a[i] = a[i] + 1u;
}

@compute @workgroup_size(1)
fn increment_a(@builtin(global_invocation_id) id: vec3<u32>) {
    bump_a(id.x);
}

@compute @workgroup_size(1)
fn increment_b(@builtin(global_invocation_id) id: vec3<u32>) {
    b[id.x] = b[id.x] + 1u;
}
`

func inRange[T any](s []T, i uint32) bool { return int(i) < len(s) }

func init() {
	software.RegisterKernel(doublePairsWGSL, "main", software.Kernel{
		WorkgroupSize: [3]uint32{1, 1, 1},
		Invoke: func(inv *software.Invocation) {
			in := software.View[Pair](inv, 0, 0)
			out := software.View[Pair](inv, 0, 1)
			if i := inv.GlobalID[0]; inRange(in, i) && inRange(out, i) {
				out[i] = Pair{A: in[i].A * 2, B: in[i].B * 2}
			}
		},
	})
	software.RegisterKernel(copyWGSL, "copy_main", software.Kernel{
		WorkgroupSize: [3]uint32{8, 1, 1},
		Invoke: func(inv *software.Invocation) {
			src := software.View[uint32](inv, 0, 0)
			dst := software.View[uint32](inv, 0, 1)
			if i := inv.GlobalID[0]; inRange(src, i) && inRange(dst, i) {
				dst[i] = src[i]
			}
		},
	})
	software.RegisterKernel(scaleWGSL, "scale", software.Kernel{
		WorkgroupSize: [3]uint32{1, 1, 1},
		Invoke: func(inv *software.Invocation) {
			data := software.View[uint32](inv, 0, 0)
			params := software.View[uint32](inv, 1, 0)
			if i := inv.GlobalID[0]; inRange(data, i) && len(params) > 0 {
				data[i] *= params[0]
			}
		},
	})
	software.RegisterKernel(sixSlotWGSL, "combine", software.Kernel{
		WorkgroupSize: [3]uint32{1, 1, 1},
		Invoke: func(inv *software.Invocation) {
			at := func(group, binding uint32) uint32 { return software.View[uint32](inv, group, binding)[0] }
			out := software.View[uint32](inv, 1, 2)
			out[0] = at(0, 0) + at(0, 1)*10 + at(0, 2)*100 + at(1, 0)*1000 + at(1, 1)*10000
		},
	})
	software.RegisterKernel(generateWGSL, "generate", software.Kernel{
		WorkgroupSize: [3]uint32{4, 1, 1},
		Invoke: func(inv *software.Invocation) {
			values := software.View[uint32](inv, 0, 0)
			if i := inv.GlobalID[0]; inRange(values, i) {
				values[i] = i + 1
			}
		},
	})
	software.RegisterKernel(squareWGSL, "square", software.Kernel{
		WorkgroupSize: [3]uint32{4, 1, 1},
		Invoke: func(inv *software.Invocation) {
			values := software.View[uint32](inv, 0, 0)
			squares := software.View[uint32](inv, 0, 1)
			if i := inv.GlobalID[0]; inRange(values, i) && inRange(squares, i) {
				squares[i] = values[i] * values[i]
			}
		},
	})
	software.RegisterKernel(twoEntryWGSL, "increment_a", software.Kernel{
		WorkgroupSize: [3]uint32{1, 1, 1},
		Invoke: func(inv *software.Invocation) {
			a := software.View[uint32](inv, 0, 0)
			if i := inv.GlobalID[0]; inRange(a, i) {
				a[i]++
			}
		},
	})
	software.RegisterKernel(twoEntryWGSL, "increment_b", software.Kernel{
		WorkgroupSize: [3]uint32{1, 1, 1},
		Invoke: func(inv *software.Invocation) {
			b := software.View[uint32](inv, 0, 1)
			if i := inv.GlobalID[0]; inRange(b, i) {
				b[i]++
			}
		},
	})
}
