package scenarios

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/compute/backend/software"
)

// Pair is the element type of the pair-doubling shader.
type Pair struct {
	A uint32
	B uint32
}

// Vec4 matches a WGSL vec4<f32>.
type Vec4 struct {
	X, Y, Z, W float32
}

const doublePairsWGSL = `
struct Pair {
    a: u32,
    b: u32,
}

@group(0) @binding(0) var<storage, read> input: array<Pair>;
@group(0) @binding(1) var<storage, read_write> output: array<Pair>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= arrayLength(&input)) {
        return;
    }
    output[i] = Pair(input[i].a * 2u, input[i].b * 2u);
}
`

const generateWGSL = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(64)
fn generate(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= arrayLength(&values)) {
        return;
    }
    values[id.x] = id.x + 1u;
}
`

const squareWGSL = `
@group(0) @binding(0) var<storage, read> values: array<u32>;
@group(0) @binding(1) var<storage, read_write> squares: array<u32>;

@compute @workgroup_size(64)
fn square(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= arrayLength(&values)) {
        return;
    }
    squares[id.x] = values[id.x] * values[id.x];
}
`

const normalizeWGSL = `
struct Params {
    count: u32,
}

@group(0) @binding(0) var<storage, read_write> vectors: array<vec4<f32>>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(64)
fn normalize_main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.count) {
        return;
    }
    let v = vectors[id.x];
    let len = length(v.xyz);
    if (len > 0.0) {
        vectors[id.x] = vec4<f32>(v.xyz / len, v.w);
    }
}
`

const workgroupSize = 64

func init() {
	software.RegisterKernel(doublePairsWGSL, "main", software.Kernel{
		WorkgroupSize: [3]uint32{workgroupSize, 1, 1},
		Invoke: func(inv *software.Invocation) {
			in := software.View[Pair](inv, 0, 0)
			out := software.View[Pair](inv, 0, 1)
			i := int(inv.GlobalID[0])
			if i < len(in) && i < len(out) {
				out[i] = Pair{A: in[i].A * 2, B: in[i].B * 2}
			}
		},
	})
	software.RegisterKernel(generateWGSL, "generate", software.Kernel{
		WorkgroupSize: [3]uint32{workgroupSize, 1, 1},
		Invoke: func(inv *software.Invocation) {
			values := software.View[uint32](inv, 0, 0)
			if i := inv.GlobalID[0]; int(i) < len(values) {
				values[i] = i + 1
			}
		},
	})
	software.RegisterKernel(squareWGSL, "square", software.Kernel{
		WorkgroupSize: [3]uint32{workgroupSize, 1, 1},
		Invoke: func(inv *software.Invocation) {
			values := software.View[uint32](inv, 0, 0)
			squares := software.View[uint32](inv, 0, 1)
			i := int(inv.GlobalID[0])
			if i < len(values) && i < len(squares) {
				squares[i] = values[i] * values[i]
			}
		},
	})
	software.RegisterKernel(normalizeWGSL, "normalize_main", software.Kernel{
		WorkgroupSize: [3]uint32{workgroupSize, 1, 1},
		Invoke: func(inv *software.Invocation) {
			vectors := software.View[Vec4](inv, 0, 0)
			params := software.View[uint32](inv, 1, 0)
			i := inv.GlobalID[0]
			if len(params) == 0 || i >= params[0] || int(i) >= len(vectors) {
				return
			}
			v := &vectors[i]
			if l := math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z); l > 0 {
				v.X, v.Y, v.Z = v.X/l, v.Y/l, v.Z/l
			}
		},
	})
}

// workgroups returns the number of workgroups covering n invocations.
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}
