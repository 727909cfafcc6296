// Package software provides the CPU reference backend.
//
// The software adapter runs compute dispatches on the host. WGSL cannot be
// executed directly, so every shader source/entry point pair used with this
// backend must have a Go [Kernel] registered with [RegisterKernel]:
//
//	software.RegisterKernel(doubleWGSL, "main", software.Kernel{
//	    WorkgroupSize: [3]uint32{64, 1, 1},
//	    Invoke: func(inv *software.Invocation) {
//	        data := software.View[uint32](inv, 0, 0)
//	        if i := inv.GlobalID[0]; int(i) < len(data) {
//	            data[i] *= 2
//	        }
//	    },
//	})
//
// Workgroups of a dispatch run in parallel on an internal worker pool;
// invocations within a workgroup run sequentially. Submitted command lists
// execute when the adapter is polled, which keeps the map/poll handshake
// identical to GPU backends.
//
// The backend registers itself as "software" on import.
package software
