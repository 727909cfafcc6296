package compute

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// ComputePassState represents the state of a compute pass.
type ComputePassState int

const (
	// ComputePassStateRecording means the pass is actively recording commands.
	ComputePassStateRecording ComputePassState = iota

	// ComputePassStateEnded means the pass has been ended.
	ComputePassStateEnded
)

// String returns the string representation of ComputePassState.
func (s ComputePassState) String() string {
	switch s {
	case ComputePassStateRecording:
		return "Recording"
	case ComputePassStateEnded:
		return "Ended"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ComputePass records dispatches within a compute pass.
//
// Thread Safety:
// ComputePass is NOT safe for concurrent use. The pass must be ended with
// End() before the parent command encoder can continue recording.
//
// State Machine:
//
//	Recording -> End() -> Ended
type ComputePass struct {
	mu sync.Mutex

	encoder *CommandEncoder
	state   ComputePassState

	pipeline *Shader
	groups   map[uint32]gpucore.BindGroupID
	cmds     []gpucore.Command

	dispatchCount uint32
}

// State returns the current pass state.
func (p *ComputePass) State() ComputePassState {
	if p == nil {
		return ComputePassStateEnded
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsEnded returns true if the pass has been ended.
func (p *ComputePass) IsEnded() bool {
	return p.State() == ComputePassStateEnded
}

// DispatchCount returns the number of dispatches recorded so far.
func (p *ComputePass) DispatchCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatchCount
}

// checkRecording returns an error if the pass is not in Recording state.
// The caller must hold p.mu.
func (p *ComputePass) checkRecording() error {
	if p.state != ComputePassStateRecording {
		return ErrComputePassEnded
	}
	return nil
}

// SetPipeline sets the shader whose pipeline subsequent dispatches run.
func (p *ComputePass) SetPipeline(s *Shader) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("set pipeline: %w", err)
	}
	if s == nil || s.pipeline == gpucore.InvalidID {
		return ErrNilComputePipeline
	}
	p.pipeline = s
	return nil
}

// SetBindGroup binds a bind group at the given index for subsequent dispatches.
func (p *ComputePass) SetBindGroup(index uint32, group gpucore.BindGroupID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("set bind group: %w", err)
	}
	if limit := p.encoder.ctx.Limits().MaxBindGroups; index >= limit {
		return fmt.Errorf("%w: index %d, limit %d", ErrComputeBindGroupIndexOutOfRange, index, limit)
	}
	if group == gpucore.InvalidID {
		return ErrNilComputeBindGroup
	}
	p.groups[index] = group
	return nil
}

// Dispatch dispatches x*y*z workgroups of the current pipeline.
//
// Note: WebGPU allows zero workgroups (no-op dispatch), so zero counts are
// recorded rather than rejected.
func (p *ComputePass) Dispatch(x, y, z uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if p.pipeline == nil {
		return ErrNoPipeline
	}

	bound := make([]gpucore.BoundGroup, 0, len(p.groups))
	for index, id := range p.groups {
		bound = append(bound, gpucore.BoundGroup{Index: index, Group: id})
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].Index < bound[j].Index })

	var list gpucore.CommandList
	list.Dispatch(p.pipeline.pipeline, bound, x, y, z)
	p.cmds = append(p.cmds, list.Commands...)
	p.dispatchCount++
	return nil
}

// End completes the compute pass and unlocks the parent encoder.
func (p *ComputePass) End() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	p.state = ComputePassStateEnded
	return p.encoder.endComputePass(p, p.cmds)
}
