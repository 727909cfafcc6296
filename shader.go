package compute

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/wgslreflect"
)

// ShaderState is the lifecycle state of a Shader.
type ShaderState int

const (
	// ShaderStateCreated means the pipeline is compiled and nothing is bound.
	ShaderStateCreated ShaderState = iota

	// ShaderStateBound means at least one binding is attached.
	ShaderStateBound

	// ShaderStateExecuted means at least one dispatch has been submitted.
	// An executed shader can be executed again.
	ShaderStateExecuted

	// ShaderStateReleased means the shader has been released.
	ShaderStateReleased
)

// String returns the string representation of ShaderState.
func (s ShaderState) String() string {
	switch s {
	case ShaderStateCreated:
		return "Created"
	case ShaderStateBound:
		return "Bound"
	case ShaderStateExecuted:
		return "Executed"
	case ShaderStateReleased:
		return "Released"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Shader is a compiled compute pipeline and a table of named bindings.
//
// A Shader is safe for concurrent use, but executions that share buffers
// are ordered only by the queue.
type Shader struct {
	ctx        *Context
	label      string
	entryPoint string
	layout     gpucore.ShaderLayout
	pipeline   gpucore.ComputePipelineID

	mu         sync.Mutex
	bindings   map[string]Binding
	state      ShaderState
	executions uint64
}

// NewShader reflects the binding slots of a WGSL compute shader and
// compiles its pipeline. Errors wrap ErrShaderCompile.
func NewShader(c *Context, source, entryPoint string) (*Shader, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	layout, err := wgslreflect.Reflect(source, entryPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	if n := layout.GroupCount(); n > c.Limits().MaxBindGroups {
		return nil, fmt.Errorf("%w: shader uses %d bind groups, device allows %d",
			ErrShaderCompile, n, c.Limits().MaxBindGroups)
	}

	label := c.label(entryPoint)
	pipeline, err := c.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:      label,
		Source:     source,
		EntryPoint: entryPoint,
		Layout:     layout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrShaderCompile, entryPoint, err)
	}

	c.shaderCreated()
	Logger().Debug("compute: shader created",
		"label", label, "slots", len(layout.Entries), "groups", layout.GroupCount())

	return &Shader{
		ctx:        c,
		label:      label,
		entryPoint: entryPoint,
		layout:     layout,
		pipeline:   pipeline,
		bindings:   make(map[string]Binding),
	}, nil
}

// Label returns the shader's debug label.
func (s *Shader) Label() string { return s.label }

// EntryPoint returns the compute entry point name.
func (s *Shader) EntryPoint() string { return s.entryPoint }

// Layout returns the binding slots the shader declares.
func (s *Shader) Layout() gpucore.ShaderLayout { return s.layout }

// State returns the shader's lifecycle state.
func (s *Shader) State() ShaderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Executions returns the number of successful Execute calls.
func (s *Shader) Executions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// Bind stores b under name, replacing (and releasing) any binding already
// stored under that name. The shader retains the bound buffer.
// Bind groups are built lazily by Execute, so no validation against the
// shader's slots happens here.
func (s *Shader) Bind(name string, b Binding) error {
	if b.buffer == nil {
		return fmt.Errorf("bind %q: %w", name, ErrNilBuffer)
	}
	if b.buffer.Released() {
		return fmt.Errorf("bind %q: %w", name, ErrReleased)
	}

	s.mu.Lock()
	if s.state == ShaderStateReleased {
		s.mu.Unlock()
		return fmt.Errorf("bind %q: %w", name, ErrReleased)
	}
	b.buffer.Retain()
	old, replaced := s.bindings[name]
	s.bindings[name] = b
	if s.state == ShaderStateCreated {
		s.state = ShaderStateBound
	}
	s.mu.Unlock()

	if replaced {
		old.buffer.Release()
	}
	return nil
}

// Unbind removes the binding stored under name and releases its buffer.
// It reports whether a binding was removed.
func (s *Shader) Unbind(name string) bool {
	s.mu.Lock()
	old, ok := s.bindings[name]
	delete(s.bindings, name)
	if len(s.bindings) == 0 && s.state == ShaderStateBound {
		s.state = ShaderStateCreated
	}
	s.mu.Unlock()

	if ok {
		old.buffer.Release()
	}
	return ok
}

// Binding returns the binding stored under name.
func (s *Shader) Binding(name string) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[name]
	return b, ok
}

// Names returns the bound names in sorted order.
func (s *Shader) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// namedBinding is a binding together with the name it is stored under.
type namedBinding struct {
	name string
	Binding
}

// groupBindings partitions bindings by group index, each group ordered by
// slot. Two bindings on the same (group, slot) fail with ErrBindingConflict.
func groupBindings(bindings map[string]Binding) (map[uint32][]namedBinding, error) {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make(map[uint32][]namedBinding)
	for _, name := range names {
		b := bindings[name]
		groups[b.group] = append(groups[b.group], namedBinding{name: name, Binding: b})
	}
	for g, list := range groups {
		sort.SliceStable(list, func(i, j int) bool { return list[i].slot < list[j].slot })
		for i := 1; i < len(list); i++ {
			if list[i].slot == list[i-1].slot {
				return nil, fmt.Errorf("%w: %q and %q both at @group(%d) @binding(%d)",
					ErrBindingConflict, list[i-1].name, list[i].name, g, list[i].slot)
			}
		}
	}
	return groups, nil
}

// validate checks grouped bindings against the declared layout.
func (s *Shader) validate(groups map[uint32][]namedBinding) error {
	for g, list := range groups {
		for _, nb := range list {
			decl, ok := s.layout.Lookup(g, nb.slot)
			if !ok {
				return fmt.Errorf("%w: %q at @group(%d) @binding(%d)", ErrUndeclaredBinding, nb.name, g, nb.slot)
			}
			if nb.buffer.alloc == 0 {
				return fmt.Errorf("%w: %q", ErrEmptyBinding, nb.name)
			}
			want := gputypes.BufferUsageStorage
			if decl.Type == gpucore.BindingTypeUniformBuffer {
				want = gputypes.BufferUsageUniform
			}
			if nb.buffer.usage&want == 0 {
				return fmt.Errorf("%w: %q is %s, shader declares %s %q",
					ErrBindingUsage, nb.name, nb.buffer.policy, decl.Type, decl.Name)
			}
		}
	}
	for _, decl := range s.layout.Entries {
		bound := false
		for _, nb := range groups[decl.Group] {
			if nb.slot == decl.Binding {
				bound = true
				break
			}
		}
		if !bound {
			return fmt.Errorf("%w: %q at @group(%d) @binding(%d)", ErrMissingBinding, decl.Name, decl.Group, decl.Binding)
		}
	}
	return nil
}

// Execute dispatches x*y*z workgroups with the current bindings.
//
// Bindings are grouped by bind group index and validated against the slots
// the shader declares; one bind group is built per group, one compute pass
// with one dispatch is recorded, every binding that needs a copy is copied
// back to its staging buffer, and the command buffer is submitted. Results
// are observed by reading a copied buffer. Execute may be called repeatedly.
//
// The caller chooses (x, y, z) so that the workgroups cover the data; zero
// counts dispatch nothing.
func (s *Shader) Execute(x, y, z uint32) error {
	if err := s.ctx.check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ShaderStateReleased {
		return fmt.Errorf("execute %q: %w", s.label, ErrReleased)
	}

	groups, err := groupBindings(s.bindings)
	if err != nil {
		return err
	}
	if err := s.validate(groups); err != nil {
		return err
	}

	indices := make([]uint32, 0, len(groups))
	for g := range groups {
		indices = append(indices, g)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	a := s.ctx.adapter
	created := make([]gpucore.BindGroupID, 0, len(indices))
	defer func() {
		// Transient bind groups; the adapter defers destruction while the
		// submission is in flight.
		for _, id := range created {
			a.DestroyBindGroup(id)
		}
	}()

	for _, g := range indices {
		entries := make([]gpucore.BindGroupEntry, 0, len(groups[g]))
		for _, nb := range groups[g] {
			entries = append(entries, nb.Entry())
		}
		id, err := a.CreateBindGroup(s.pipeline, g, entries)
		if err != nil {
			return fmt.Errorf("%w: @group(%d): %w", ErrBindingValidation, g, err)
		}
		created = append(created, id)
	}

	enc, err := s.ctx.NewCommandEncoder(s.entryPoint)
	if err != nil {
		return err
	}
	if err := s.record(enc, indices, created, groups, x, y, z); err != nil {
		return err
	}
	cb, err := enc.Finish()
	if err != nil {
		return err
	}
	if err := s.ctx.Submit(cb); err != nil {
		return err
	}

	s.state = ShaderStateExecuted
	s.executions++
	Logger().Debug("compute: executed",
		"label", s.label, "workgroups", [3]uint32{x, y, z}, "groups", len(indices))
	return nil
}

// record encodes the dispatch and the copy-backs of one Execute.
func (s *Shader) record(enc *CommandEncoder, indices []uint32, ids []gpucore.BindGroupID,
	groups map[uint32][]namedBinding, x, y, z uint32) error {
	pass, err := enc.BeginComputePass()
	if err != nil {
		return err
	}
	if err := pass.SetPipeline(s); err != nil {
		return err
	}
	for i, g := range indices {
		if err := pass.SetBindGroup(g, ids[i]); err != nil {
			return err
		}
	}
	if err := pass.Dispatch(x, y, z); err != nil {
		return err
	}
	if err := pass.End(); err != nil {
		return err
	}

	copied := make(map[*Buffer]bool)
	for _, g := range indices {
		for _, nb := range groups[g] {
			if !nb.needsCopy || copied[nb.buffer] {
				continue
			}
			copied[nb.buffer] = true
			if err := nb.buffer.CopyToHost(enc); err != nil {
				return err
			}
		}
	}
	return nil
}

// Release drops every binding (releasing their buffers) and destroys the
// pipeline. Release is safe to call multiple times.
func (s *Shader) Release() {
	s.mu.Lock()
	if s.state == ShaderStateReleased {
		s.mu.Unlock()
		return
	}
	s.state = ShaderStateReleased
	bindings := s.bindings
	s.bindings = make(map[string]Binding)
	s.mu.Unlock()

	for _, b := range bindings {
		b.buffer.Release()
	}
	if !s.ctx.closed.Load() {
		s.ctx.adapter.DestroyComputePipeline(s.pipeline)
	}
	s.ctx.shaderReleased()
	Logger().Debug("compute: shader released", "label", s.label)
}
