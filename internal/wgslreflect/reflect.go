// Package wgslreflect extracts binding layouts from WGSL compute shaders
// and compiles them to SPIR-V for HAL devices.
package wgslreflect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/compute/gpucore"
)

// Reflection errors.
var (
	// ErrParse is returned when the source cannot be parsed or lowered.
	ErrParse = errors.New("wgslreflect: invalid shader source")

	// ErrEntryPointNotFound is returned when the entry point is not declared.
	ErrEntryPointNotFound = errors.New("wgslreflect: entry point not found")

	// ErrUnsupportedBinding is returned for bound resources other than buffers.
	ErrUnsupportedBinding = errors.New("wgslreflect: only uniform and storage buffer bindings are supported")

	// ErrDuplicateSlot is returned when two globals share a (group, binding) pair.
	ErrDuplicateSlot = errors.New("wgslreflect: duplicate binding slot")
)

// Reflect parses WGSL source and returns the buffer slots the entry point
// uses, directly or through the functions it calls. Slots declared in the
// module but used only by other entry points are left out. Entries are
// ordered by group, then binding.
func Reflect(source, entryPoint string) (gpucore.ShaderLayout, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return gpucore.ShaderLayout{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	module, err := naga.Lower(ast)
	if err != nil {
		return gpucore.ShaderLayout{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var entry *ir.EntryPoint
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Name == entryPoint {
			entry = &module.EntryPoints[i]
			break
		}
	}
	if entry == nil {
		return gpucore.ShaderLayout{}, fmt.Errorf("%w: %q", ErrEntryPointNotFound, entryPoint)
	}
	used := usedGlobals(module, &entry.Function)

	var layout gpucore.ShaderLayout
	seen := make(map[[2]uint32]string)
	for i, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		if _, ok := used[ir.GlobalVariableHandle(i)]; !ok {
			continue
		}
		var kind gpucore.BindingType
		switch gv.Space {
		case ir.SpaceUniform:
			kind = gpucore.BindingTypeUniformBuffer
		case ir.SpaceStorage:
			kind = gpucore.BindingTypeStorageBuffer
		default:
			return gpucore.ShaderLayout{}, fmt.Errorf("%w: %q at @group(%d) @binding(%d)",
				ErrUnsupportedBinding, gv.Name, gv.Binding.Group, gv.Binding.Binding)
		}

		slot := [2]uint32{gv.Binding.Group, gv.Binding.Binding}
		if prev, ok := seen[slot]; ok {
			return gpucore.ShaderLayout{}, fmt.Errorf("%w: %q and %q at @group(%d) @binding(%d)",
				ErrDuplicateSlot, prev, gv.Name, slot[0], slot[1])
		}
		seen[slot] = gv.Name

		layout.Entries = append(layout.Entries, gpucore.LayoutEntry{
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Name:    gv.Name,
			Type:    kind,
		})
	}

	sort.Slice(layout.Entries, func(i, j int) bool {
		a, b := layout.Entries[i], layout.Entries[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})
	return layout, nil
}

// usedGlobals returns the globals fn references, including those reached
// through called functions.
func usedGlobals(module *ir.Module, fn *ir.Function) map[ir.GlobalVariableHandle]struct{} {
	globals := make(map[ir.GlobalVariableHandle]struct{})
	visited := make(map[ir.FunctionHandle]struct{})
	collectGlobals(module, fn, globals, visited)
	return globals
}

func collectGlobals(module *ir.Module, fn *ir.Function,
	globals map[ir.GlobalVariableHandle]struct{}, visited map[ir.FunctionHandle]struct{}) {
	for _, expr := range fn.Expressions {
		if gv, ok := expr.Kind.(ir.ExprGlobalVariable); ok {
			globals[gv.Variable] = struct{}{}
		}
	}
	walkCalls(fn.Body, func(h ir.FunctionHandle) {
		if _, ok := visited[h]; ok {
			return
		}
		visited[h] = struct{}{}
		if int(h) < len(module.Functions) {
			collectGlobals(module, &module.Functions[h], globals, visited)
		}
	})
}

// walkCalls calls visit for every function call in block and its nested blocks.
func walkCalls(block ir.Block, visit func(ir.FunctionHandle)) {
	for _, stmt := range block {
		switch k := stmt.Kind.(type) {
		case ir.StmtCall:
			visit(k.Function)
		case ir.StmtIf:
			walkCalls(k.Accept, visit)
			walkCalls(k.Reject, visit)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				walkCalls(c.Body, visit)
			}
		case ir.StmtLoop:
			walkCalls(k.Body, visit)
			walkCalls(k.Continuing, visit)
		case ir.StmtBlock:
			walkCalls(k.Block, visit)
		}
	}
}

// CompileSPIRV compiles WGSL source to SPIR-V words.
func CompileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
