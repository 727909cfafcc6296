package gpucore

import "fmt"

// CommandKind identifies a recorded command.
type CommandKind uint8

const (
	// CommandDispatch runs one compute dispatch.
	CommandDispatch CommandKind = iota + 1

	// CommandCopy copies bytes between two buffers.
	CommandCopy
)

// String returns the string representation of CommandKind.
func (k CommandKind) String() string {
	switch k {
	case CommandDispatch:
		return "Dispatch"
	case CommandCopy:
		return "Copy"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// BoundGroup is a bind group set at a group index for a dispatch.
type BoundGroup struct {
	Index uint32
	Group BindGroupID
}

// Command is one recorded operation. Only the fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// Dispatch fields.
	Pipeline   ComputePipelineID
	BindGroups []BoundGroup
	Workgroups [3]uint32

	// Copy fields. Offsets are zero; the whole range [0, Size) is copied.
	Src  BufferID
	Dst  BufferID
	Size uint64
}

// CommandList is an ordered sequence of commands submitted together.
type CommandList struct {
	Label    string
	Commands []Command
}

// Dispatch appends a dispatch command.
func (l *CommandList) Dispatch(pipeline ComputePipelineID, groups []BoundGroup, x, y, z uint32) {
	l.Commands = append(l.Commands, Command{
		Kind:       CommandDispatch,
		Pipeline:   pipeline,
		BindGroups: groups,
		Workgroups: [3]uint32{x, y, z},
	})
}

// Copy appends a whole-range buffer copy.
func (l *CommandList) Copy(src, dst BufferID, size uint64) {
	l.Commands = append(l.Commands, Command{
		Kind: CommandCopy,
		Src:  src,
		Dst:  dst,
		Size: size,
	})
}

// Len returns the number of recorded commands.
func (l *CommandList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Commands)
}
