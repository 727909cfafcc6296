package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// EncoderState is the state of a CommandEncoder.
type EncoderState int

const (
	// EncoderStateRecording means the encoder accepts commands.
	EncoderStateRecording EncoderState = iota

	// EncoderStateLocked means a compute pass is in progress.
	EncoderStateLocked

	// EncoderStateFinished means Finish has been called.
	EncoderStateFinished
)

// String returns the string representation of EncoderState.
func (s EncoderState) String() string {
	switch s {
	case EncoderStateRecording:
		return "Recording"
	case EncoderStateLocked:
		return "Locked"
	case EncoderStateFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CommandEncoder records commands for later submission to the queue.
//
// CommandEncoder follows the WebGPU command encoding pattern:
//  1. Create encoder via Context.NewCommandEncoder()
//  2. Record commands (compute passes, buffer copies)
//  3. Call Finish() to get a CommandBuffer
//  4. Submit the CommandBuffer with Context.Submit()
//
// State machine:
//
//	Recording -> BeginComputePass -> Locked
//	Locked    -> ComputePass.End  -> Recording
//	Recording -> Finish()         -> Finished
//
// CommandEncoder is NOT safe for concurrent use. Each encoder should
// be used from a single goroutine.
type CommandEncoder struct {
	mu sync.Mutex

	ctx   *Context
	list  gpucore.CommandList
	state EncoderState

	// activePass tracks the currently active compute pass (if any).
	activePass *ComputePass
}

// CommandBuffer is a finished command sequence ready for submission.
// A CommandBuffer can be submitted once.
type CommandBuffer struct {
	mu       sync.Mutex
	list     *gpucore.CommandList
	consumed bool
}

// NewCommandEncoder creates an encoder in the Recording state.
func (c *Context) NewCommandEncoder(label string) (*CommandEncoder, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return &CommandEncoder{
		ctx:  c,
		list: gpucore.CommandList{Label: c.label(label)},
	}, nil
}

// Label returns the encoder's debug label.
func (e *CommandEncoder) Label() string {
	return e.list.Label
}

// State returns the current encoder state.
func (e *CommandEncoder) State() EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// checkRecordingLocked returns an error if the encoder is not in Recording state.
// The caller must hold e.mu.
func (e *CommandEncoder) checkRecordingLocked() error {
	switch e.state {
	case EncoderStateRecording:
		return nil
	case EncoderStateLocked:
		return ErrEncoderLocked
	default:
		return ErrEncoderFinished
	}
}

// BeginComputePass starts a compute pass. The encoder is locked until the
// pass is ended.
func (e *CommandEncoder) BeginComputePass() (*ComputePass, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRecordingLocked(); err != nil {
		return nil, fmt.Errorf("begin compute pass: %w", err)
	}

	pass := &ComputePass{
		encoder: e,
		groups:  make(map[uint32]gpucore.BindGroupID),
	}
	e.activePass = pass
	e.state = EncoderStateLocked
	return pass, nil
}

// endComputePass is called by ComputePass.End and appends the pass's
// dispatches to the command list.
func (e *CommandEncoder) endComputePass(pass *ComputePass, cmds []gpucore.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activePass != pass {
		return fmt.Errorf("end compute pass: %w", ErrComputePassEnded)
	}
	e.list.Commands = append(e.list.Commands, cmds...)
	e.activePass = nil
	e.state = EncoderStateRecording
	return nil
}

// copyBufferToBuffer records a whole-range copy of size bytes.
func (e *CommandEncoder) copyBufferToBuffer(src, dst gpucore.BufferID, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRecordingLocked(); err != nil {
		return fmt.Errorf("copy buffer: %w", err)
	}
	if size%4 != 0 {
		return fmt.Errorf("%w: size %d", ErrCopySizeNotAligned, size)
	}
	if size == 0 {
		return nil
	}
	e.list.Copy(src, dst, size)
	return nil
}

// Finish completes recording and returns a command buffer.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRecordingLocked(); err != nil {
		return nil, fmt.Errorf("finish: %w", err)
	}
	e.state = EncoderStateFinished

	list := e.list
	return &CommandBuffer{list: &list}, nil
}

// Label returns the command buffer's debug label.
func (cb *CommandBuffer) Label() string {
	if cb == nil || cb.list == nil {
		return ""
	}
	return cb.list.Label
}

// Len returns the number of recorded commands.
func (cb *CommandBuffer) Len() int {
	if cb == nil {
		return 0
	}
	return cb.list.Len()
}

func (cb *CommandBuffer) consume() (*gpucore.CommandList, error) {
	if cb == nil {
		return nil, fmt.Errorf("submit: %w", ErrEncoderConsumed)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.consumed {
		return nil, fmt.Errorf("submit: %w", ErrEncoderConsumed)
	}
	cb.consumed = true
	return cb.list, nil
}
