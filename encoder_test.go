package compute

import (
	"errors"
	"testing"

	"github.com/gogpu/compute/gpucore"
)

// =============================================================================
// CommandEncoder
// =============================================================================

func newEncoderTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(WithBackend("software"), WithLabelPrefix("enc"))
	if err != nil {
		t.Fatalf("NewContext() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCommandEncoder_StateMachine(t *testing.T) {
	c := newEncoderTestContext(t)

	enc, err := c.NewCommandEncoder("frame")
	if err != nil {
		t.Fatalf("NewCommandEncoder() = %v", err)
	}
	if enc.Label() != "enc/frame" {
		t.Errorf("Label() = %q, want %q", enc.Label(), "enc/frame")
	}
	if enc.State() != EncoderStateRecording {
		t.Fatalf("initial state = %v, want Recording", enc.State())
	}

	pass, err := enc.BeginComputePass()
	if err != nil {
		t.Fatalf("BeginComputePass() = %v", err)
	}
	if enc.State() != EncoderStateLocked {
		t.Errorf("state during pass = %v, want Locked", enc.State())
	}

	// Locked encoders reject everything but the pass.
	if _, err := enc.BeginComputePass(); !errors.Is(err, ErrEncoderLocked) {
		t.Errorf("nested BeginComputePass() = %v, want ErrEncoderLocked", err)
	}
	if _, err := enc.Finish(); !errors.Is(err, ErrEncoderLocked) {
		t.Errorf("Finish() during pass = %v, want ErrEncoderLocked", err)
	}
	if err := enc.copyBufferToBuffer(1, 2, 4); !errors.Is(err, ErrEncoderLocked) {
		t.Errorf("copy during pass = %v, want ErrEncoderLocked", err)
	}

	if err := pass.End(); err != nil {
		t.Fatalf("End() = %v", err)
	}
	if enc.State() != EncoderStateRecording {
		t.Errorf("state after End = %v, want Recording", enc.State())
	}

	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	if enc.State() != EncoderStateFinished {
		t.Errorf("state after Finish = %v, want Finished", enc.State())
	}
	if _, err := enc.Finish(); !errors.Is(err, ErrEncoderFinished) {
		t.Errorf("second Finish() = %v, want ErrEncoderFinished", err)
	}
	if cb.Label() != "enc/frame" || cb.Len() != 0 {
		t.Errorf("command buffer = %q/%d, want enc/frame/0", cb.Label(), cb.Len())
	}
}

func TestCommandEncoder_Copy(t *testing.T) {
	c := newEncoderTestContext(t)

	tests := []struct {
		name    string
		size    uint64
		wantErr error
		wantLen int
	}{
		{"aligned", 16, nil, 1},
		{"zero is a no-op", 0, nil, 0},
		{"unaligned", 6, ErrCopySizeNotAligned, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, _ := c.NewCommandEncoder(tt.name)
			err := enc.copyBufferToBuffer(1, 2, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("copyBufferToBuffer() = %v, want %v", err, tt.wantErr)
			}
			cb, _ := enc.Finish()
			if cb.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", cb.Len(), tt.wantLen)
			}
		})
	}
}

func TestCommandBuffer_SubmitOnce(t *testing.T) {
	c := newEncoderTestContext(t)

	enc, _ := c.NewCommandEncoder("once")
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	if err := c.Submit(cb); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if err := c.Submit(cb); !errors.Is(err, ErrEncoderConsumed) {
		t.Errorf("second Submit() = %v, want ErrEncoderConsumed", err)
	}
	if err := c.Submit(nil); !errors.Is(err, ErrEncoderConsumed) {
		t.Errorf("Submit(nil) = %v, want ErrEncoderConsumed", err)
	}
	if got := c.Stats().Submissions; got != 1 {
		t.Errorf("Submissions = %d, want 1", got)
	}
}

// =============================================================================
// ComputePass
// =============================================================================

func TestComputePass_Recording(t *testing.T) {
	c := newEncoderTestContext(t)

	shader, err := c.CreateShader(copyWGSL, "copy_main")
	if err != nil {
		t.Fatalf("CreateShader() = %v", err)
	}
	defer shader.Release()

	enc, _ := c.NewCommandEncoder("pass")
	pass, _ := enc.BeginComputePass()

	if err := pass.Dispatch(1, 1, 1); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Dispatch() without pipeline = %v, want ErrNoPipeline", err)
	}
	if err := pass.SetPipeline(nil); !errors.Is(err, ErrNilComputePipeline) {
		t.Errorf("SetPipeline(nil) = %v, want ErrNilComputePipeline", err)
	}
	if err := pass.SetPipeline(shader); err != nil {
		t.Fatalf("SetPipeline() = %v", err)
	}
	if err := pass.SetBindGroup(0, gpucore.InvalidID); !errors.Is(err, ErrNilComputeBindGroup) {
		t.Errorf("SetBindGroup(invalid) = %v, want ErrNilComputeBindGroup", err)
	}
	limit := c.Limits().MaxBindGroups
	if err := pass.SetBindGroup(limit, 7); !errors.Is(err, ErrComputeBindGroupIndexOutOfRange) {
		t.Errorf("SetBindGroup(limit) = %v, want ErrComputeBindGroupIndexOutOfRange", err)
	}
	if err := pass.SetBindGroup(1, 9); err != nil {
		t.Fatalf("SetBindGroup(1) = %v", err)
	}
	if err := pass.SetBindGroup(0, 8); err != nil {
		t.Fatalf("SetBindGroup(0) = %v", err)
	}
	if err := pass.Dispatch(2, 1, 1); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if err := pass.Dispatch(0, 0, 0); err != nil {
		t.Fatalf("Dispatch(0,0,0) = %v", err)
	}
	if pass.DispatchCount() != 2 {
		t.Errorf("DispatchCount() = %d, want 2", pass.DispatchCount())
	}
	if err := pass.End(); err != nil {
		t.Fatalf("End() = %v", err)
	}
	if !pass.IsEnded() {
		t.Error("IsEnded() = false after End")
	}
	if err := pass.End(); !errors.Is(err, ErrComputePassEnded) {
		t.Errorf("second End() = %v, want ErrComputePassEnded", err)
	}
	if err := pass.Dispatch(1, 1, 1); !errors.Is(err, ErrComputePassEnded) {
		t.Errorf("Dispatch() after End = %v, want ErrComputePassEnded", err)
	}

	if len(enc.list.Commands) != 2 {
		t.Fatalf("recorded %d commands, want 2", len(enc.list.Commands))
	}
	cmd := enc.list.Commands[0]
	if cmd.Kind != gpucore.CommandDispatch || cmd.Workgroups != [3]uint32{2, 1, 1} {
		t.Errorf("command = %+v", cmd)
	}
	if len(cmd.BindGroups) != 2 || cmd.BindGroups[0].Index != 0 || cmd.BindGroups[1].Index != 1 {
		t.Errorf("bind groups not ordered by index: %+v", cmd.BindGroups)
	}
}

func TestComputePass_NilState(t *testing.T) {
	var p *ComputePass
	if p.State() != ComputePassStateEnded {
		t.Errorf("nil pass State() = %v, want Ended", p.State())
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{EncoderStateRecording.String(), "Recording"},
		{EncoderStateLocked.String(), "Locked"},
		{EncoderStateFinished.String(), "Finished"},
		{EncoderState(42).String(), "Unknown(42)"},
		{ComputePassStateRecording.String(), "Recording"},
		{ComputePassStateEnded.String(), "Ended"},
		{ShaderStateCreated.String(), "Created"},
		{ShaderStateBound.String(), "Bound"},
		{ShaderStateExecuted.String(), "Executed"},
		{ShaderStateReleased.String(), "Released"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
