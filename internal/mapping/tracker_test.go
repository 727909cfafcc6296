package mapping

import (
	"errors"
	"testing"

	"github.com/gogpu/compute/gpucore"
)

// =============================================================================
// State Transitions
// =============================================================================

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUnmapped, "Unmapped"},
		{StatePending, "Pending"},
		{StateMapped, "Mapped"},
		{State(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestTrackerBeginCompleteUnmap(t *testing.T) {
	tr := NewTracker()
	var got []gpucore.MapStatus

	if err := tr.Begin(1, func(s gpucore.MapStatus) { got = append(got, s) }); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if s := tr.State(1); s != StatePending {
		t.Fatalf("State = %v, want Pending", s)
	}
	if _, err := tr.Range(1); !errors.Is(err, ErrMapPending) {
		t.Errorf("Range while pending error = %v, want ErrMapPending", err)
	}

	tr.Complete(1, []byte{1, 2, 3})
	if s := tr.State(1); s != StateMapped {
		t.Fatalf("State = %v, want Mapped", s)
	}
	if len(got) != 1 || got[0] != gpucore.MapStatusSuccess {
		t.Fatalf("callbacks = %v, want [Success]", got)
	}
	data, err := tr.Range(1)
	if err != nil || len(data) != 3 || data[2] != 3 {
		t.Errorf("Range() = %v, %v", data, err)
	}

	tr.Unmap(1)
	if s := tr.State(1); s != StateUnmapped {
		t.Errorf("State after Unmap = %v, want Unmapped", s)
	}
	if _, err := tr.Range(1); !errors.Is(err, ErrNotMapped) {
		t.Errorf("Range after Unmap error = %v, want ErrNotMapped", err)
	}
	if len(got) != 1 {
		t.Errorf("Unmap of a mapped buffer must not invoke the callback again, got %v", got)
	}
}

func TestTrackerBeginTwice(t *testing.T) {
	tr := NewTracker()
	if err := tr.Begin(5, func(gpucore.MapStatus) {}); err != nil {
		t.Fatal(err)
	}
	var second gpucore.MapStatus = -1
	err := tr.Begin(5, func(s gpucore.MapStatus) { second = s })
	if !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("second Begin error = %v, want ErrAlreadyMapped", err)
	}
	if second != gpucore.MapStatusMappingAlreadyPending {
		t.Errorf("second callback status = %v, want MappingAlreadyPending", second)
	}
}

func TestTrackerBeginNilCallback(t *testing.T) {
	if err := NewTracker().Begin(1, nil); !errors.Is(err, ErrCallbackNil) {
		t.Errorf("Begin(nil) error = %v, want ErrCallbackNil", err)
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker()
	var got gpucore.MapStatus = -1
	_ = tr.Begin(2, func(s gpucore.MapStatus) { got = s })

	tr.Fail(2, gpucore.MapStatusDeviceLost)
	if got != gpucore.MapStatusDeviceLost {
		t.Errorf("callback status = %v, want DeviceLost", got)
	}
	if s := tr.State(2); s != StateUnmapped {
		t.Errorf("State after Fail = %v, want Unmapped", s)
	}
	// A failed map can be retried.
	if err := tr.Begin(2, func(gpucore.MapStatus) {}); err != nil {
		t.Errorf("Begin after Fail error = %v", err)
	}
}

func TestTrackerUnmapPendingCancels(t *testing.T) {
	tr := NewTracker()
	var got gpucore.MapStatus = -1
	_ = tr.Begin(3, func(s gpucore.MapStatus) { got = s })

	tr.Unmap(3)
	if got != gpucore.MapStatusUnmappedBeforeCallback {
		t.Errorf("callback status = %v, want UnmappedBeforeCallback", got)
	}
	// Completing a cancelled map is ignored.
	tr.Complete(3, []byte{1})
	if s := tr.State(3); s != StateUnmapped {
		t.Errorf("State = %v, want Unmapped", s)
	}
}

func TestTrackerForgetPending(t *testing.T) {
	tr := NewTracker()
	var got gpucore.MapStatus = -1
	_ = tr.Begin(4, func(s gpucore.MapStatus) { got = s })

	tr.Forget(4)
	if got != gpucore.MapStatusDestroyedBeforeCallback {
		t.Errorf("callback status = %v, want DestroyedBeforeCallback", got)
	}
	tr.Forget(4) // idempotent
}

func TestTrackerPendingAndFailAll(t *testing.T) {
	tr := NewTracker()
	failed := 0
	for _, id := range []gpucore.BufferID{9, 3, 6} {
		_ = tr.Begin(id, func(s gpucore.MapStatus) {
			if s == gpucore.MapStatusDeviceLost {
				failed++
			}
		})
	}
	tr.Complete(6, nil)

	pending := tr.Pending()
	if len(pending) != 2 || pending[0] != 3 || pending[1] != 9 {
		t.Fatalf("Pending() = %v, want [3 9]", pending)
	}

	tr.FailAll(gpucore.MapStatusDeviceLost)
	if failed != 2 {
		t.Errorf("FailAll failed %d maps, want 2", failed)
	}
	if s := tr.State(6); s != StateMapped {
		t.Errorf("mapped buffer State = %v, want Mapped", s)
	}
}

func TestTrackerCallbackMayReenter(t *testing.T) {
	tr := NewTracker()
	var data []byte
	_ = tr.Begin(1, func(s gpucore.MapStatus) {
		if s == gpucore.MapStatusSuccess {
			data, _ = tr.Range(1)
			tr.Unmap(1)
		}
	})
	tr.Complete(1, []byte{42})
	if len(data) != 1 || data[0] != 42 {
		t.Errorf("data read from callback = %v", data)
	}
	if s := tr.State(1); s != StateUnmapped {
		t.Errorf("State = %v, want Unmapped", s)
	}
}
