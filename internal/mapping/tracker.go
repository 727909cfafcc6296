// Package mapping tracks host mappings of readback buffers.
//
// Adapters whose backend has no native asynchronous map API use a Tracker to
// provide the map/poll handshake: MapRead moves a buffer to Pending, the
// adapter's poll step completes or fails it, and the mapped bytes stay
// readable until Unmap.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// Mapping errors.
var (
	// ErrAlreadyMapped is returned when mapping a buffer that is already mapped or pending.
	ErrAlreadyMapped = errors.New("mapping: buffer is already mapped or mapping is pending")

	// ErrNotMapped is returned when accessing the range of an unmapped buffer.
	ErrNotMapped = errors.New("mapping: buffer is not mapped")

	// ErrMapPending is returned when accessing the range of a buffer whose map is pending.
	ErrMapPending = errors.New("mapping: buffer mapping is pending")

	// ErrCallbackNil is returned when Begin is called with a nil callback.
	ErrCallbackNil = errors.New("mapping: map callback is nil")
)

// State represents the mapping state of a buffer.
type State int

const (
	// StateUnmapped means the buffer is not mapped.
	StateUnmapped State = iota
	// StatePending means a map operation is pending.
	StatePending
	// StateMapped means the buffer is mapped.
	StateMapped
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateUnmapped:
		return "Unmapped"
	case StatePending:
		return "Pending"
	case StateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type entry struct {
	state    State
	callback func(gpucore.MapStatus)
	data     []byte
}

// Tracker holds the map state of every buffer with an active mapping.
// Buffers without an entry are Unmapped.
//
// Tracker is safe for concurrent use. Callbacks are always invoked without
// the internal lock held, so they may call back into the Tracker.
type Tracker struct {
	mu      sync.Mutex
	entries map[gpucore.BufferID]*entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[gpucore.BufferID]*entry)}
}

// State returns the mapping state of id.
func (t *Tracker) State(id gpucore.BufferID) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e.state
	}
	return StateUnmapped
}

// Begin transitions id from Unmapped to Pending.
//
// If the buffer is already mapped or pending, the callback is invoked with
// MapStatusMappingAlreadyPending and ErrAlreadyMapped is returned.
func (t *Tracker) Begin(id gpucore.BufferID, callback func(gpucore.MapStatus)) error {
	if callback == nil {
		return ErrCallbackNil
	}

	t.mu.Lock()
	if _, ok := t.entries[id]; ok {
		t.mu.Unlock()
		callback(gpucore.MapStatusMappingAlreadyPending)
		return ErrAlreadyMapped
	}
	t.entries[id] = &entry{state: StatePending, callback: callback}
	t.mu.Unlock()
	return nil
}

// Pending returns the IDs with a pending map, in ascending order.
func (t *Tracker) Pending() []gpucore.BufferID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]gpucore.BufferID, 0, len(t.entries))
	for id, e := range t.entries {
		if e.state == StatePending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Complete transitions id from Pending to Mapped with the given contents and
// invokes the callback with MapStatusSuccess. It is a no-op if id is not pending.
func (t *Tracker) Complete(id gpucore.BufferID, data []byte) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.state != StatePending {
		t.mu.Unlock()
		return
	}
	e.state = StateMapped
	e.data = data
	callback := e.callback
	e.callback = nil
	t.mu.Unlock()

	callback(gpucore.MapStatusSuccess)
}

// Fail returns a pending id to Unmapped and invokes the callback with status.
// It is a no-op if id is not pending.
func (t *Tracker) Fail(id gpucore.BufferID, status gpucore.MapStatus) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.state != StatePending {
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	callback := e.callback
	t.mu.Unlock()

	callback(status)
}

// FailAll fails every pending map with status.
func (t *Tracker) FailAll(status gpucore.MapStatus) {
	for _, id := range t.Pending() {
		t.Fail(id, status)
	}
}

// Range returns the mapped contents of id.
func (t *Tracker) Range(id gpucore.BufferID) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	switch {
	case !ok:
		return nil, ErrNotMapped
	case e.state == StatePending:
		return nil, ErrMapPending
	default:
		return e.data, nil
	}
}

// Unmap returns id to Unmapped. A pending map is cancelled and its callback
// receives MapStatusUnmappedBeforeCallback. Unmapping an unmapped buffer is a no-op.
func (t *Tracker) Unmap(id gpucore.BufferID) {
	t.release(id, gpucore.MapStatusUnmappedBeforeCallback)
}

// Forget drops id when its buffer is destroyed. A pending map's callback
// receives MapStatusDestroyedBeforeCallback.
func (t *Tracker) Forget(id gpucore.BufferID) {
	t.release(id, gpucore.MapStatusDestroyedBeforeCallback)
}

func (t *Tracker) release(id gpucore.BufferID, status gpucore.MapStatus) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	callback := e.callback
	wasPending := e.state == StatePending
	t.mu.Unlock()

	if wasPending && callback != nil {
		callback(status)
	}
}
