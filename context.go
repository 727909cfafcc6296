package compute

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/compute/backend"
	_ "github.com/gogpu/compute/backend/software" // always-available fallback
	"github.com/gogpu/compute/gpucore"
)

// Context is the device and queue every buffer and shader is created on.
//
// A Context is safe for concurrent use. Buffers and shaders must not be
// used after their Context is closed.
type Context struct {
	adapter gpucore.Adapter
	owned   bool
	opts    contextOptions

	mu        sync.Mutex
	allocated uint64
	buffers   int
	shaders   int

	submissions atomic.Uint64
	closed      atomic.Bool
}

// Stats reports the resources a context currently holds.
type Stats struct {
	// Buffers is the number of live Buffers (each owns two device buffers).
	Buffers int

	// BytesAllocated is the device memory held by live Buffers, counting
	// both the device and the host buffer.
	BytesAllocated uint64

	// Shaders is the number of live Shaders.
	Shaders int

	// Submissions is the number of command buffers submitted so far.
	Submissions uint64
}

// NewContext opens a context on the selected backend.
//
// Without options the best available backend is used (see backend.Default);
// the CPU reference backend is always available as a fallback.
func NewContext(opts ...ContextOption) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{opts: o}
	switch {
	case o.adapter != nil:
		c.adapter = o.adapter
	case o.backendName != "":
		a, err := backend.Get(o.backendName)
		if err != nil {
			return nil, fmt.Errorf("compute: open backend: %w", err)
		}
		c.adapter, c.owned = a, true
	default:
		a, err := backend.Default()
		if err != nil {
			return nil, fmt.Errorf("compute: open backend: %w", err)
		}
		c.adapter, c.owned = a, true
	}

	trackAdapter(c.adapter)
	Logger().Info("compute: context opened",
		"backend", c.adapter.Name(),
		"max_buffer_size", c.adapter.Limits().MaxBufferSize)
	return c, nil
}

// Adapter returns the device adapter the context runs on.
func (c *Context) Adapter() gpucore.Adapter { return c.adapter }

// Backend returns the name of the backend the context runs on.
func (c *Context) Backend() string { return c.adapter.Name() }

// Limits returns the device limits.
func (c *Context) Limits() gpucore.Limits { return c.adapter.Limits() }

// Stats returns a snapshot of the resources the context holds.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Buffers:        c.buffers,
		BytesAllocated: c.allocated,
		Shaders:        c.shaders,
		Submissions:    c.submissions.Load(),
	}
}

// CreateShader compiles a compute shader. It is shorthand for NewShader.
func (c *Context) CreateShader(source, entryPoint string) (*Shader, error) {
	return NewShader(c, source, entryPoint)
}

// Submit hands finished command buffers to the queue in order.
func (c *Context) Submit(buffers ...*CommandBuffer) error {
	if err := c.check(); err != nil {
		return err
	}
	for _, cb := range buffers {
		list, err := cb.consume()
		if err != nil {
			return err
		}
		if err := c.adapter.Submit(list); err != nil {
			return fmt.Errorf("compute: submit %q: %w", list.Label, err)
		}
		c.submissions.Add(1)
		Logger().Debug("compute: submitted", "label", list.Label, "commands", list.Len())
	}
	return nil
}

// Close releases the context. An adapter opened by the context is
// destroyed together with every device resource it still holds; an adapter
// injected with WithAdapter is left open. Close is safe to call multiple times.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	untrackAdapter(c.adapter)

	stats := c.Stats()
	if stats.Buffers > 0 || stats.Shaders > 0 {
		Logger().Debug("compute: closing context with live resources",
			"buffers", stats.Buffers, "shaders", stats.Shaders)
	}
	if c.owned {
		c.adapter.Destroy()
	}
	return nil
}

func (c *Context) check() error {
	if c == nil {
		return fmt.Errorf("%w: nil context", ErrContextClosed)
	}
	if c.closed.Load() {
		return ErrContextClosed
	}
	return nil
}

func (c *Context) label(s string) string {
	if c.opts.labelPrefix == "" {
		return s
	}
	return c.opts.labelPrefix + "/" + s
}

// reserve accounts for n bytes of device memory against the budget.
func (c *Context) reserve(n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if budget := c.opts.memoryBudget; budget > 0 && n > budget-c.allocated {
		return fmt.Errorf("%w: %d + %d > %d bytes", ErrMemoryBudgetExceeded, c.allocated, n, budget)
	}
	c.allocated += n
	c.buffers++
	return nil
}

func (c *Context) unreserve(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocated -= n
	c.buffers--
}

func (c *Context) shaderCreated() {
	c.mu.Lock()
	c.shaders++
	c.mu.Unlock()
}

func (c *Context) shaderReleased() {
	c.mu.Lock()
	c.shaders--
	c.mu.Unlock()
}

// waitMap drives the device until done receives a map status or ctx ends.
// With no poll interval each poll blocks until the queue is idle; otherwise
// the device is polled without blocking and the wait sleeps between polls.
func (c *Context) waitMap(ctx context.Context, done <-chan gpucore.MapStatus) (gpucore.MapStatus, error) {
	interval := c.opts.pollInterval
	for {
		select {
		case status := <-done:
			return status, nil
		case <-ctx.Done():
			return gpucore.MapStatusUnknown, ctx.Err()
		default:
		}

		if interval <= 0 {
			c.adapter.Poll(true)
			continue
		}

		c.adapter.Poll(false)
		timer := time.NewTimer(interval)
		select {
		case status := <-done:
			timer.Stop()
			return status, nil
		case <-ctx.Done():
			timer.Stop()
			return gpucore.MapStatusUnknown, ctx.Err()
		case <-timer.C:
		}
	}
}
