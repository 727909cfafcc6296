package compute

import (
	"time"

	"github.com/gogpu/compute/gpucore"
)

// ContextOption configures a Context during creation.
// Use functional options to customize Context behavior.
//
// Example:
//
//	// Best available backend
//	ctx, err := compute.NewContext()
//
//	// CPU reference backend with a memory budget
//	ctx, err := compute.NewContext(
//	    compute.WithBackend("software"),
//	    compute.WithMemoryBudget(64<<20),
//	)
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	backendName  string
	adapter      gpucore.Adapter
	memoryBudget uint64
	pollInterval time.Duration
	labelPrefix  string
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		backendName:  "", // Best available backend
		adapter:      nil,
		memoryBudget: 0, // Unlimited
		pollInterval: 0, // Blocking polls
	}
}

// WithBackend selects a registered backend by name ("native", "rust", "cgo",
// "software"). The backend package must be imported for its name to be
// registered; "software" is always available.
func WithBackend(name string) ContextOption {
	return func(o *contextOptions) {
		o.backendName = name
	}
}

// WithAdapter runs the context on an adapter the caller already opened.
// Use this for dependency injection of a shared device. The context does
// not destroy an injected adapter on Close.
func WithAdapter(a gpucore.Adapter) ContextOption {
	return func(o *contextOptions) {
		o.adapter = a
	}
}

// WithMemoryBudget caps the bytes the context may allocate on the device,
// counting both the device and the host buffer of every Buffer.
// Zero means unlimited.
func WithMemoryBudget(bytes uint64) ContextOption {
	return func(o *contextOptions) {
		o.memoryBudget = bytes
	}
}

// WithPollInterval makes reads poll the device without blocking and sleep d
// between polls. Zero (the default) blocks in the device poll until the
// queue is idle.
func WithPollInterval(d time.Duration) ContextOption {
	return func(o *contextOptions) {
		o.pollInterval = d
	}
}

// WithLabelPrefix prefixes every device resource label, which helps telling
// contexts apart in GPU debuggers.
func WithLabelPrefix(prefix string) ContextOption {
	return func(o *contextOptions) {
		o.labelPrefix = prefix
	}
}
