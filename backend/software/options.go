package software

import "github.com/gogpu/compute/gpucore"

// Option configures a software Adapter.
type Option func(*options)

type options struct {
	limits  gpucore.Limits
	workers int
}

func defaultOptions() options {
	return options{
		limits: gpucore.DefaultLimits(),
	}
}

// WithLimits overrides the device limits reported and enforced by the adapter.
func WithLimits(l gpucore.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithWorkers sets the number of goroutines that run workgroups.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}
