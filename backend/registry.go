package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first that opens a device wins).
	// Rust > CGO > Native > Software (software is the always-available fallback).
	backendPriority = []string{BackendRust, BackendCGO, BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
// Registering a nil factory removes the backend.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		delete(factories, name)
		return
	}
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Get opens the named backend.
func Get(name string) (gpucore.Adapter, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	a, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return a, nil
}

// Default opens the best available backend based on priority.
// Backends outside the priority list are tried afterwards in name order.
// The returned error joins the failure of every backend that was tried.
func Default() (gpucore.Adapter, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	listed := make(map[string]bool, len(backendPriority))
	for _, name := range backendPriority {
		listed[name] = true
		if _, ok := factories[name]; ok {
			order = append(order, name)
		}
	}
	var rest []string
	for name := range factories {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	registryMu.RUnlock()

	sort.Strings(rest)
	order = append(order, rest...)

	var errs []error
	for _, name := range order {
		a, err := Get(name)
		if err == nil {
			return a, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// MustDefault returns the default backend or panics.
func MustDefault() gpucore.Adapter {
	a, err := Default()
	if err != nil {
		panic(err)
	}
	return a
}
