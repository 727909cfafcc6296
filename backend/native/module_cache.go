// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/internal/wgslreflect"
)

// ErrModuleCacheNilDevice is returned when compiling without a device.
var ErrModuleCacheNilDevice = errors.New("native: device is nil")

// moduleCache shares compiled shader modules between pipelines built from
// the same WGSL source.
//
// Modules are indexed by an FNV-1a hash of the source; entries whose
// hashes collide share a bucket and are told apart by their source. Every
// pipeline holds one reference, and the module is destroyed when the last
// pipeline using it is destroyed.
//
// Thread Safety:
// moduleCache is safe for concurrent use. Compilation runs outside the
// lock and is double-checked before the module is stored.
type moduleCache struct {
	mu      sync.RWMutex
	modules map[uint64][]*cachedModule
	hash    func(string) uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cachedModule struct {
	key    uint64
	source string
	module hal.ShaderModule
	refs   int
}

func newModuleCache() *moduleCache {
	return &moduleCache{
		modules: make(map[uint64][]*cachedModule),
		hash:    hashSource,
	}
}

// hashSource returns the cache key of a WGSL source.
func hashSource(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// lookupLocked returns the entry compiled from source. Caller must hold c.mu.
func (c *moduleCache) lookupLocked(key uint64, source string) *cachedModule {
	for _, m := range c.modules[key] {
		if m.source == source {
			return m
		}
	}
	return nil
}

// acquire returns the entry compiled from source, compiling it on a miss,
// and adds a reference. The entry is passed to release.
func (c *moduleCache) acquire(device hal.Device, label, source string) (*cachedModule, error) {
	key := c.hash(source)

	// Fast path: already compiled
	c.mu.Lock()
	if m := c.lookupLocked(key, source); m != nil {
		m.refs++
		c.mu.Unlock()
		c.hits.Add(1)
		return m, nil
	}
	c.mu.Unlock()

	if device == nil {
		return nil, ErrModuleCacheNilDevice
	}

	// Compile outside the lock; naga is the slow part.
	spirv, err := wgslreflect.CompileSPIRV(source)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if m := c.lookupLocked(key, source); m != nil {
		m.refs++
		c.hits.Add(1)
		return m, nil
	}

	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}
	m := &cachedModule{key: key, source: source, module: module, refs: 1}
	c.modules[key] = append(c.modules[key], m)
	c.misses.Add(1)
	return m, nil
}

// release drops a reference and destroys the module with the last one.
func (c *moduleCache) release(device hal.Device, m *cachedModule) {
	if m == nil {
		return
	}
	c.mu.Lock()
	bucket := c.modules[m.key]
	i := slices.Index(bucket, m)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	m.refs--
	if m.refs > 0 {
		c.mu.Unlock()
		return
	}
	bucket = slices.Delete(bucket, i, i+1)
	if len(bucket) == 0 {
		delete(c.modules, m.key)
	} else {
		c.modules[m.key] = bucket
	}
	c.mu.Unlock()

	device.DestroyShaderModule(m.module)
}

// clear destroys every cached module regardless of references.
func (c *moduleCache) clear(device hal.Device) {
	c.mu.Lock()
	modules := c.modules
	c.modules = make(map[uint64][]*cachedModule)
	c.mu.Unlock()

	for _, bucket := range modules {
		for _, m := range bucket {
			device.DestroyShaderModule(m.module)
		}
	}
}

// size returns the number of cached modules.
func (c *moduleCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, bucket := range c.modules {
		n += len(bucket)
	}
	return n
}

// stats returns the hit and miss counters.
func (c *moduleCache) stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
