// Package build holds the per-build compilation object handed to deferred
// loader calls. The compilation is the build-wide artifact sink: deferred
// loaders aggregate whatever they collected across modules and emit final
// assets into it.
package build

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Compilation is the opaque build object passed into every deferred call.
// Asset access is safe for the concurrently-running deferred loaders of the
// emit phase.
type Compilation struct {
	// ID uniquely identifies one build invocation.
	ID uuid.UUID

	mu     sync.RWMutex
	assets map[string][]byte
}

// NewCompilation creates a compilation with a fresh build id and no assets.
func NewCompilation() *Compilation {
	return &Compilation{
		ID:     uuid.New(),
		assets: make(map[string][]byte),
	}
}

// EmitAsset records a final build artifact under the given name. Emitting
// the same name twice overwrites; deferred loaders own disjoint asset names
// by convention.
func (c *Compilation) EmitAsset(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[name] = data
}

// Asset returns the content emitted under name.
func (c *Compilation) Asset(name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.assets[name]
	return data, ok
}

// AssetNames returns the names of all emitted assets, sorted for
// deterministic output.
func (c *Compilation) AssetNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.assets))
	for name := range c.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
