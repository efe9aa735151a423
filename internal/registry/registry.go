// Package registry is the sole source of truth for which loaders have been
// discovered so far in one build, and how each classified: deferred-capable
// or immediate-only.
//
// The registry is an append-only, pure in-memory index scoped to exactly one
// build. Records are never removed; a non-capable record is a permanent
// marker that its path was inspected and carries no deferred behavior, so
// redundant module loads never repeat within the build.
package registry

import (
	"sync"

	"github.com/vk/deferloader/internal/loader"
)

// Record describes one discovered loader path.
//
// The zero DeferredCapable variant only carries Path; the capable variant
// additionally carries the loader's short name, the loaded module handle,
// and the options attached by the coordinator instance that registered it.
type Record struct {
	Path            string
	DeferredCapable bool
	Name            string
	Module          *loader.Module
	Options         any
}

// Registry holds the loader records for a single build. The registry itself
// does not deduplicate; callers guard Register with a GetByPath existence
// check, which keeps registration idempotent per path.
type Registry struct {
	mu      sync.RWMutex
	records []*Record
	byPath  map[string]*Record
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byPath: make(map[string]*Record),
	}
}

// GetByPath returns the record registered for a canonical path.
func (r *Registry) GetByPath(path string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byPath[path]
	return rec, ok
}

// GetByName returns the first record registered under a short name, in
// registration order. Name uniqueness is not enforced.
func (r *Registry) GetByName(name string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.Name == name {
			return rec, true
		}
	}
	return nil, false
}

// Register appends a record and returns it. On a duplicate path the path
// index keeps the first registration.
func (r *Registry) Register(rec *Record) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if _, exists := r.byPath[rec.Path]; !exists {
		r.byPath[rec.Path] = rec
	}
	return rec
}

// Filter returns all records matching the predicate, in registration order.
func (r *Registry) Filter(predicate func(*Record) bool) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Record
	for _, rec := range r.records {
		if predicate(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
