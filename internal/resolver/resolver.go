package resolver

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vk/deferloader/internal/ctxlog"
)

// Service is the external path-resolution collaborator. Implementations
// resolve a loader short name to a canonical absolute path, relative to the
// given base directory.
type Service interface {
	Resolve(ctx context.Context, baseDir, name string) (string, error)
}

// Binding is one resolved short-name/canonical-path pair. It is created
// once per distinct name and never mutated afterwards.
type Binding struct {
	Name string
	Path string
}

// NotFoundError reports a path lookup for which no name was ever bound.
// Callers must declare names before asking for them back.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no loader name bound for path %q", e.Path)
}

// NameResolver caches name↔path bindings for a single build. It is safe for
// use from interleaved hook callbacks; the only suspension points are the
// Service calls, which run outside the lock.
type NameResolver struct {
	mu     sync.Mutex
	byPath map[string]Binding
	order  []Binding // registration order, for first-match name scans.
}

// New creates an empty NameResolver.
func New() *NameResolver {
	return &NameResolver{
		byPath: make(map[string]Binding),
	}
}

// Declare resolves every not-yet-cached name through the service and merges
// the results into the cache. Resolution proceeds concurrently and
// independently per name; any service failure fails the whole call with the
// underlying error, and none of that batch's pending names are recorded.
// It returns the bindings for all requested names, keyed by path.
func (r *NameResolver) Declare(ctx context.Context, baseDir string, names []string, service Service) (map[string]Binding, error) {
	logger := ctxlog.FromContext(ctx)

	out := make(map[string]Binding)
	var pending []string

	r.mu.Lock()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if binding, ok := r.lookupNameLocked(name); ok {
			out[binding.Path] = binding
			continue
		}
		pending = append(pending, name)
	}
	r.mu.Unlock()

	if len(pending) == 0 {
		return out, nil
	}

	resolved := make([]Binding, len(pending))
	var g errgroup.Group
	for i, name := range pending {
		g.Go(func() error {
			path, err := service.Resolve(ctx, baseDir, name)
			if err != nil {
				return fmt.Errorf("resolving loader name %q: %w", name, err)
			}
			resolved[i] = Binding{Name: name, Path: path}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, binding := range resolved {
		// A path is unique per physical module; the first name bound to it
		// wins so a given build context resolves deterministically.
		if existing, ok := r.byPath[binding.Path]; ok {
			out[existing.Path] = existing
			continue
		}
		r.byPath[binding.Path] = binding
		r.order = append(r.order, binding)
		out[binding.Path] = binding
		logger.Debug("Bound loader name.", "name", binding.Name, "path", binding.Path)
	}
	return out, nil
}

// NameForPath returns the short name bound to a canonical path. It fails
// with a NotFoundError if the path was never bound.
func (r *NameResolver) NameForPath(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.byPath[path]
	if !ok {
		return "", &NotFoundError{Path: path}
	}
	return binding.Name, nil
}

// PathForName returns the canonical path bound to a short name, scanning
// bindings in declaration order and returning the first match. Names are
// expected unique per build but this is not enforced.
func (r *NameResolver) PathForName(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if binding, ok := r.lookupNameLocked(name); ok {
		return binding.Path, true
	}
	return "", false
}

func (r *NameResolver) lookupNameLocked(name string) (Binding, bool) {
	for _, binding := range r.order {
		if binding.Name == name {
			return binding, true
		}
	}
	return Binding{}, false
}
