package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// BuiltinScheme prefixes the canonical paths of built-in loader modules.
// Built-ins live in-process, so their "paths" are synthetic but still
// unique per module, which is all the registry and resolver require.
const BuiltinScheme = "builtin:"

// StaticHost serves Go-implemented loader modules registered at startup.
// It is both a Host (loading by canonical path) and a resolver Service
// (resolving built-in names ahead of the filesystem).
type StaticHost struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewStaticHost creates an empty StaticHost.
func NewStaticHost() *StaticHost {
	return &StaticHost{
		modules: make(map[string]*Module),
	}
}

// Register adds a built-in loader module under the given short name. The
// module's canonical path is derived from the name.
func (h *StaticHost) Register(name string, m *Module) *Module {
	path := BuiltinScheme + name

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.modules[path]; exists {
		panic(fmt.Sprintf("built-in loader with name '%s' already registered", name))
	}
	slog.Debug("Registering built-in loader module.", "name", name, "path", path)
	m.Path = path
	h.modules[path] = m
	return m
}

// Load implements Host for built-in canonical paths.
func (h *StaticHost) Load(_ context.Context, path string) (*Module, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m, ok := h.modules[path]
	if !ok {
		return nil, fmt.Errorf("no built-in loader registered at %q", path)
	}
	return m, nil
}

// Resolve implements the resolver Service contract for built-in names.
func (h *StaticHost) Resolve(_ context.Context, _ string, name string) (string, error) {
	path := BuiltinScheme + name

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.modules[path]; !ok {
		return "", fmt.Errorf("no built-in loader named %q", name)
	}
	return path, nil
}
