// Package loader defines the contract between the coordination engine and
// loaded loader modules, plus the in-process host for built-in loaders.
//
// A loader module may expose a deferred entry point that runs once per
// build during the emit phase, and may expose a configuration-acceptance
// function invoked once when the loader is registered. A module without a
// deferred entry point is immediate-only and never participates in emit.
package loader

import (
	"context"

	"github.com/vk/deferloader/internal/build"
)

// DeferredFunc is the deferred entry point of a deferred-capable loader. It
// receives the opaque compilation object and the options attached by the
// coordinator instance that activated the loader.
type DeferredFunc func(ctx context.Context, c *build.Compilation, options any) error

// Module is a loader module loaded into memory from its canonical path.
// The coordination engine holds it by read-only reference and never copies
// or mutates it.
type Module struct {
	Path string

	// Deferred is nil for immediate-only loaders.
	Deferred DeferredFunc

	// Configure, when non-nil, is invoked once with the coordinator's
	// options immediately upon registration.
	Configure func(options any)
}

// Host is the external collaborator that loads a loader module from its
// canonical path. How a module gets into memory (disk, script runtime,
// compiled-in) is the host's concern.
type Host interface {
	Load(ctx context.Context, path string) (*Module, error)
}

// Provider registers one or more built-in loader modules with a StaticHost.
// Packages under modules/ implement this interface.
type Provider interface {
	Register(h *StaticHost)
}
