// Package coordinator ties the name resolver, the loader registry, and the
// module-loading host to the pipeline's lifecycle hooks.
//
// One Coordinator is one configured instance of the deferral mechanism.
// Several instances may coexist in a build, sharing a resolver and registry
// pair; each instance only registers and activates deferred-capable loaders
// whose resolved short name it is configured for, so differently-configured
// instances never double-activate one physical loader or attach
// incompatible options to it.
package coordinator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/loader"
	"github.com/vk/deferloader/internal/pipeline"
	"github.com/vk/deferloader/internal/registry"
	"github.com/vk/deferloader/internal/resolver"
)

// tapName identifies this plugin's taps on the pipeline hooks.
const tapName = "deferred-coordinator"

// Coordinator orchestrates deferred loader activation for one
// configuration instance. Resolver and registry are injected so that
// multi-instance builds can share one pair.
type Coordinator struct {
	cfg      Config
	resolver *resolver.NameResolver
	registry *registry.Registry
	host     loader.Host
	service  resolver.Service
}

// New validates the configuration and dependencies and returns a
// Coordinator ready to be applied to a pipeline.
func New(cfg Config, nr *resolver.NameResolver, reg *registry.Registry, host loader.Host, service resolver.Service) (*Coordinator, error) {
	if len(cfg.Loaders) == 0 {
		return nil, fmt.Errorf("coordinator requires at least one target loader name")
	}
	if nr == nil || reg == nil {
		return nil, fmt.Errorf("coordinator requires a name resolver and a registry")
	}
	if host == nil {
		return nil, fmt.Errorf("coordinator requires a loader host")
	}
	if service == nil {
		return nil, fmt.Errorf("coordinator requires a resolver service")
	}
	return &Coordinator{
		cfg:      cfg,
		resolver: nr,
		registry: reg,
		host:     host,
		service:  service,
	}, nil
}

// Apply subscribes the coordinator to the pipeline's three lifecycle hooks.
func (c *Coordinator) Apply(p *pipeline.Pipeline) {
	p.TapPreResolve(tapName, c.preResolve)
	p.TapPostResolve(tapName, c.postResolve)
	p.TapEmit(tapName, c.emit)
}

// preResolve declares the names of interest for the current module: this
// instance's configured targets plus every short name in the module's
// loader chain. Declaring ahead of chain resolution makes classification an
// O(1) path lookup later.
func (c *Coordinator) preResolve(ctx context.Context, mr *pipeline.ModuleRequest) error {
	names := append(c.cfg.targetNames(), mr.Chain.LoaderNames()...)

	if _, err := c.resolver.Declare(ctx, mr.BaseDir, names, c.service); err != nil {
		return &ResolutionError{Err: err}
	}
	return nil
}

// postResolve classifies every not-yet-seen canonical path of the resolved
// module's loader list. Immediate-only loaders are marked permanently so
// their modules never load twice; deferred-capable loaders register only
// when their resolved name matches one of this instance's targets.
func (c *Coordinator) postResolve(ctx context.Context, rm *pipeline.ResolvedModule) error {
	logger := ctxlog.FromContext(ctx)

	for _, path := range rm.LoaderPaths {
		if _, seen := c.registry.GetByPath(path); seen {
			continue
		}

		mod, err := c.host.Load(ctx, path)
		if err != nil {
			return &ClassificationError{Path: path, Err: err}
		}

		if mod.Deferred == nil {
			c.registry.Register(&registry.Record{Path: path})
			logger.Debug("Classified loader as immediate-only.", "path", path)
			continue
		}

		name, err := c.resolver.NameForPath(path)
		if err != nil {
			// Deferred-capable but reached by bare path, never declared by
			// name. No instance can claim it; leave it unregistered.
			logger.Debug("Deferred-capable loader has no name binding; skipping.", "path", path)
			continue
		}

		options, targeted := c.cfg.options(name)
		if !targeted {
			// Another instance configured for this name is responsible.
			logger.Debug("Deferred-capable loader not targeted by this instance; skipping.", "name", name, "path", path)
			continue
		}

		c.registry.Register(&registry.Record{
			Path:            path,
			DeferredCapable: true,
			Name:            name,
			Module:          mod,
			Options:         options,
		})
		if mod.Configure != nil {
			mod.Configure(options)
		}
		logger.Debug("Registered deferred-capable loader.", "name", name, "path", path)
	}

	return nil
}

// emit invokes the deferred entry point of every capable record belonging
// to this instance, concurrently, and waits for all of them. The first
// error wins; in-flight calls are not cancelled. Zero matching records is
// not an error.
func (c *Coordinator) emit(ctx context.Context, comp *build.Compilation) error {
	logger := ctxlog.FromContext(ctx)

	records := c.registry.Filter(func(rec *registry.Record) bool {
		if !rec.DeferredCapable {
			return false
		}
		_, targeted := c.cfg.options(rec.Name)
		return targeted
	})

	if len(records) == 0 {
		logger.Debug("No deferred-capable loaders registered for this instance.")
		return nil
	}

	logger.Debug("Invoking deferred loaders.", "count", len(records))

	var g errgroup.Group
	for _, rec := range records {
		g.Go(func() error {
			if err := rec.Module.Deferred(ctx, comp, rec.Options); err != nil {
				return &EmissionError{Loader: rec.Name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}
