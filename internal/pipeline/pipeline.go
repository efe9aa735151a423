// Package pipeline models the host bundler's lifecycle extension points and
// drives one build through them.
//
// Three hooks are exposed: pre-resolve (once per module resolution request,
// before loader paths are known), post-resolve (once per resolved module,
// with the ordered canonical loader path list), and emit (once per build,
// after all modules resolved). Taps run sequentially in tap order; a tap
// error aborts the build with that error, matching the host's
// continuation semantics.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/request"
	"github.com/vk/deferloader/internal/resolver"
)

// ModuleRequest is the pre-resolve view of one module: the raw request and
// its parsed loader chain, before canonical paths exist.
type ModuleRequest struct {
	BaseDir string
	Request string
	Chain   *request.Chain
}

// ResolvedModule is the post-resolve view: the same module with every chain
// element resolved to a canonical loader path, in chain order.
type ResolvedModule struct {
	BaseDir     string
	Request     string
	Resource    string
	LoaderPaths []string
}

// PreResolveFunc taps the pre-resolve hook.
type PreResolveFunc func(ctx context.Context, req *ModuleRequest) error

// PostResolveFunc taps the post-resolve hook.
type PostResolveFunc func(ctx context.Context, rm *ResolvedModule) error

// EmitFunc taps the emit hook.
type EmitFunc func(ctx context.Context, c *build.Compilation) error

type tap[T any] struct {
	name string
	fn   T
}

// Pipeline is a minimal sequential build driver over the three hooks.
type Pipeline struct {
	service     resolver.Service
	preResolve  []tap[PreResolveFunc]
	postResolve []tap[PostResolveFunc]
	emit        []tap[EmitFunc]
	modules     []*ModuleRequest

	// resolutionCache memoizes name lookups per base directory so repeated
	// chains do not hit the service once per module.
	resolutionCache map[string]string
}

// New creates a pipeline that resolves loader chain elements through the
// given service.
func New(service resolver.Service) *Pipeline {
	return &Pipeline{
		service:         service,
		resolutionCache: make(map[string]string),
	}
}

// TapPreResolve registers a pre-resolve tap under a plugin name.
func (p *Pipeline) TapPreResolve(name string, fn PreResolveFunc) {
	p.preResolve = append(p.preResolve, tap[PreResolveFunc]{name: name, fn: fn})
}

// TapPostResolve registers a post-resolve tap under a plugin name.
func (p *Pipeline) TapPostResolve(name string, fn PostResolveFunc) {
	p.postResolve = append(p.postResolve, tap[PostResolveFunc]{name: name, fn: fn})
}

// TapEmit registers an emit tap under a plugin name.
func (p *Pipeline) TapEmit(name string, fn EmitFunc) {
	p.emit = append(p.emit, tap[EmitFunc]{name: name, fn: fn})
}

// AddModule parses a raw module request and queues it for the next Run.
func (p *Pipeline) AddModule(baseDir, rawRequest string) error {
	chain, err := request.Parse(rawRequest)
	if err != nil {
		return fmt.Errorf("invalid module request %q: %w", rawRequest, err)
	}
	p.modules = append(p.modules, &ModuleRequest{
		BaseDir: baseDir,
		Request: rawRequest,
		Chain:   chain,
	})
	return nil
}

// Run drives one build: per queued module the pre-resolve taps, the loader
// chain resolution, and the post-resolve taps; then the emit taps once.
// Phases execute in strict order; the first tap or resolution error aborts.
func (p *Pipeline) Run(ctx context.Context, c *build.Compilation) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pipeline run started.", "modules", len(p.modules))

	for _, mr := range p.modules {
		for _, t := range p.preResolve {
			if err := t.fn(ctx, mr); err != nil {
				return fmt.Errorf("pre-resolve tap %q: %w", t.name, err)
			}
		}

		rm, err := p.resolveModule(ctx, mr)
		if err != nil {
			return err
		}
		logger.Debug("Module resolved.", "request", mr.Request, "loaders", rm.LoaderPaths)

		for _, t := range p.postResolve {
			if err := t.fn(ctx, rm); err != nil {
				return fmt.Errorf("post-resolve tap %q: %w", t.name, err)
			}
		}
	}

	for _, t := range p.emit {
		if err := t.fn(ctx, c); err != nil {
			return fmt.Errorf("emit tap %q: %w", t.name, err)
		}
	}

	logger.Debug("Pipeline run finished.", "build_id", c.ID)
	return nil
}

// resolveModule turns every chain element into a canonical loader path.
// Path-referenced elements canonicalize directly against the module's base
// directory; named elements go through the resolver service.
func (p *Pipeline) resolveModule(ctx context.Context, mr *ModuleRequest) (*ResolvedModule, error) {
	rm := &ResolvedModule{
		BaseDir:  mr.BaseDir,
		Request:  mr.Request,
		Resource: mr.Chain.Resource,
	}

	for _, element := range mr.Chain.Elements {
		var path string
		var err error
		if element.IsPath() {
			path = element.Loader
			if !filepath.IsAbs(path) {
				path = filepath.Join(mr.BaseDir, path)
			}
			path, err = filepath.Abs(path)
		} else {
			path, err = p.resolveName(ctx, mr.BaseDir, element.Loader)
		}
		if err != nil {
			return nil, fmt.Errorf("resolving loader %q of module %q: %w", element.Loader, mr.Request, err)
		}
		rm.LoaderPaths = append(rm.LoaderPaths, path)
	}

	return rm, nil
}

func (p *Pipeline) resolveName(ctx context.Context, baseDir, name string) (string, error) {
	key := baseDir + "\x00" + name
	if path, ok := p.resolutionCache[key]; ok {
		return path, nil
	}
	path, err := p.service.Resolve(ctx, baseDir, name)
	if err != nil {
		return "", err
	}
	p.resolutionCache[key] = path
	return path, nil
}
