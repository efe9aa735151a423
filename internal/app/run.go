package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/coordinator"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/fsresolver"
	"github.com/vk/deferloader/internal/loader"
	"github.com/vk/deferloader/internal/luahost"
	"github.com/vk/deferloader/internal/pipeline"
	"github.com/vk/deferloader/internal/registry"
	"github.com/vk/deferloader/internal/resolver"
)

// Run executes one build: construct the shared resolver/registry pair,
// apply every configured coordinator instance to a fresh pipeline, drive
// the pipeline over the manifest's modules, and write the emitted assets.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	static := loader.NewStaticHost()
	for _, provider := range a.providers {
		provider.Register(static)
	}
	a.logger.Debug("All built-in loader modules registered.", "count", len(a.providers))

	lua := luahost.New()
	defer lua.Close()

	service := resolver.Fallback(static, fsresolver.New(a.model.SearchPaths, a.model.Extensions))
	host := &hostMux{static: static, fallback: lua}

	// One resolver/registry pair is shared by every coordinator instance;
	// the name-match guard keeps their activations disjoint.
	nameResolver := resolver.New()
	reg := registry.New()

	p := pipeline.New(service)
	for _, entry := range a.model.Coordinators {
		c, err := coordinator.New(coordinator.NewConfig(entry.Loader, entry.Options), nameResolver, reg, host, service)
		if err != nil {
			return fmt.Errorf("constructing coordinator for %q: %w", entry.Loader, err)
		}
		c.Apply(p)
	}
	a.logger.Debug("Coordinator instances applied.", "count", len(a.model.Coordinators))

	for _, m := range a.model.Modules {
		if err := p.AddModule(a.model.BaseDir, m.Request); err != nil {
			return err
		}
	}

	if len(a.model.Modules) == 0 {
		a.logger.Warn("No modules found in manifest, nothing to build.")
		return nil
	}

	compilation := build.NewCompilation()
	a.lastCompilation = compilation

	a.logger.Info("🚀 Starting build.", "build_id", compilation.ID, "modules", len(a.model.Modules))
	if err := p.Run(ctx, compilation); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if err := a.writeAssets(compilation); err != nil {
		return err
	}

	a.logger.Info("🏁 Build finished.", "assets", len(compilation.AssetNames()))
	return nil
}

// writeAssets materializes the compilation's assets under the output dir.
func (a *App) writeAssets(c *build.Compilation) error {
	outDir := a.model.OutputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(a.model.BaseDir, outDir)
	}

	for _, name := range c.AssetNames() {
		data, _ := c.Asset(name)
		target := filepath.Join(outDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("creating output directory for %q: %w", name, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("writing asset %q: %w", name, err)
		}
		a.logger.Debug("Wrote asset.", "asset", name, "path", target)
	}
	return nil
}
