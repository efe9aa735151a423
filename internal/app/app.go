// Package app wires the coordination engine into a runnable build: manifest
// loading, loader hosts, the shared resolver/registry pair, one coordinator
// per configured instance, and asset output.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/config"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/loader"
	"github.com/vk/deferloader/modules/manifest"
	"github.com/vk/deferloader/modules/notify"
)

// coreProviders are the built-in loader modules available to every build.
var coreProviders = []loader.Provider{
	&manifest.Module{},
	&notify.Module{},
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	model     *config.Model
	providers []loader.Provider

	lastCompilation *build.Compilation
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and the
// loaded build manifest.
func NewApp(outW io.Writer, appConfig *Config, providers ...loader.Provider) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := config.Load(ctx, appConfig.ManifestPath)
	if err != nil {
		// A failure to load the manifest is a fatal startup error.
		panic(fmt.Errorf("failed to load build manifest: %w", err))
	}
	logger.Debug("Build manifest loaded into unified model.")

	if len(providers) == 0 {
		providers = coreProviders
	}

	return &App{
		outW:      outW,
		logger:    logger,
		model:     model,
		providers: providers,
	}
}

// Model returns the loaded manifest model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Compilation returns the last build's compilation. This is primarily for
// testing.
func (a *App) Compilation() *build.Compilation {
	return a.lastCompilation
}
