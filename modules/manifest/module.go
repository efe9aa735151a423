// Package manifest provides a built-in deferred-capable loader that emits a
// JSON manifest of the finished build: the build id and every asset name
// emitted before it ran.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/loader"
)

// Module implements the loader.Provider interface for this package.
type Module struct{}

type payload struct {
	BuildID string   `json:"build_id"`
	Assets  []string `json:"assets"`
}

// Deferred aggregates the build's asset names into one JSON document.
func Deferred(ctx context.Context, c *build.Compilation, options any) error {
	logger := ctxlog.FromContext(ctx).With("loader", "manifest")

	filename := "manifest.json"
	pretty := false
	if opts, ok := options.(map[string]any); ok {
		if v, ok := opts["filename"].(string); ok && v != "" {
			filename = v
		}
		if v, ok := opts["pretty"].(bool); ok {
			pretty = v
		}
	}

	p := payload{
		BuildID: c.ID.String(),
		Assets:  c.AssetNames(),
	}

	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = json.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("encoding build manifest: %w", err)
	}

	c.EmitAsset(filename, data)
	logger.Info("Emitted build manifest.", "asset", filename, "listed_assets", len(p.Assets))
	return nil
}

// Register registers the manifest loader with the static host.
func (m *Module) Register(h *loader.StaticHost) {
	h.Register("manifest", &loader.Module{
		Deferred: Deferred,
	})
}
