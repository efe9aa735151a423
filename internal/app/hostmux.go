package app

import (
	"context"
	"strings"

	"github.com/vk/deferloader/internal/loader"
)

// hostMux dispatches module loading by canonical path: built-in paths go to
// the static host, everything else to the filesystem-backed host.
type hostMux struct {
	static   *loader.StaticHost
	fallback loader.Host
}

func (h *hostMux) Load(ctx context.Context, path string) (*loader.Module, error) {
	if strings.HasPrefix(path, loader.BuiltinScheme) {
		return h.static.Load(ctx, path)
	}
	return h.fallback.Load(ctx, path)
}
