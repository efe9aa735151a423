// Package fsresolver resolves loader short names to canonical absolute
// paths by probing configured search directories and file extensions.
package fsresolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/deferloader/internal/ctxlog"
)

// DefaultExtensions is probed when no extensions are configured.
var DefaultExtensions = []string{".lua"}

// Resolver is a resolver Service backed by the local filesystem.
type Resolver struct {
	searchPaths []string
	extensions  []string
}

// New creates a Resolver probing the given search directories. Extensions
// are tried in order after the bare name; an empty slice falls back to
// DefaultExtensions.
func New(searchPaths, extensions []string) *Resolver {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Resolver{
		searchPaths: searchPaths,
		extensions:  extensions,
	}
}

// Resolve probes each search directory (and, for path-like names, the base
// directory itself) for a file matching the name plus a known extension.
// The first hit wins and is returned as a canonical absolute path.
func (r *Resolver) Resolve(ctx context.Context, baseDir, name string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	var roots []string
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		// Path-like references resolve against the requesting module's
		// directory, not the search paths.
		roots = []string{baseDir}
	} else {
		for _, sp := range r.searchPaths {
			if !filepath.IsAbs(sp) {
				sp = filepath.Join(baseDir, sp)
			}
			roots = append(roots, sp)
		}
	}

	for _, root := range roots {
		for _, candidate := range r.candidates(root, name) {
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", fmt.Errorf("canonicalizing %q: %w", candidate, err)
			}
			logger.Debug("Resolved loader name on filesystem.", "name", name, "path", abs)
			return abs, nil
		}
	}

	return "", fmt.Errorf("cannot resolve loader %q in %v", name, roots)
}

func (r *Resolver) candidates(root, name string) []string {
	base := filepath.Join(root, name)
	candidates := []string{base}
	for _, ext := range r.extensions {
		if strings.HasSuffix(name, ext) {
			continue
		}
		candidates = append(candidates, base+ext)
	}
	return candidates
}
