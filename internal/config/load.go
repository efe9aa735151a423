package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/deferloader/internal/ctxlog"
)

// fileSchema mirrors the manifest's HCL surface.
type fileSchema struct {
	Build        *buildBlock        `hcl:"build,block"`
	Coordinators []coordinatorBlock `hcl:"coordinator,block"`
}

type buildBlock struct {
	BaseDir     string        `hcl:"base_dir,optional"`
	OutputDir   string        `hcl:"output_dir,optional"`
	SearchPaths []string      `hcl:"search_paths,optional"`
	Extensions  []string      `hcl:"extensions,optional"`
	Modules     []moduleBlock `hcl:"module,block"`
}

type moduleBlock struct {
	Request string `hcl:"request,label"`
}

type coordinatorBlock struct {
	Loader  string         `hcl:"loader,label"`
	Options hcl.Expression `hcl:"options,optional"`
}

// Load parses the manifest file at path and translates it into the Model.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading build manifest.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, diags)
	}

	model := &Model{
		BaseDir:   filepath.Dir(path),
		OutputDir: "dist",
	}

	if schema.Build != nil {
		if schema.Build.BaseDir != "" {
			model.BaseDir = schema.Build.BaseDir
			if !filepath.IsAbs(model.BaseDir) {
				model.BaseDir = filepath.Join(filepath.Dir(path), model.BaseDir)
			}
		}
		if schema.Build.OutputDir != "" {
			model.OutputDir = schema.Build.OutputDir
		}
		model.SearchPaths = schema.Build.SearchPaths
		model.Extensions = schema.Build.Extensions
		for _, m := range schema.Build.Modules {
			model.Modules = append(model.Modules, Module{Request: m.Request})
		}
	}

	for _, block := range schema.Coordinators {
		options, err := decodeOptions(block.Options)
		if err != nil {
			return nil, fmt.Errorf("coordinator %q: %w", block.Loader, err)
		}
		model.Coordinators = append(model.Coordinators, Coordinator{
			Loader:  block.Loader,
			Options: options,
		})
	}

	logger.Debug("Build manifest loaded.",
		"modules", len(model.Modules),
		"coordinators", len(model.Coordinators),
	)
	return model, nil
}

// decodeOptions evaluates a generic options expression into a native Go
// value. Omitted options decode to nil.
func decodeOptions(expr hcl.Expression) (any, error) {
	if !exprDefined(expr) {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating options: %w", diags)
	}
	return ctyToNative(val)
}

// exprDefined checks whether an HCL expression was actually present in the
// source. The decoder populates omitted optional attributes with non-nil,
// zero-width expression objects, so a nil check alone is insufficient; a
// real attribute occupies bytes in the file.
func exprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}
