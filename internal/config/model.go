// Package config loads the HCL build manifest into a format-agnostic model:
// the module requests to process, where loader files live, and which
// coordinator instances to construct.
package config

// Model is the unified representation of one build manifest.
type Model struct {
	// BaseDir anchors relative search paths and module resources. Defaults
	// to the manifest file's directory.
	BaseDir string

	// OutputDir receives the emitted assets at the end of a build.
	OutputDir string

	// SearchPaths are probed, in order, when resolving loader short names.
	SearchPaths []string

	// Extensions are probed when a short name has no extension.
	Extensions []string

	Modules      []Module
	Coordinators []Coordinator
}

// Module is one `module "<request>"` block: a raw loader-chain request.
type Module struct {
	Request string
}

// Coordinator is one `coordinator "<loader>"` block: a coordinator instance
// targeting a single loader name with a generic options value.
type Coordinator struct {
	Loader  string
	Options any
}
