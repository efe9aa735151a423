package coordinator

import "sort"

// Config determines which discovered loaders a coordinator instance
// activates at emit time, and with which options. The canonical form is the
// multi-target mapping of loader short names to option values; it is
// immutable for the instance's lifetime.
type Config struct {
	Loaders map[string]any
}

// NewConfig is the single-target convenience form: one loader name with its
// options value.
func NewConfig(loaderName string, options any) Config {
	return Config{
		Loaders: map[string]any{loaderName: options},
	}
}

// targetNames returns the configured loader names, sorted so declaration
// batches are deterministic.
func (c Config) targetNames() []string {
	names := make([]string, 0, len(c.Loaders))
	for name := range c.Loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// options returns the options configured for a loader name, and whether
// this instance targets that name at all.
func (c Config) options(name string) (any, bool) {
	opts, ok := c.Loaders[name]
	return opts, ok
}
