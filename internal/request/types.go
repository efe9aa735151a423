package request

import "strings"

// Element is a single component of a loader chain, e.g. `style-loader` or
// `./loaders/inline.lua?minify=1`.
type Element struct {
	Loader string
	Query  string // raw query including the leading '?', empty when absent.
}

// NewElement creates an element without a query.
func NewElement(loader string) Element {
	return Element{Loader: loader}
}

// HasQuery returns true if the element carries a query string.
func (e Element) HasQuery() bool {
	return e.Query != ""
}

// IsPath reports whether the element references a loader by filesystem path
// rather than by short name. Absolute and explicitly-relative references are
// paths; everything else is a name the resolver service must look up.
func (e Element) IsPath() bool {
	return strings.HasPrefix(e.Loader, "/") ||
		strings.HasPrefix(e.Loader, "./") ||
		strings.HasPrefix(e.Loader, "../")
}

// Chain is the structured representation of a module request string: an
// ordered loader list followed by the resource the loaders apply to.
type Chain struct {
	Elements []Element
	Resource string
}

// LoaderNames returns the short names appearing in the chain, in order,
// with queries stripped. Path-referenced loaders are excluded since they
// need no name resolution.
func (c *Chain) LoaderNames() []string {
	var names []string
	for _, e := range c.Elements {
		if !e.IsPath() {
			names = append(names, e.Loader)
		}
	}
	return names
}
