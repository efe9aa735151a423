// Package resolver maps loader short names to canonical filesystem paths.
//
// The NameResolver owns the name↔path bindings for one build. Names are
// declared up front, before the pipeline resolves loader chains, so that
// later phases can classify loaders by path with O(1) lookups while users
// keep configuring loaders by the more ergonomic short name. The actual
// path lookup is delegated to an injected Service; already-declared names
// never hit the service again.
package resolver
