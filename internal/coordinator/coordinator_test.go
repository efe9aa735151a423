package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/loader"
	"github.com/vk/deferloader/internal/pipeline"
	"github.com/vk/deferloader/internal/registry"
	"github.com/vk/deferloader/internal/resolver"
)

// mapService resolves names through a fixed table and counts service calls.
type mapService struct {
	mu    sync.Mutex
	paths map[string]string
	calls int
}

func (s *mapService) Resolve(_ context.Context, _, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	path, ok := s.paths[name]
	if !ok {
		return "", fmt.Errorf("cannot resolve loader %q", name)
	}
	return path, nil
}

func (s *mapService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeHost serves pre-built loader modules and counts loads per path.
type fakeHost struct {
	mu      sync.Mutex
	modules map[string]*loader.Module
	loads   map[string]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		modules: make(map[string]*loader.Module),
		loads:   make(map[string]int),
	}
}

func (h *fakeHost) Load(_ context.Context, path string) (*loader.Module, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads[path]++
	m, ok := h.modules[path]
	if !ok {
		return nil, fmt.Errorf("no module at %q", path)
	}
	return m, nil
}

func (h *fakeHost) loadCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads[path]
}

func TestEndToEndSingleTarget(t *testing.T) {
	svc := &mapService{paths: map[string]string{
		"transform-x":  "/abs/path/transform-x.js",
		"babel-loader": "/abs/path/babel-loader.js",
	}}
	host := newFakeHost()

	var calls int32
	var gotOptions any
	host.modules["/abs/path/transform-x.js"] = &loader.Module{
		Path: "/abs/path/transform-x.js",
		Deferred: func(_ context.Context, _ *build.Compilation, options any) error {
			atomic.AddInt32(&calls, 1)
			gotOptions = options
			return nil
		},
	}
	// babel-loader exposes no deferred entry point.
	host.modules["/abs/path/babel-loader.js"] = &loader.Module{Path: "/abs/path/babel-loader.js"}

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("transform-x", map[string]any{"mode": "fast"}), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "transform-x!babel-loader!./src/app.js"))

	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "deferred entry point must run exactly once")
	assert.Equal(t, map[string]any{"mode": "fast"}, gotOptions)

	rec, ok := reg.GetByPath("/abs/path/babel-loader.js")
	require.True(t, ok)
	assert.False(t, rec.DeferredCapable)
}

func TestNonCapableLoaderNeverActivates(t *testing.T) {
	svc := &mapService{paths: map[string]string{"plain": "/abs/plain.js"}}
	host := newFakeHost()
	host.modules["/abs/plain.js"] = &loader.Module{Path: "/abs/plain.js"}

	nr := resolver.New()
	reg := registry.New()
	// Configuring the loader's own name makes no difference: capability
	// comes from the module, not the configuration.
	c, err := New(NewConfig("plain", nil), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "plain!./src/app.js"))
	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	rec, ok := reg.GetByPath("/abs/plain.js")
	require.True(t, ok)
	assert.False(t, rec.DeferredCapable)
}

func TestClassificationIsMemoizedPerPath(t *testing.T) {
	svc := &mapService{paths: map[string]string{"plain": "/abs/plain.js"}}
	host := newFakeHost()
	host.modules["/abs/plain.js"] = &loader.Module{Path: "/abs/plain.js"}

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("unrelated", nil), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "plain!./src/a.js"))
	require.NoError(t, p.AddModule("/project", "plain!./src/b.js"))
	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	assert.Equal(t, 1, host.loadCount("/abs/plain.js"), "a classified path must never load again")
	assert.Equal(t, 1, reg.Len())
}

func TestNameMatchGuardAcrossInstances(t *testing.T) {
	svc := &mapService{paths: map[string]string{"foo": "/abs/foo.js"}}
	host := newFakeHost()

	var fooCalls int32
	var fooOptions any
	host.modules["/abs/foo.js"] = &loader.Module{
		Path: "/abs/foo.js",
		Deferred: func(_ context.Context, _ *build.Compilation, options any) error {
			atomic.AddInt32(&fooCalls, 1)
			fooOptions = options
			return nil
		},
	}

	// Two differently-configured instances share one resolver/registry pair.
	nr := resolver.New()
	reg := registry.New()

	fooInstance, err := New(NewConfig("foo", "foo-options"), nr, reg, host, svc)
	require.NoError(t, err)
	barInstance, err := New(NewConfig("bar", "bar-options"), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	fooInstance.Apply(p)
	barInstance.Apply(p)
	require.NoError(t, p.AddModule("/project", "foo!./src/app.js"))

	// The bar instance declares a name no chain ever produces; that is not
	// an error, it simply activates zero loaders.
	svc.paths["bar"] = "/abs/bar.js"

	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&fooCalls), "only the matching instance may activate the loader")
	assert.Equal(t, "foo-options", fooOptions)
}

func TestEmitAggregationFirstErrorWins(t *testing.T) {
	svc := &mapService{paths: map[string]string{
		"a": "/abs/a.js",
		"b": "/abs/b.js",
		"c": "/abs/c.js",
	}}
	host := newFakeHost()

	deferredErr := errors.New("flush failed")
	var completed int32
	succeed := func(_ context.Context, _ *build.Compilation, _ any) error {
		atomic.AddInt32(&completed, 1)
		return nil
	}
	host.modules["/abs/a.js"] = &loader.Module{Path: "/abs/a.js", Deferred: succeed}
	host.modules["/abs/b.js"] = &loader.Module{
		Path: "/abs/b.js",
		Deferred: func(_ context.Context, _ *build.Compilation, _ any) error {
			return deferredErr
		},
	}
	host.modules["/abs/c.js"] = &loader.Module{Path: "/abs/c.js", Deferred: succeed}

	nr := resolver.New()
	reg := registry.New()
	c, err := New(Config{Loaders: map[string]any{"a": nil, "b": nil, "c": nil}}, nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "a!b!c!./src/app.js"))

	err = p.Run(context.Background(), build.NewCompilation())
	require.Error(t, err)

	// The error from the second-invoked call surfaces as the single
	// reported failure; the successful calls still ran to completion.
	var emissionErr *EmissionError
	require.ErrorAs(t, err, &emissionErr)
	assert.Equal(t, "b", emissionErr.Loader)
	assert.ErrorIs(t, err, deferredErr)
	assert.Equal(t, int32(2), atomic.LoadInt32(&completed))
}

func TestConfigureSideEffectAtRegistration(t *testing.T) {
	svc := &mapService{paths: map[string]string{"cfg": "/abs/cfg.js"}}
	host := newFakeHost()

	var configured []any
	host.modules["/abs/cfg.js"] = &loader.Module{
		Path:     "/abs/cfg.js",
		Deferred: func(_ context.Context, _ *build.Compilation, _ any) error { return nil },
		Configure: func(options any) {
			configured = append(configured, options)
		},
	}

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("cfg", 42), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	// Two modules share the loader; configure must fire once, at
	// registration, not per module and not at emit.
	require.NoError(t, p.AddModule("/project", "cfg!./src/a.js"))
	require.NoError(t, p.AddModule("/project", "cfg!./src/b.js"))
	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	assert.Equal(t, []any{42}, configured)
}

func TestResolutionFailurePropagates(t *testing.T) {
	svc := &mapService{paths: map[string]string{}}
	host := newFakeHost()

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("ghost", nil), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "./src/app.js"))

	err = p.Run(context.Background(), build.NewCompilation())
	require.Error(t, err)

	var resolutionErr *ResolutionError
	assert.ErrorAs(t, err, &resolutionErr)
}

func TestClassificationFailurePropagates(t *testing.T) {
	svc := &mapService{paths: map[string]string{"broken": "/abs/broken.js"}}
	host := newFakeHost() // no module behind the path

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("broken", nil), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "broken!./src/app.js"))

	err = p.Run(context.Background(), build.NewCompilation())
	require.Error(t, err)

	var classificationErr *ClassificationError
	require.ErrorAs(t, err, &classificationErr)
	assert.Equal(t, "/abs/broken.js", classificationErr.Path)
}

func TestRedeclaringCachedNamesSkipsService(t *testing.T) {
	svc := &mapService{paths: map[string]string{"x": "/abs/x.js"}}
	host := newFakeHost()
	host.modules["/abs/x.js"] = &loader.Module{Path: "/abs/x.js"}

	nr := resolver.New()
	reg := registry.New()
	c, err := New(NewConfig("x", nil), nr, reg, host, svc)
	require.NoError(t, err)

	p := pipeline.New(svc)
	c.Apply(p)
	require.NoError(t, p.AddModule("/project", "x!./src/a.js"))
	require.NoError(t, p.AddModule("/project", "x!./src/b.js"))
	require.NoError(t, p.Run(context.Background(), build.NewCompilation()))

	// One distinct name: the declare phase consults the service once and
	// the pipeline's own chain resolution once, regardless of module count.
	assert.Equal(t, 2, svc.callCount())
}

func TestNewValidatesInputs(t *testing.T) {
	nr := resolver.New()
	reg := registry.New()
	host := newFakeHost()
	svc := &mapService{paths: map[string]string{}}

	_, err := New(Config{}, nr, reg, host, svc)
	assert.Error(t, err, "empty target set")

	_, err = New(NewConfig("x", nil), nil, reg, host, svc)
	assert.Error(t, err, "nil resolver")

	_, err = New(NewConfig("x", nil), nr, reg, nil, svc)
	assert.Error(t, err, "nil host")
}
