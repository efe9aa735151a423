package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingService resolves names to deterministic fake paths and records how
// often the external service was consulted.
type countingService struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingService() *countingService {
	return &countingService{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (s *countingService) Resolve(_ context.Context, baseDir, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if err, ok := s.fail[name]; ok {
		return "", err
	}
	return fmt.Sprintf("%s/node_modules/%s/index.lua", baseDir, name), nil
}

func (s *countingService) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func TestDeclareRoundTrip(t *testing.T) {
	r := New()
	svc := newCountingService()
	ctx := context.Background()

	bindings, err := r.Declare(ctx, "/project", []string{"transform-x", "css"}, svc)
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	for name := range map[string]bool{"transform-x": true, "css": true} {
		path, ok := r.PathForName(name)
		require.True(t, ok, "expected %q to be bound", name)

		roundTripped, err := r.NameForPath(path)
		require.NoError(t, err)
		assert.Equal(t, name, roundTripped)
	}
}

func TestDeclareCachedNameSkipsService(t *testing.T) {
	r := New()
	svc := newCountingService()
	ctx := context.Background()

	_, err := r.Declare(ctx, "/project", []string{"transform-x"}, svc)
	require.NoError(t, err)
	require.Equal(t, 1, svc.callCount("transform-x"))

	// Re-declaring an already-cached name must trigger zero service calls.
	bindings, err := r.Declare(ctx, "/project", []string{"transform-x"}, svc)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)
	assert.Equal(t, 1, svc.callCount("transform-x"))
}

func TestDeclareDuplicateNamesInOneBatch(t *testing.T) {
	r := New()
	svc := newCountingService()

	_, err := r.Declare(context.Background(), "/project", []string{"css", "css", "css"}, svc)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.callCount("css"))
}

func TestDeclareFailurePropagates(t *testing.T) {
	r := New()
	svc := newCountingService()
	resolveErr := errors.New("module not found")
	svc.fail["missing"] = resolveErr

	_, err := r.Declare(context.Background(), "/project", []string{"missing"}, svc)
	require.Error(t, err)
	assert.ErrorIs(t, err, resolveErr)

	// The failed batch must not leave a binding behind.
	_, ok := r.PathForName("missing")
	assert.False(t, ok)
}

func TestNameForPathUnbound(t *testing.T) {
	r := New()

	_, err := r.NameForPath("/never/declared.lua")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "/never/declared.lua", notFound.Path)
}

func TestFallbackTriesNextService(t *testing.T) {
	failing := newCountingService()
	failing.fail["css"] = errors.New("unknown builtin")
	working := newCountingService()

	svc := Fallback(failing, working)
	path, err := svc.Resolve(context.Background(), "/project", "css")
	require.NoError(t, err)
	assert.Equal(t, "/project/node_modules/css/index.lua", path)
	assert.Equal(t, 1, failing.callCount("css"))
	assert.Equal(t, 1, working.callCount("css"))
}
