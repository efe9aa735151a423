// Package testutil provides the shared integration-test harness: fixture
// files on a temp filesystem, an isolated app instance, and captured logs.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/deferloader/internal/app"
	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/loader"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput   string
	Err         error
	Compilation *build.Compilation
	Dir         string
}

// RunBuild provides a standardized harness for running integration tests.
// The files map holds fixture contents keyed by path relative to a fresh
// temporary directory; "build.hcl" is the manifest. Providers replace the
// core built-in loaders when given.
func RunBuild(t *testing.T, files map[string]string, providers ...loader.Provider) *HarnessResult {
	t.Helper()
	return RunBuildWithContext(context.Background(), t, files, providers...)
}

// RunBuildWithContext is RunBuild with a caller-provided context.
func RunBuildWithContext(ctx context.Context, t *testing.T, files map[string]string, providers ...loader.Provider) *HarnessResult {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", ".tmp-integration-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig, err := app.NewConfig(app.Config{
		ManifestPath: filepath.Join(tmpDir, "build.hcl"),
		LogFormat:    "text",
		LogLevel:     "debug",
	})
	require.NoError(t, err)

	logBuf := &SafeBuffer{}
	result := &HarnessResult{Dir: tmpDir}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Err = fmt.Errorf("application startup panicked: %v", r)
			}
		}()
		a := app.NewApp(logBuf, appConfig, providers...)
		result.Err = a.Run(ctx)
		result.Compilation = a.Compilation()
	}()

	result.LogOutput = logBuf.String()
	return result
}
