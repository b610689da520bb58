// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/config"
)

var (
	catalogOnce sync.Once
	sharedCat   *catalog.Catalog
	catalogErr  error
)

// Catalog returns the embedded reference catalog, initialized once per
// test binary.
func Catalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	catalogOnce.Do(func() {
		sharedCat, catalogErr = catalog.Initialize(context.Background(), catalog.EmbeddedFetcher())
	})
	require.NoError(t, catalogErr)
	return sharedCat
}

// CreateTempProject creates a project directory with an empty components
// folder and returns the project root.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "components"), 0o755))
	return dir
}

// WriteSources writes each name (slash separated, relative to dir) with
// its text, creating parent directories.
func WriteSources(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, text := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
}

// CreateTestConfig returns the defaults with the server on port.
func CreateTestConfig(port int) *config.Config {
	cfg := config.Defaults()
	cfg.Server.Port = port
	return cfg
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
