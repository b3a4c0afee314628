// Package testutil provides testing utilities for filegate tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// TempFile creates a file named name with content in a fresh temporary
// directory and returns its path. The directory is removed when the test
// completes.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// TempPath returns a path in a fresh temporary directory without creating
// the file.
func TempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// IsolateConfig points the config directory at a temporary directory,
// clears FILEGATE_ overrides and resets viper before and after the test.
// It returns the config directory.
func IsolateConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, env := range os.Environ() {
		if key, _, ok := strings.Cut(env, "="); ok && strings.HasPrefix(key, "FILEGATE_") {
			t.Setenv(key, "")
		}
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	return filepath.Join(dir, "filegate")
}
