// Package local implements a local filesystem artifact store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the directory where result artifacts are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArtifactStore writes result artifacts to the local filesystem.
type ArtifactStore struct {
	baseDir string
}

// New creates a filesystem-backed artifact store, creating the base
// directory when missing and verifying it is writable.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up test file: %w", err)
	}

	return &ArtifactStore{baseDir: cfg.BaseDir}, nil
}

// SafeName reports whether name may be used without escaping the base
// directory. It rejects parent-directory segments, absolute paths, and
// separators before any filesystem access happens.
func SafeName(name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}

// Put writes the artifact and returns a file:// reference.
func (s *ArtifactStore) Put(_ context.Context, name string, data []byte) (string, error) {
	if !SafeName(name) {
		return "", fmt.Errorf("unsafe artifact name %q", name)
	}
	fullPath := filepath.Join(s.baseDir, name)
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// Open returns a reader over a previously written artifact.
func (s *ArtifactStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !SafeName(name) {
		return nil, fmt.Errorf("unsafe artifact name %q", name)
	}
	f, err := os.Open(filepath.Join(s.baseDir, name))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}
