package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local writes files under <base>/<pipeline>/...
type Local struct {
	root string
}

// NewLocal creates the per-pipeline directory under base
func NewLocal(base, pipeline string) (*Local, error) {
	if pipeline == "" || filepath.Base(pipeline) != pipeline {
		return nil, fmt.Errorf("invalid pipeline name %q", pipeline)
	}
	root := filepath.Join(base, pipeline)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pipeline output directory: %w", err)
	}
	return &Local{root: root}, nil
}

// Root is the per-pipeline directory
func (l *Local) Root() string { return l.root }

// Location resolves a key to its file path without touching the filesystem
func (l *Local) Location(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Put writes to a temp file next to the target and renames it into place,
// so readers never see a partially written file.
func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	target := l.Location(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to chmod %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return target, nil
}

// Open opens a file path. Paths outside the pipeline root are allowed so
// that configured input files can be read through the same sink.
func (l *Local) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(location)
}
