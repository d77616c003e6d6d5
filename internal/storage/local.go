package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as files under a base directory. It is the
// default backend for cover images.
type LocalClient struct {
	baseDir string
}

// NewLocalClient constructs a filesystem-backed storage client.
func NewLocalClient(baseDir string) (*LocalClient, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("storage directory is required")
	}
	return &LocalClient{baseDir: baseDir}, nil
}

// Ensure creates the base directory if it does not exist.
func (l *LocalClient) Ensure(ctx context.Context) error {
	return os.MkdirAll(l.baseDir, 0o755)
}

// Put writes an object to a file named by key. Keys are flattened to their
// base name so callers cannot escape the base directory.
func (l *LocalClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f, err := os.Create(l.path(key))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Get opens the file named by key.
func (l *LocalClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the file named by key.
func (l *LocalClient) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return err
	}
	return nil
}

// Location returns the base directory.
func (l *LocalClient) Location() string {
	return l.baseDir
}

func (l *LocalClient) path(key string) string {
	return filepath.Join(l.baseDir, filepath.Base(key))
}
