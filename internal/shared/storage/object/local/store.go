// Package local keeps run artifacts under a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"pca-viewer/internal/shared/storage/object"
)

// Store is an object.ObjectStore rooted at a directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created on first Put.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Put replaces the object at key with the contents of r. Readers never see
// a partially written file. The content type is not persisted.
func (s *Store) Put(ctx context.Context, key string, _ string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dst, err := s.path(key)
	if err != nil {
		return 0, err
	}
	return writeAtomic(dst, r)
}

// Open returns the object at key, or object.ErrNotFound.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, object.ErrNotFound
	case err != nil:
		return nil, err
	}
	return f, nil
}

// path maps key onto the filesystem, refusing anything that would land
// outside the root.
func (s *Store) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, rel), nil
}

func writeAtomic(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("publish %s: %w", dst, err)
	}
	return n, nil
}

var _ object.ObjectStore = (*Store)(nil)
