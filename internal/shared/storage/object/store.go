package object

import (
	"context"
	"errors"
	"io"
	"path"

	"pca-viewer/internal/shared/util"
)

// ErrNotFound is returned by Open when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ObjectStore saves and retrieves run artifacts by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RunKey is the storage key of an artifact belonging to a run.
func RunKey(runID, name string) (string, error) {
	id, err := util.SanitizeFileName(runID)
	if err != nil {
		return "", err
	}
	file, err := util.SanitizeFileName(name)
	if err != nil {
		return "", err
	}
	return path.Join("runs", id, file), nil
}
