package runs

import "errors"

var (
	ErrNotFound         = errors.New("run not found")
	ErrNoResult         = errors.New("run has no result")
	ErrArtifactsMissing = errors.New("artifacts not available")
)
