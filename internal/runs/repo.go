package runs

import "context"

// Repo defines persistence operations for runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	SetArtifacts(ctx context.Context, runID string, artifacts []string) error
	ListRecent(ctx context.Context, limit, offset int) ([]Run, error)
}
