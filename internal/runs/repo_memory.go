package runs

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores runs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Run
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Run)}
}

// Create stores the run.
func (r *MemoryRepo) Create(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[run.ID] = run
	return nil
}

// GetByID returns a run by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.byID[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// SetArtifacts records the artifact names stored for a run.
func (r *MemoryRepo) SetArtifacts(ctx context.Context, runID string, artifacts []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok {
		return ErrNotFound
	}
	run.Artifacts = append([]string(nil), artifacts...)
	r.byID[runID] = run
	return nil
}

// ListRecent returns runs newest first, with limit/offset.
func (r *MemoryRepo) ListRecent(ctx context.Context, limit, offset int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)

	r.mu.RLock()
	all := make([]Run, 0, len(r.byID))
	for _, run := range r.byID {
		all = append(all, run)
	}
	r.mu.RUnlock()

	if offset >= len(all) {
		return []Run{}, nil
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	end := len(all)
	if offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var _ Repo = (*MemoryRepo)(nil)
