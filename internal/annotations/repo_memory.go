package annotations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores runs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]Run
	order []string
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
	if _, exists := r.byID[run.ID]; !exists {
		r.order = append(r.order, run.ID)
	}
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

// List returns runs newest first with limit/offset. A zero limit means all.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	runs := make([]Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		runs = append(runs, r.byID[r.order[i]])
	}
	r.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if offset >= len(runs) {
		return []Run{}, nil
	}
	end := len(runs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return runs[offset:end], nil
}

// MarkProcessing claims a queued (or retryable failed) run.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error {
	return r.update(ctx, runID, func(run *Run) error {
		if !run.Claimable() {
			return ErrNotClaimable
		}
		run.Status = StatusProcessing
		run.StartedAt = &startedAt
		run.CompletedAt = nil
		run.ErrorCode, run.ErrorMessage, run.Retryable = nil, nil, nil
		return nil
	})
}

// Complete records a successful run.
func (r *MemoryRepo) Complete(ctx context.Context, runID string, c Completion, completedAt time.Time) error {
	return r.update(ctx, runID, func(run *Run) error {
		run.Status = StatusCompleted
		run.OutputKey = c.OutputKey
		run.Reused = c.Reused
		run.SetupSeconds = c.SetupSeconds
		run.ParseSeconds = c.ParseSeconds
		run.SyntaxCount = c.SyntaxCount
		run.SemanticCount = c.SemanticCount
		run.CompletedAt = &completedAt
		return nil
	})
}

// Fail records a failed run.
func (r *MemoryRepo) Fail(ctx context.Context, runID string, f Failure, completedAt time.Time) error {
	return r.update(ctx, runID, func(run *Run) error {
		run.Status = StatusFailed
		code, msg, retryable := f.Code, f.Message, f.Retryable
		run.ErrorCode = &code
		run.ErrorMessage = &msg
		run.Retryable = &retryable
		run.CompletedAt = &completedAt
		return nil
	})
}

func (r *MemoryRepo) update(ctx context.Context, runID string, fn func(*Run) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&run); err != nil {
		return err
	}
	r.byID[runID] = run
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
