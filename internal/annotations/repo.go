package annotations

import (
	"context"
	"time"
)

// Repo defines persistence operations for annotation runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	// List returns runs newest first.
	List(ctx context.Context, limit, offset int) ([]Run, error)
	// MarkProcessing moves a claimable run to processing, or returns
	// ErrNotClaimable.
	MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error
	Complete(ctx context.Context, runID string, c Completion, completedAt time.Time) error
	Fail(ctx context.Context, runID string, f Failure, completedAt time.Time) error
}
