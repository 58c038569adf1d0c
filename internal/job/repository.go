package job

import "context"

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context, source, symbol string) ([]Job, error)
	// FindActive returns a pending or running job for the same symbol and
	// kind, used to dedup before enqueueing.
	FindActive(ctx context.Context, symbol string, kind Kind) (*Job, error)
	// ClaimPending atomically claims the next pending job in priority then
	// creation order, marking it running. Returns nil when none are pending.
	ClaimPending(ctx context.Context) (*Job, error)
	// RecoverStale re-queues jobs left running by an earlier process.
	RecoverStale(ctx context.Context) (int64, error)
}
