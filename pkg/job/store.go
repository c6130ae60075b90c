package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store persists jobs. Every state-changing method is a conditional update
// keyed on the job's current status, so concurrent callers cannot both
// succeed on the same transition.
//
// Methods return ErrNotFound for unknown ids and ErrInvalidTransition when
// the job exists but is not in an allowed source state. Claim returns
// ErrAlreadyClaimed instead of ErrInvalidTransition.
type Store interface {
	// Insert persists a new job.
	Insert(ctx context.Context, j *Job) error

	// Get returns a job by id.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListDue returns up to limit pending jobs with NextRetryAt <= now,
	// oldest-due first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ListStale returns up to limit in-progress jobs last claimed before the cutoff.
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*Job, error)

	// List returns jobs matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Job, error)

	// Claim moves a pending job to in_progress and stamps LastAttempt.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (*Job, error)

	// Complete moves an in-progress job to completed.
	Complete(ctx context.Context, id uuid.UUID, at time.Time, result string) (*Job, error)

	// Fail increments RetryCount of an in-progress job and records errMsg.
	// The job returns to pending at nextRetryAt while the new count is below
	// MaxRetries, and becomes failed otherwise.
	Fail(ctx context.Context, id uuid.UUID, at time.Time, errMsg string, nextRetryAt time.Time) (*Job, error)

	// Cancel moves a pending or in-progress job to cancelled.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason string) (*Job, error)
}

// TxStore is implemented by stores that can insert inside a caller-owned
// pgx transaction, so a job becomes visible only when the caller commits.
type TxStore interface {
	InsertTx(ctx context.Context, tx pgx.Tx, j *Job) error
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status      Status
	Type        string
	ReferenceID string
	Limit       int
}

const defaultListLimit = 50

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// failOutcome applies the retry ceiling to a job that just failed an attempt.
// Shared by store implementations so the rule lives in one place.
func failOutcome(retryCount, maxRetries int) (newCount int, status Status) {
	newCount = retryCount + 1
	if newCount < maxRetries {
		return newCount, StatusPending
	}
	return min(newCount, maxRetries), StatusFailed
}
