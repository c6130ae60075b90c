package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultDequeueLimit = 10

// farFuture bounds retry times produced by saturated backoff delays
// to something every store can represent.
var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Metrics receives job lifecycle counters.
// Implementations must be safe for concurrent use and must not block.
type Metrics interface {
	IncEnqueued(ctx context.Context, jobType string)
	IncAttempted(ctx context.Context, jobType string)
	IncSucceeded(ctx context.Context, jobType string)
	IncFailed(ctx context.Context, jobType string)
}

type nopMetrics struct{}

func (nopMetrics) IncEnqueued(context.Context, string)  {}
func (nopMetrics) IncAttempted(context.Context, string) {}
func (nopMetrics) IncSucceeded(context.Context, string) {}
func (nopMetrics) IncFailed(context.Context, string)    {}

// Retry tells Fail how to compute the next attempt time.
// Build one with RetryCount or ExplicitDelay.
type Retry struct {
	count    int
	delay    time.Duration
	explicit bool
}

// RetryCount schedules the next attempt with the queue backoff for attempt n.
func RetryCount(n int) Retry {
	return Retry{count: n}
}

// ExplicitDelay schedules the next attempt exactly d from now.
func ExplicitDelay(d time.Duration) Retry {
	return Retry{delay: max(d, 0), explicit: true}
}

// Queue is the durable job queue. It owns every state transition of a job.
type Queue struct {
	store      Store
	backoff    *Backoff
	metrics    Metrics
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewQueue creates a queue on top of the given store.
//
// Example:
//
//	store, _ := job.NewPostgres(pool)
//	q, err := job.NewQueue(store,
//	    job.WithMetrics(metrics.NewRedis(rdb)),
//	    job.WithQueueLogger(log),
//	)
func NewQueue(store Store, opts ...QueueOption) (*Queue, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	q := &Queue{
		store:      store,
		backoff:    &Backoff{},
		metrics:    nopMetrics{},
		maxRetries: DefaultMaxRetries,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue persists a new pending job. It becomes due immediately unless
// WithDelay is given.
func (q *Queue) Enqueue(ctx context.Context, jobType, referenceID string, payload any, opts ...EnqueueOption) (*Job, error) {
	j, err := q.newJob(jobType, referenceID, payload, opts)
	if err != nil {
		return nil, err
	}
	if err := q.store.Insert(ctx, j); err != nil {
		return nil, err
	}
	q.enqueued(ctx, j)
	return j, nil
}

// EnqueueTx persists a new job inside the caller's transaction.
// The job becomes visible to workers only after the transaction commits.
func (q *Queue) EnqueueTx(ctx context.Context, tx pgx.Tx, jobType, referenceID string, payload any, opts ...EnqueueOption) (*Job, error) {
	ts, ok := q.store.(TxStore)
	if !ok {
		return nil, ErrTxUnsupported
	}
	j, err := q.newJob(jobType, referenceID, payload, opts)
	if err != nil {
		return nil, err
	}
	if err := ts.InsertTx(ctx, tx, j); err != nil {
		return nil, err
	}
	q.enqueued(ctx, j)
	return j, nil
}

func (q *Queue) newJob(jobType, referenceID string, payload any, opts []EnqueueOption) (*Job, error) {
	if jobType == "" {
		return nil, ErrInvalidJobType
	}

	cfg := &enqueueConfig{maxRetries: q.maxRetries}
	for _, opt := range opts {
		opt(cfg)
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	now := q.now()
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		ReferenceID: referenceID,
		Payload:     raw,
		MaxRetries:  cfg.maxRetries,
		NextRetryAt: now.Add(cfg.delay),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.Join(ErrInvalidPayload, errors.New("malformed JSON"))
		}
		return p, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	return raw, nil
}

func (q *Queue) enqueued(ctx context.Context, j *Job) {
	q.metrics.IncEnqueued(ctx, j.Type)
	q.logger.DebugContext(ctx, "job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("reference_id", j.ReferenceID),
		slog.Time("next_retry_at", j.NextRetryAt),
	)
}

// DequeueDue returns up to limit pending jobs whose NextRetryAt has passed,
// earliest first. It does not claim them; call MarkInProgress for each.
func (q *Queue) DequeueDue(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = defaultDequeueLimit
	}
	return q.store.ListDue(ctx, q.now(), limit)
}

// MarkInProgress atomically claims a pending job. Exactly one of several
// concurrent callers succeeds; the others get ErrAlreadyClaimed.
func (q *Queue) MarkInProgress(ctx context.Context, id uuid.UUID) (*Job, error) {
	return q.store.Claim(ctx, id, q.now())
}

// Complete marks an in-progress job as completed and records its result.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, result string) (*Job, error) {
	return q.store.Complete(ctx, id, q.now(), result)
}

// Fail records a failed attempt of an in-progress job. While retries remain
// the job returns to pending and the returned time is its next attempt.
// Once the retry ceiling is reached the job becomes failed and the returned
// time is nil.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, errMsg string, retry Retry) (*time.Time, error) {
	j, err := q.fail(ctx, id, errMsg, retry)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusPending {
		return nil, nil
	}
	next := j.NextRetryAt
	return &next, nil
}

func (q *Queue) fail(ctx context.Context, id uuid.UUID, errMsg string, retry Retry) (*Job, error) {
	now := q.now()
	delay := retry.delay
	if !retry.explicit {
		delay = q.backoff.Delay(retry.count)
	}
	next := farFuture
	if delay < farFuture.Sub(now) {
		next = now.Add(delay)
	}
	return q.store.Fail(ctx, id, now, errMsg, next)
}

// Cancel moves a pending or in-progress job to cancelled.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Job, error) {
	return q.store.Cancel(ctx, id, q.now(), reason)
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	return q.store.Get(ctx, id)
}

// List returns jobs matching the filter, newest first.
func (q *Queue) List(ctx context.Context, f Filter) ([]*Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("job: unknown status %q", f.Status)
	}
	return q.store.List(ctx, f)
}
