package billing

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/trekpay/pkg/job"
)

// EnqueueCharge schedules a charge for p. The subscription id is the job
// reference. The payload is validated before anything is stored.
//
// Example:
//
//	j, err := billing.EnqueueCharge(ctx, q, payload,
//	    job.WithDelay(24*time.Hour),
//	    job.WithMaxRetries(3),
//	)
func EnqueueCharge(ctx context.Context, q *job.Queue, p ChargePayload, opts ...job.EnqueueOption) (*job.Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, JobType, p.SubscriptionID, p, opts...)
}

// EnqueueChargeTx schedules a charge inside tx, so the job exists only if
// the surrounding subscription change commits.
func EnqueueChargeTx(ctx context.Context, q *job.Queue, tx pgx.Tx, p ChargePayload, opts ...job.EnqueueOption) (*job.Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return q.EnqueueTx(ctx, tx, JobType, p.SubscriptionID, p, opts...)
}
