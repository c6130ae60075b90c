//go:build integration

package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trekpay/internal/testdb"
	"github.com/dmitrymomot/trekpay/pkg/billing"
	"github.com/dmitrymomot/trekpay/pkg/job"
)

func TestPostgresLedger_AppendIsIdempotentPerJob(t *testing.T) {
	ctx := context.Background()
	pool := testdb.New(t)

	store, err := job.NewPostgres(pool)
	require.NoError(t, err)
	q, err := job.NewQueue(store)
	require.NoError(t, err)
	ledger, err := billing.NewPostgresLedger(pool)
	require.NoError(t, err)

	j, err := q.Enqueue(ctx, billing.JobType, "sub_1", nil)
	require.NoError(t, err)

	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := billing.Payment{
		SubscriptionID: "sub_1",
		OrderID:        "order_1",
		PaymentID:      "pay_1",
		Amount:         49900,
		PaidAt:         paidAt,
		JobID:          j.ID,
	}
	require.NoError(t, ledger.Append(ctx, p))
	require.NoError(t, ledger.Append(ctx, p))

	history, err := ledger.History(ctx, "sub_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pay_1", history[0].PaymentID)
	assert.Equal(t, billing.PaymentStatusCaptured, history[0].Status)
	assert.True(t, paidAt.Equal(history[0].PaidAt))
	assert.Equal(t, j.ID, history[0].JobID)

	p.JobID = uuid.Nil
	assert.ErrorIs(t, ledger.Append(ctx, p), billing.ErrRecordPayment)
}
