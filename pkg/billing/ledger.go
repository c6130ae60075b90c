package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PaymentStatusCaptured is the status recorded for a successful charge.
const PaymentStatusCaptured = "captured"

// Payment is one entry in a subscription's payment history.
type Payment struct {
	ID             uuid.UUID
	SubscriptionID string
	OrderID        string
	PaymentID      string
	Amount         int64
	Status         string
	PaidAt         time.Time
	JobID          uuid.UUID
	CreatedAt      time.Time
}

// Ledger records captured payments against subscriptions.
// Append must be idempotent per JobID.
type Ledger interface {
	Append(ctx context.Context, p Payment) error
}

// DB is the subset of pgxpool.Pool used by PostgresLedger.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLedger stores payments in the subscription_payments table.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger creates a ledger backed by db.
func NewPostgresLedger(db DB) (*PostgresLedger, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	return &PostgresLedger{db: db}, nil
}

// Append inserts p. A second append for the same job is ignored.
func (l *PostgresLedger) Append(ctx context.Context, p Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PaymentStatusCaptured
	}
	if p.JobID == uuid.Nil {
		return errors.Join(ErrRecordPayment, errJobIDRequired)
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO subscription_payments
			(id, subscription_id, order_id, payment_id, amount, status, paid_at, job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO NOTHING`,
		p.ID, p.SubscriptionID, p.OrderID, p.PaymentID, p.Amount, p.Status, p.PaidAt, p.JobID,
	)
	if err != nil {
		return errors.Join(ErrRecordPayment, err)
	}
	return nil
}

// History returns the payments of a subscription, newest first.
func (l *PostgresLedger) History(ctx context.Context, subscriptionID string) ([]Payment, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, subscription_id, order_id, payment_id, amount, status, paid_at, job_id, created_at
		FROM subscription_payments
		WHERE subscription_id = $1
		ORDER BY paid_at DESC, created_at DESC`,
		subscriptionID,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.SubscriptionID, &p.OrderID, &p.PaymentID, &p.Amount, &p.Status, &p.PaidAt, &p.JobID, &p.CreatedAt)
		return p, err
	})
}
