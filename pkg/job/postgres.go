package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_type, reference_id, payload, retry_count, max_retries,
	last_attempt, next_retry_at, status, last_error, last_result, created_at, updated_at`

// Postgres is a Store backed by the retry_jobs table.
// Due-job scans use the (status, next_retry_at) index created by the migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on top of an existing pool.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("job: pool is required")
	}
	return &Postgres{pool: pool}, nil
}

const insertQuery = `
	INSERT INTO retry_jobs (` + jobColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Insert implements Store.
func (p *Postgres) Insert(ctx context.Context, j *Job) error {
	if _, err := p.pool.Exec(ctx, insertQuery, insertArgs(j)...); err != nil {
		return fmt.Errorf("job: insert: %w", err)
	}
	return nil
}

// InsertTx implements TxStore.
func (p *Postgres) InsertTx(ctx context.Context, tx pgx.Tx, j *Job) error {
	if _, err := tx.Exec(ctx, insertQuery, insertArgs(j)...); err != nil {
		return fmt.Errorf("job: insert tx: %w", err)
	}
	return nil
}

func insertArgs(j *Job) []any {
	var payload []byte
	if len(j.Payload) > 0 {
		payload = j.Payload
	}
	return []any{
		j.ID, j.Type, j.ReferenceID, payload, j.RetryCount, j.MaxRetries,
		j.LastAttempt, j.NextRetryAt, string(j.Status), j.LastError, j.LastResult,
		j.CreatedAt, j.UpdatedAt,
	}
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM retry_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("job: get: %w", err)
	}
	return j, nil
}

// ListDue implements Store.
func (p *Postgres) ListDue(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	return p.query(ctx, `
		SELECT `+jobColumns+`
		FROM retry_jobs
		WHERE status = 'pending' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC, created_at ASC
		LIMIT $2`,
		now, limit,
	)
}

// ListStale implements Store.
func (p *Postgres) ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*Job, error) {
	return p.query(ctx, `
		SELECT `+jobColumns+`
		FROM retry_jobs
		WHERE status = 'in_progress' AND last_attempt < $1
		ORDER BY last_attempt ASC
		LIMIT $2`,
		claimedBefore, limit,
	)
}

// List implements Store.
func (p *Postgres) List(ctx context.Context, f Filter) ([]*Job, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("job_type = $%d", f.Type)
	}
	if f.ReferenceID != "" {
		add("reference_id = $%d", f.ReferenceID)
	}

	query := `SELECT ` + jobColumns + ` FROM retry_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	return p.query(ctx, query, args...)
}

// Claim implements Store.
func (p *Postgres) Claim(ctx context.Context, id uuid.UUID, at time.Time) (*Job, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE retry_jobs
		SET status = 'in_progress',
			last_attempt = $2,
			updated_at = $2
		WHERE id = $1
			AND status = 'pending'
		RETURNING `+jobColumns,
		id, at,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := p.exists(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("job: claim: %w", err)
	}
	return j, nil
}

// Complete implements Store.
func (p *Postgres) Complete(ctx context.Context, id uuid.UUID, at time.Time, result string) (*Job, error) {
	return p.transition(ctx, id, `
		UPDATE retry_jobs
		SET status = 'completed',
			last_result = $3,
			updated_at = $2
		WHERE id = $1
			AND status = 'in_progress'
		RETURNING `+jobColumns,
		at, result,
	)
}

// Fail implements Store. The retry ceiling is evaluated against the stored
// counters inside the UPDATE, so the decision and the write are one statement.
func (p *Postgres) Fail(ctx context.Context, id uuid.UUID, at time.Time, errMsg string, nextRetryAt time.Time) (*Job, error) {
	return p.transition(ctx, id, `
		UPDATE retry_jobs
		SET retry_count = LEAST(retry_count + 1, max_retries),
			status = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
			next_retry_at = CASE WHEN retry_count + 1 < max_retries THEN $4 ELSE next_retry_at END,
			last_error = $3,
			updated_at = $2
		WHERE id = $1
			AND status = 'in_progress'
		RETURNING `+jobColumns,
		at, errMsg, nextRetryAt,
	)
}

// Cancel implements Store.
func (p *Postgres) Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason string) (*Job, error) {
	return p.transition(ctx, id, `
		UPDATE retry_jobs
		SET status = 'cancelled',
			last_error = $3,
			updated_at = $2
		WHERE id = $1
			AND status IN ('pending', 'in_progress')
		RETURNING `+jobColumns,
		at, reason,
	)
}

// transition runs a conditional UPDATE ... RETURNING. The first two
// placeholders are always the job id and the transition time.
func (p *Postgres) transition(ctx context.Context, id uuid.UUID, query string, at time.Time, args ...any) (*Job, error) {
	row := p.pool.QueryRow(ctx, query, append([]any{id, at}, args...)...)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := p.exists(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("job: transition: %w", err)
	}
	return j, nil
}

func (p *Postgres) exists(ctx context.Context, id uuid.UUID) error {
	var found bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM retry_jobs WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return fmt.Errorf("job: lookup: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) query(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job: query: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: rows: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j       Job
		status  string
		payload []byte
	)
	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.ReferenceID,
		&payload,
		&j.RetryCount,
		&j.MaxRetries,
		&j.LastAttempt,
		&j.NextRetryAt,
		&status,
		&j.LastError,
		&j.LastResult,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.Payload = payload
	return &j, nil
}

var (
	_ Store   = (*Postgres)(nil)
	_ TxStore = (*Postgres)(nil)
)
