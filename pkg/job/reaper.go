package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultReaperSchedule = "*/5 * * * *"
	defaultClaimTimeout   = 10 * time.Minute
	reaperBatchSize       = 100

	// ClaimExpired is recorded as LastError on jobs recovered by the reaper.
	ClaimExpired = "claim expired"
)

// Reaper recovers jobs whose worker died between claim and completion.
// A job left in_progress longer than the claim timeout is failed through
// the regular retry path, so it is either rescheduled or marked failed
// according to its retry budget.
//
// The claim timeout must be well above the worker handler timeout, or a
// slow but live attempt may be retried concurrently.
type Reaper struct {
	queue        *Queue
	logger       *slog.Logger
	schedule     string
	claimTimeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReaper creates a reaper for q. The schedule is validated here.
func NewReaper(q *Queue, opts ...ReaperOption) (*Reaper, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}

	r := &Reaper{
		queue:        q,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		schedule:     defaultReaperSchedule,
		claimTimeout: defaultClaimTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := parseCronSchedule(r.schedule); err != nil {
		return nil, err
	}
	return r, nil
}

// Sweep fails every job claimed before now minus the claim timeout and
// returns how many were recovered. Jobs that finish concurrently are skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.queue.now().Add(-r.claimTimeout)
	stale, err := r.queue.store.ListStale(ctx, cutoff, reaperBatchSize)
	if err != nil {
		return 0, fmt.Errorf("job: list stale: %w", err)
	}

	recovered := 0
	for _, j := range stale {
		updated, err := r.queue.fail(ctx, j.ID, ClaimExpired, RetryCount(j.RetryCount))
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "recover stale job",
				slog.String("job_id", j.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		recovered++
		r.logger.WarnContext(ctx, "stale job recovered",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("status", string(updated.Status)),
			slog.Time("claimed_at", derefTime(j.LastAttempt)),
		)
	}
	return recovered, nil
}

// Start schedules Sweep on the cron expression.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return ErrAlreadyStarted
	}

	schedule, err := parseCronSchedule(r.schedule)
	if err != nil {
		return err
	}

	sweepCtx := context.WithoutCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := r.Sweep(sweepCtx); err != nil {
			r.logger.ErrorContext(sweepCtx, "reaper sweep", slog.Any("error", err))
		}
	}))
	c.Start()
	r.cron = c

	r.logger.InfoContext(ctx, "job reaper started",
		slog.String("schedule", r.schedule),
		slog.Duration("claim_timeout", r.claimTimeout),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return ErrNotStarted
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job: stop reaper: %w", ctx.Err())
	}
}

// StartFunc returns a startup function for the reaper.
func (r *Reaper) StartFunc() func(context.Context) error {
	return r.Start
}

// Shutdown returns a shutdown function for the reaper.
func (r *Reaper) Shutdown() func(context.Context) error {
	return r.Stop
}

func parseCronSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("%q: %w", expr, err))
	}
	return schedule, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
