package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 10
	defaultTimeout   = 30 * time.Second
)

// TickStats summarizes one polling pass.
type TickStats struct {
	Due       int // jobs returned by DequeueDue
	Skipped   int // lost the claim to another worker
	Succeeded int
	Retried   int // failed, rescheduled
	Failed    int // failed, retries exhausted
	Cancelled int // unknown type or permanent error
	Errors    int // store errors while processing
}

// Worker polls a Queue for due jobs and dispatches them to handlers by type.
// Jobs within a tick are processed sequentially in due order.
type Worker struct {
	queue       *Queue
	registry    *handlerRegistry
	logger      *slog.Logger
	onExhausted func(context.Context, *Job)
	interval    time.Duration
	timeout     time.Duration
	batchSize   int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker draining q.
//
// Example:
//
//	w, err := job.NewWorker(q,
//	    job.WithTask[billing.ChargePayload](billing.NewChargeHandler(gw, ledger)),
//	    job.WithInterval(30*time.Second),
//	    job.WithLogger(log),
//	)
func NewWorker(q *Queue, opts ...WorkerOption) (*Worker, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}

	w := &Worker{
		queue:     q,
		registry:  newHandlerRegistry(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:  defaultInterval,
		timeout:   defaultTimeout,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the polling loop in the background. The first tick runs
// immediately. ctx is used only for its values; call Stop to end the loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go func(done chan struct{}) {
		defer close(done)
		w.loop(loopCtx)
	}(w.done)

	w.logger.InfoContext(ctx, "job worker started",
		slog.Any("job_types", w.registry.types()),
		slog.Duration("interval", w.interval),
		slog.Int("batch_size", w.batchSize),
	)
	return nil
}

// Stop ends the polling loop and waits for the job in flight to finish,
// or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		w.logger.InfoContext(ctx, "job worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job: stop worker: %w", ctx.Err())
	}
}

// Run polls until ctx is cancelled. It is the blocking alternative to
// Start and Stop; the job in flight when ctx ends is allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.loop(ctx)
	return nil
}

// Running reports whether the polling loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "job worker tick abandoned", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs a single polling pass: it fetches up to the batch size of due
// jobs and processes each in order. An error is returned only when the due
// jobs cannot be fetched; failures of individual jobs are logged and
// counted in the stats.
func (w *Worker) Tick(ctx context.Context) (TickStats, error) {
	var stats TickStats

	jobs, err := w.queue.DequeueDue(ctx, w.batchSize)
	if err != nil {
		return stats, fmt.Errorf("job: dequeue due: %w", err)
	}
	stats.Due = len(jobs)

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		w.process(ctx, j, &stats)
	}

	if stats.Due > 0 {
		w.logger.DebugContext(ctx, "job worker tick",
			slog.Int("due", stats.Due),
			slog.Int("succeeded", stats.Succeeded),
			slog.Int("retried", stats.Retried),
			slog.Int("failed", stats.Failed),
			slog.Int("cancelled", stats.Cancelled),
			slog.Int("skipped", stats.Skipped),
		)
	}
	return stats, nil
}

func (w *Worker) process(ctx context.Context, due *Job, stats *TickStats) {
	j, err := w.queue.MarkInProgress(ctx, due.ID)
	if errors.Is(err, ErrAlreadyClaimed) {
		stats.Skipped++
		w.logger.DebugContext(ctx, "job already claimed", slog.String("job_id", due.ID.String()))
		return
	}
	if err != nil {
		stats.Errors++
		w.logger.ErrorContext(ctx, "claim job",
			slog.String("job_id", due.ID.String()),
			slog.Any("error", err),
		)
		return
	}

	// Transitions after the handler returns must land even if the worker is
	// stopping, otherwise the job stays in_progress until the reaper runs.
	jctx := withJob(context.WithoutCancel(ctx), j)
	w.queue.metrics.IncAttempted(jctx, j.Type)

	h, ok := w.registry.get(j.Type)
	if !ok {
		w.logger.WarnContext(jctx, "no handler for job type, cancelling")
		if _, err := w.queue.Cancel(jctx, j.ID, fmt.Sprintf("%s: %s", ErrUnknownJobType, j.Type)); err != nil {
			stats.Errors++
			w.logger.ErrorContext(jctx, "cancel job", slog.Any("error", err))
			return
		}
		stats.Cancelled++
		return
	}

	w.logger.DebugContext(jctx, "executing job",
		slog.Int("retry_count", j.RetryCount),
		slog.String("reference_id", j.ReferenceID),
	)

	result, herr := w.execute(jctx, h, j)
	switch {
	case herr == nil:
		w.queue.metrics.IncSucceeded(jctx, j.Type)
		if _, err := w.queue.Complete(jctx, j.ID, result); err != nil {
			stats.Errors++
			w.logger.ErrorContext(jctx, "complete job", slog.Any("error", err))
			return
		}
		stats.Succeeded++
		w.logger.InfoContext(jctx, "job completed", slog.String("result", result))

	case IsPermanent(herr):
		if _, err := w.queue.Cancel(jctx, j.ID, herr.Error()); err != nil {
			stats.Errors++
			w.logger.ErrorContext(jctx, "cancel job", slog.Any("error", err))
			return
		}
		stats.Cancelled++
		w.logger.WarnContext(jctx, "job cancelled", slog.Any("error", herr))

	default:
		w.queue.metrics.IncFailed(jctx, j.Type)
		updated, err := w.queue.fail(jctx, j.ID, herr.Error(), RetryCount(j.RetryCount))
		if err != nil {
			stats.Errors++
			w.logger.ErrorContext(jctx, "fail job", slog.Any("error", err), slog.Any("cause", herr))
			return
		}
		if updated.Status == StatusPending {
			stats.Retried++
			w.logger.WarnContext(jctx, "job failed, retry scheduled",
				slog.Any("error", herr),
				slog.Int("retry_count", updated.RetryCount),
				slog.Time("next_retry_at", updated.NextRetryAt),
			)
			return
		}
		stats.Failed++
		w.logger.ErrorContext(jctx, "job failed, retries exhausted",
			slog.Any("error", herr),
			slog.Int("retry_count", updated.RetryCount),
		)
		if w.onExhausted != nil {
			w.onExhausted(jctx, updated)
		}
	}
}

type handlerResult struct {
	result string
	err    error
}

// execute runs h under the per-job timeout. A handler that ignores its
// context is abandoned when the timeout fires, unless it called Commit.
func (w *Worker) execute(ctx context.Context, h Handler, j *Job) (string, error) {
	a := &attempt{}
	hctx, cancel := context.WithTimeout(context.WithValue(ctx, attemptContextKey{}, a), w.timeout)
	defer cancel()

	ch := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- handlerResult{err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			}
		}()
		result, err := h.Handle(hctx, j)
		ch <- handlerResult{result: result, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) && !IsPermanent(res.err) {
			return "", errors.Join(ErrHandlerTimeout, res.err)
		}
		return res.result, res.err
	case <-hctx.Done():
		if a.state.CompareAndSwap(attemptRunning, attemptAbandoned) {
			return "", fmt.Errorf("%w after %s", ErrHandlerTimeout, w.timeout)
		}
		w.logger.WarnContext(ctx, "job handler committed, waiting past timeout", slog.Duration("timeout", w.timeout))
		res := <-ch
		return res.result, res.err
	}
}

// StartFunc returns a startup function for the worker.
func (w *Worker) StartFunc() func(context.Context) error {
	return func(ctx context.Context) error {
		return w.Start(ctx)
	}
}

// Shutdown returns a shutdown function for the worker.
func (w *Worker) Shutdown() func(context.Context) error {
	return func(ctx context.Context) error {
		return w.Stop(ctx)
	}
}
