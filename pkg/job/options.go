package job

import (
	"context"
	"log/slog"
	"time"
)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBackoff sets the backoff used by Fail for RetryCount retries.
// Defaults to a 60s base with no cap.
//
// Example:
//
//	job.WithBackoff(job.NewBackoff(time.Minute, 6*time.Hour))
func WithBackoff(b *Backoff) QueueOption {
	return func(q *Queue) {
		if b != nil {
			q.backoff = b
		}
	}
}

// WithMetrics sets the sink for enqueued/attempted/succeeded/failed counters.
// If not set, counters are discarded.
func WithMetrics(m Metrics) QueueOption {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// WithQueueLogger sets the queue logger.
// If not set, a noop logger is used.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithDefaultMaxRetries sets the retry ceiling for jobs enqueued without
// WithMaxRetries. Defaults to DefaultMaxRetries.
func WithDefaultMaxRetries(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// withClock overrides the queue time source. Used by tests.
func withClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// enqueueConfig holds options for enqueueing a job.
type enqueueConfig struct {
	delay      time.Duration
	maxRetries int
}

// EnqueueOption configures job enqueueing.
type EnqueueOption func(*enqueueConfig)

// WithDelay postpones the first attempt by d.
//
// Example:
//
//	q.Enqueue(ctx, "charge", subID, payload, job.WithDelay(time.Hour))
func WithDelay(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithMaxRetries sets how many failed attempts the job tolerates before it
// is marked failed. Defaults to the queue's default ceiling.
//
// Example:
//
//	q.Enqueue(ctx, "charge", subID, payload, job.WithMaxRetries(3))
func WithMaxRetries(n int) EnqueueOption {
	return func(c *enqueueConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithHandler registers h for jobs of the given type.
// Registering the same type twice keeps the last handler.
func WithHandler(jobType string, h Handler) WorkerOption {
	return func(w *Worker) {
		if jobType != "" && h != nil {
			w.registry.register(jobType, h)
		}
	}
}

// WithTask registers a typed task handler using structural typing.
// The task must implement Name() and Handle(ctx, P) methods.
// P is the payload type of Handle and must be given explicitly, T is
// inferred from the argument. The job payload is decoded into P before
// Handle is called; a payload that cannot be decoded cancels the job.
//
// Example:
//
//	type Charge struct{ gw *gateway.Client }
//
//	func (t *Charge) Name() string { return "charge" }
//	func (t *Charge) Handle(ctx context.Context, p ChargePayload) (string, error) {
//	    pay, err := t.gw.Charge(ctx, p.Request())
//	    if err != nil {
//	        return "", err
//	    }
//	    return pay.ID, nil
//	}
//
//	job.WithTask[ChargePayload](&Charge{gw: gw})
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) (string, error)
}](task T) WorkerOption {
	return WithHandler(task.Name(), newTaskWrapper[P, T](task))
}

// WithInterval sets how often the worker polls for due jobs.
// Defaults to 30 seconds.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize sets how many due jobs one tick processes.
// Defaults to 10.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithTimeout bounds a single handler call.
// Defaults to 30 seconds.
func WithTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets the worker logger.
// If not set, a noop logger is used.
//
// Example:
//
//	job.WithLogger(slog.Default())
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExhaustedHook sets a callback invoked after a job reaches the failed
// state. The job passed to fn reflects the stored terminal state.
func WithExhaustedHook(fn func(context.Context, *Job)) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.onExhausted = fn
		}
	}
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithSchedule sets the reaper cron expression (5 fields: min hour day month weekday).
// Defaults to every five minutes.
func WithSchedule(expr string) ReaperOption {
	return func(r *Reaper) {
		if expr != "" {
			r.schedule = expr
		}
	}
}

// WithClaimTimeout sets how long a job may stay in_progress before the
// reaper treats its claim as abandoned. Defaults to 10 minutes.
func WithClaimTimeout(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.claimTimeout = d
		}
	}
}

// WithReaperLogger sets the reaper logger.
func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}
