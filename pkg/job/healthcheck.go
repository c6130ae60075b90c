package job

import (
	"context"
	"errors"
)

// ErrHealthcheckFailed is returned when the worker health check fails.
var ErrHealthcheckFailed = errors.New("job: healthcheck failed")

var (
	errWorkerNil        = errors.New("worker is nil")
	errWorkerNotRunning = errors.New("worker not running")
)

// Healthcheck returns a health check function for the worker.
// The check verifies that the polling loop is running and that the queue
// store answers a due-jobs query.
// Compatible with health.CheckFunc.
//
// Example:
//
//	health.WithReadinessCheck("worker", job.Healthcheck(worker))
func Healthcheck(w *Worker) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if w == nil {
			return errors.Join(ErrHealthcheckFailed, errWorkerNil)
		}

		if !w.Running() {
			return errors.Join(ErrHealthcheckFailed, errWorkerNotRunning)
		}

		if _, err := w.queue.store.ListDue(ctx, w.queue.now(), 1); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}

		return nil
	}
}
