package job

import "errors"

// Job errors.
var (
	// ErrNotFound is returned when no job exists for the given id.
	ErrNotFound = errors.New("job: not found")

	// ErrAlreadyClaimed is returned by MarkInProgress when the job is no longer
	// pending, usually because another worker claimed it first.
	ErrAlreadyClaimed = errors.New("job: already claimed")

	// ErrInvalidTransition is returned when a state change would violate
	// the job state machine (e.g. completing a terminal job).
	ErrInvalidTransition = errors.New("job: invalid state transition")

	// ErrInvalidJobType is returned when enqueueing a job without a type.
	ErrInvalidJobType = errors.New("job: invalid job type")

	// ErrInvalidPayload is returned when a job payload cannot be
	// marshaled or unmarshaled into the expected type.
	ErrInvalidPayload = errors.New("job: invalid payload")

	// ErrUnknownJobType is recorded on jobs cancelled because no handler
	// is registered for their type.
	ErrUnknownJobType = errors.New("job: unknown job type")

	// ErrStoreRequired is returned when a queue is created without a store.
	ErrStoreRequired = errors.New("job: store is required")

	// ErrQueueRequired is returned when a worker or reaper is created without a queue.
	ErrQueueRequired = errors.New("job: queue is required")

	// ErrTxUnsupported is returned by EnqueueTx when the store cannot
	// participate in a caller-owned transaction.
	ErrTxUnsupported = errors.New("job: store does not support transactions")

	// ErrHandlerTimeout wraps handler errors caused by the per-job timeout.
	ErrHandlerTimeout = errors.New("job: handler timed out")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("job: handler panicked")

	// ErrAlreadyStarted is returned when starting a worker or reaper twice.
	ErrAlreadyStarted = errors.New("job: already started")

	// ErrNotStarted is returned when stopping a worker or reaper that is not running.
	ErrNotStarted = errors.New("job: not started")

	// ErrInvalidSchedule is returned for malformed cron expressions.
	ErrInvalidSchedule = errors.New("job: invalid schedule")
)

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as structural: the worker cancels the job instead of
// scheduling a retry. Returns nil when err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
