package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry ceiling applied when Enqueue is called
// without WithMaxRetries.
const DefaultMaxRetries = 5

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusPending, StatusFailed, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Job is a durable unit of deferred work.
// Jobs are mutated only through Queue state transitions.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"job_type"`
	ReferenceID string          `json:"reference_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	NextRetryAt time.Time       `json:"next_retry_at"`
	Status      Status          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
	LastResult  string          `json:"last_result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Due reports whether the job can be claimed at now.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.NextRetryAt.After(now)
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.Join(ErrInvalidPayload, errors.New("empty payload"))
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return nil
}

func (j *Job) clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = slices.Clone(j.Payload)
	}
	if j.LastAttempt != nil {
		t := *j.LastAttempt
		c.LastAttempt = &t
	}
	return &c
}

type jobContextKey struct{}

// withJob attaches the job being processed to ctx.
func withJob(ctx context.Context, j *Job) context.Context {
	return context.WithValue(ctx, jobContextKey{}, j)
}

// FromContext returns the job currently being processed, if any.
// Handlers use it to reach the job id for idempotency keys.
func FromContext(ctx context.Context) (*Job, bool) {
	j, ok := ctx.Value(jobContextKey{}).(*Job)
	return j, ok && j != nil
}

const (
	attemptRunning int32 = iota
	attemptCommitted
	attemptAbandoned
)

// attempt tracks whether the worker may still abandon a running handler.
type attempt struct {
	state atomic.Int32
}

type attemptContextKey struct{}

// Commit marks the running attempt as past the point where it can be
// safely repeated, for example right before capturing a payment. After
// Commit the worker no longer gives up on the handler when the job timeout
// fires: it waits for the handler to return and records its result, so the
// handler must bound its remaining work itself.
//
// Commit returns ErrHandlerTimeout when the worker has already abandoned
// the attempt; the handler must then stop without side effects.
// Outside a worker Commit does nothing.
func Commit(ctx context.Context) error {
	a, ok := ctx.Value(attemptContextKey{}).(*attempt)
	if !ok {
		return nil
	}
	if a.state.CompareAndSwap(attemptRunning, attemptCommitted) || a.state.Load() == attemptCommitted {
		return nil
	}
	return ErrHandlerTimeout
}

// LogExtractors returns logger context extractors that add job_id and
// job_type to every record logged while a job is being processed.
// The signature matches logger.ContextExtractor.
func LogExtractors() []func(context.Context) (slog.Attr, bool) {
	return []func(context.Context) (slog.Attr, bool){
		func(ctx context.Context) (slog.Attr, bool) {
			if j, ok := FromContext(ctx); ok {
				return slog.String("job_id", j.ID.String()), true
			}
			return slog.Attr{}, false
		},
		func(ctx context.Context) (slog.Attr, bool) {
			if j, ok := FromContext(ctx); ok {
				return slog.String("job_type", j.Type), true
			}
			return slog.Attr{}, false
		},
	}
}
