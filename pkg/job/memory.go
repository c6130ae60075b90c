package job

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store guarded by a single mutex.
// It honors the same conditional-transition contract as the Postgres store
// and is meant for tests and local development.
type Memory struct {
	jobs map[uuid.UUID]*Job
	mu   sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[uuid.UUID]*Job)}
}

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j.clone()
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

// ListDue implements Store.
func (m *Memory) ListDue(_ context.Context, now time.Time, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Job
	for _, j := range m.jobs {
		if j.Due(now) {
			due = append(due, j)
		}
	}
	slices.SortFunc(due, func(a, b *Job) int {
		if c := a.NextRetryAt.Compare(b.NextRetryAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return cloneN(due, limit), nil
}

// ListStale implements Store.
func (m *Memory) ListStale(_ context.Context, claimedBefore time.Time, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*Job
	for _, j := range m.jobs {
		if j.Status == StatusInProgress && j.LastAttempt != nil && j.LastAttempt.Before(claimedBefore) {
			stale = append(stale, j)
		}
	}
	slices.SortFunc(stale, func(a, b *Job) int {
		return a.LastAttempt.Compare(*b.LastAttempt)
	})
	return cloneN(stale, limit), nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, f Filter) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, j := range m.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.ReferenceID != "" && j.ReferenceID != f.ReferenceID {
			continue
		}
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b *Job) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return cloneN(out, f.limit()), nil
}

// Claim implements Store.
func (m *Memory) Claim(_ context.Context, id uuid.UUID, at time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusPending {
		return nil, ErrAlreadyClaimed
	}
	j.Status = StatusInProgress
	j.LastAttempt = &at
	j.UpdatedAt = at
	return j.clone(), nil
}

// Complete implements Store.
func (m *Memory) Complete(_ context.Context, id uuid.UUID, at time.Time, result string) (*Job, error) {
	return m.update(id, []Status{StatusInProgress}, func(j *Job) {
		j.Status = StatusCompleted
		j.LastResult = result
		j.UpdatedAt = at
	})
}

// Fail implements Store.
func (m *Memory) Fail(_ context.Context, id uuid.UUID, at time.Time, errMsg string, nextRetryAt time.Time) (*Job, error) {
	return m.update(id, []Status{StatusInProgress}, func(j *Job) {
		j.RetryCount, j.Status = failOutcome(j.RetryCount, j.MaxRetries)
		if j.Status == StatusPending {
			j.NextRetryAt = nextRetryAt
		}
		j.LastError = errMsg
		j.UpdatedAt = at
	})
}

// Cancel implements Store.
func (m *Memory) Cancel(_ context.Context, id uuid.UUID, at time.Time, reason string) (*Job, error) {
	return m.update(id, []Status{StatusPending, StatusInProgress}, func(j *Job) {
		j.Status = StatusCancelled
		j.LastError = reason
		j.UpdatedAt = at
	})
}

func (m *Memory) update(id uuid.UUID, from []Status, apply func(*Job)) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(from, j.Status) {
		return nil, ErrInvalidTransition
	}
	apply(j)
	return j.clone(), nil
}

func cloneN(jobs []*Job, limit int) []*Job {
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	out := make([]*Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.clone()
	}
	return out
}

var _ Store = (*Memory)(nil)
