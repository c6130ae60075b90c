package metrics

import (
	"context"
	"maps"
	"sync"

	"github.com/dmitrymomot/trekpay/pkg/job"
)

// Counter names shared by every sink.
const (
	Enqueued  = "enqueued"
	Attempted = "attempted"
	Succeeded = "succeeded"
	Failed    = "failed"
)

// Snapshot maps job type to counter name to value.
type Snapshot map[string]map[string]int64

// Get returns one counter, zero when absent.
func (s Snapshot) Get(jobType, counter string) int64 {
	return s[jobType][counter]
}

// Counters is an in-memory job.Metrics.
type Counters struct {
	mu     sync.Mutex
	values Snapshot
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(Snapshot)}
}

func (c *Counters) inc(jobType, counter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.values[jobType]
	if !ok {
		byType = make(map[string]int64)
		c.values[jobType] = byType
	}
	byType[counter]++
}

func (c *Counters) IncEnqueued(_ context.Context, jobType string)  { c.inc(jobType, Enqueued) }
func (c *Counters) IncAttempted(_ context.Context, jobType string) { c.inc(jobType, Attempted) }
func (c *Counters) IncSucceeded(_ context.Context, jobType string) { c.inc(jobType, Succeeded) }
func (c *Counters) IncFailed(_ context.Context, jobType string)    { c.inc(jobType, Failed) }

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(Snapshot, len(c.values))
	for jobType, byType := range c.values {
		out[jobType] = maps.Clone(byType)
	}
	return out
}

var _ job.Metrics = (*Counters)(nil)
