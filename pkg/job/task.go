package job

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Handler processes one job. The returned string is stored as the job's
// LastResult on success. Errors marked with Permanent cancel the job; any
// other error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, j *Job) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j *Job) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j *Job) (string, error) {
	return f(ctx, j)
}

// handlerRegistry stores handlers by job type.
type handlerRegistry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[string]Handler),
	}
}

func (r *handlerRegistry) register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *handlerRegistry) get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// types returns the registered job types, sorted.
func (r *handlerRegistry) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// taskWrapper decodes the job payload into P and calls the typed task.
type taskWrapper[P any, T interface {
	Name() string
	Handle(context.Context, P) (string, error)
}] struct {
	task T
}

func newTaskWrapper[P any, T interface {
	Name() string
	Handle(context.Context, P) (string, error)
}](task T) *taskWrapper[P, T] {
	return &taskWrapper[P, T]{task: task}
}

// Handle implements Handler.
func (w *taskWrapper[P, T]) Handle(ctx context.Context, j *Job) (string, error) {
	var payload P
	if err := j.Decode(&payload); err != nil {
		return "", Permanent(err)
	}
	return w.task.Handle(ctx, payload)
}
