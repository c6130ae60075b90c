package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/logger"
)

const (
	defaultKeyPrefix    = "metrics:jobs:"
	defaultWriteTimeout = 500 * time.Millisecond
)

// Redis is a job.Metrics backed by Redis hashes.
type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// RedisOption configures the Redis sink.
type RedisOption func(*Redis)

// WithKeyPrefix sets the hash key prefix. Defaults to "metrics:jobs:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithLogger sets the logger for dropped writes.
func WithLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedis creates a Redis sink.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		logger:  logger.Nop(),
		prefix:  defaultKeyPrefix,
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(jobType string) string {
	return r.prefix + jobType
}

// incr runs outside the caller's cancellation with its own short timeout,
// so a counter is still recorded while the worker is stopping.
func (r *Redis) incr(ctx context.Context, jobType, counter string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.client.HIncrBy(ctx, r.key(jobType), counter, 1).Err(); err != nil {
		r.logger.WarnContext(ctx, "metrics write dropped",
			slog.String("counter", counter),
			slog.Any("error", err),
		)
	}
}

func (r *Redis) IncEnqueued(ctx context.Context, jobType string)  { r.incr(ctx, jobType, Enqueued) }
func (r *Redis) IncAttempted(ctx context.Context, jobType string) { r.incr(ctx, jobType, Attempted) }
func (r *Redis) IncSucceeded(ctx context.Context, jobType string) { r.incr(ctx, jobType, Succeeded) }
func (r *Redis) IncFailed(ctx context.Context, jobType string)    { r.incr(ctx, jobType, Failed) }

// Snapshot reads the counters of the given job types.
func (r *Redis) Snapshot(ctx context.Context, jobTypes ...string) (Snapshot, error) {
	out := make(Snapshot, len(jobTypes))
	for _, jobType := range jobTypes {
		raw, err := r.client.HGetAll(ctx, r.key(jobType)).Result()
		if err != nil {
			return nil, fmt.Errorf("metrics: read %s: %w", jobType, err)
		}
		byType := make(map[string]int64, len(raw))
		for name, v := range raw {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("metrics: parse %s.%s: %w", jobType, name, err)
			}
			byType[name] = n
		}
		out[jobType] = byType
	}
	return out, nil
}

var _ job.Metrics = (*Redis)(nil)
