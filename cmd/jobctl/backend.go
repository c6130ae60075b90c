package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/trekpay/internal/config"
	"github.com/dmitrymomot/trekpay/migrations"
	"github.com/dmitrymomot/trekpay/pkg/db"
	"github.com/dmitrymomot/trekpay/pkg/gateway"
	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/logger"
	"github.com/dmitrymomot/trekpay/pkg/metrics"
	"github.com/dmitrymomot/trekpay/pkg/paytoken"
	"github.com/dmitrymomot/trekpay/pkg/redis"
)

// backend provides what the commands operate on. Connections are opened on
// first use so that commands like validate-token work without a database.
type backend interface {
	Queue(ctx context.Context) (*job.Queue, error)
	Reaper(ctx context.Context) (*job.Reaper, error)
	Validator(ctx context.Context) (*paytoken.Validator, error)
	Stats(ctx context.Context, jobTypes ...string) (metrics.Snapshot, error)
	Migrate(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
	Close()
}

type liveBackend struct {
	mu    sync.Mutex
	cfg   *config.Config
	log   *slog.Logger
	pool  *pgxpool.Pool
	rdb   goredis.UniversalClient
	queue *job.Queue
}

func newLiveBackend() *liveBackend {
	return &liveBackend{}
}

func (b *liveBackend) config() (*config.Config, error) {
	if b.cfg != nil {
		return b.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	b.cfg = cfg
	b.log = logger.New(cfg.Log)
	return cfg, nil
}

func (b *liveBackend) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg.DB, b.log)
	if err != nil {
		return nil, err
	}
	b.pool = pool
	return pool, nil
}

// redis returns nil when Redis is not configured.
func (b *liveBackend) redis(ctx context.Context) (goredis.UniversalClient, error) {
	if b.rdb != nil {
		return b.rdb, nil
	}
	cfg, err := b.config()
	if err != nil || !cfg.Redis.Enabled() {
		return nil, err
	}
	rdb, err := redis.Open(ctx, cfg.Redis, b.log)
	if err != nil {
		return nil, err
	}
	b.rdb = rdb
	return rdb, nil
}

func (b *liveBackend) Queue(ctx context.Context) (*job.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue != nil {
		return b.queue, nil
	}
	pool, err := b.postgres(ctx)
	if err != nil {
		return nil, err
	}
	rdb, err := b.redis(ctx)
	if err != nil {
		return nil, err
	}
	store, err := job.NewPostgres(pool)
	if err != nil {
		return nil, err
	}

	opts := []job.QueueOption{
		job.WithBackoff(job.NewBackoff(b.cfg.Worker.BackoffBase, b.cfg.Worker.BackoffMax)),
		job.WithDefaultMaxRetries(b.cfg.Worker.MaxRetries),
		job.WithQueueLogger(b.log),
	}
	if rdb != nil {
		opts = append(opts, job.WithMetrics(metrics.NewRedis(rdb, metrics.WithLogger(b.log))))
	}
	q, err := job.NewQueue(store, opts...)
	if err != nil {
		return nil, err
	}
	b.queue = q
	return q, nil
}

func (b *liveBackend) Reaper(ctx context.Context) (*job.Reaper, error) {
	q, err := b.Queue(ctx)
	if err != nil {
		return nil, err
	}
	return job.NewReaper(q,
		job.WithSchedule(b.cfg.Worker.ReaperCron),
		job.WithClaimTimeout(b.cfg.Worker.ClaimTimeout),
		job.WithReaperLogger(b.log),
	)
}

func (b *liveBackend) Validator(ctx context.Context) (*paytoken.Validator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.config()
	if err != nil {
		return nil, err
	}
	opts := []paytoken.Option{
		paytoken.WithMinLength(cfg.Token.MinLength),
		paytoken.WithLookupTimeout(cfg.Token.LookupTimeout),
		paytoken.WithLogger(b.log),
	}
	if cfg.Token.Remote && cfg.Gateway.Configured() {
		gw, err := gateway.New(cfg.Gateway, gateway.WithLogger(b.log))
		if err != nil {
			return nil, err
		}
		opts = append(opts, paytoken.WithVerifier(gw))
	}
	return paytoken.New(opts...), nil
}

func (b *liveBackend) Stats(ctx context.Context, jobTypes ...string) (metrics.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rdb, err := b.redis(ctx)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return nil, errRedisRequired
	}
	return metrics.NewRedis(rdb).Snapshot(ctx, jobTypes...)
}

func (b *liveBackend) Migrate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, err := b.postgres(ctx)
	if err != nil {
		return err
	}
	return db.Migrate(ctx, pool, migrations.FS, b.cfg.DB.MigrationsTable, b.log)
}

func (b *liveBackend) Version(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, err := b.postgres(ctx)
	if err != nil {
		return 0, err
	}
	return db.Version(ctx, pool, migrations.FS, b.cfg.DB.MigrationsTable)
}

func (b *liveBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
