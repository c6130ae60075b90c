// Command chargeworker drains the charge-retry queue.
//
// It polls retry_jobs for due charges, charges saved payment methods through
// the payment gateway, records captured payments and recovers jobs whose
// worker died mid-charge. Probe endpoints are served on PROBE_ADDR.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/trekpay/internal/app"
	"github.com/dmitrymomot/trekpay/internal/config"
	"github.com/dmitrymomot/trekpay/migrations"
	"github.com/dmitrymomot/trekpay/pkg/billing"
	"github.com/dmitrymomot/trekpay/pkg/db"
	"github.com/dmitrymomot/trekpay/pkg/gateway"
	"github.com/dmitrymomot/trekpay/pkg/health"
	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/logger"
	"github.com/dmitrymomot/trekpay/pkg/metrics"
	"github.com/dmitrymomot/trekpay/pkg/notify"
	"github.com/dmitrymomot/trekpay/pkg/paytoken"
	"github.com/dmitrymomot/trekpay/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log, logger.Extractors(job.LogExtractors()...)...)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	hooks := []app.Option{app.ShutdownHook(db.Shutdown(pool))}

	var rdb goredis.UniversalClient
	abort := func(err error) error {
		if rdb != nil {
			_ = rdb.Close()
		}
		pool.Close()
		return err
	}

	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, pool, migrations.FS, cfg.DB.MigrationsTable, log); err != nil {
			return abort(err)
		}
	}

	if cfg.Redis.Enabled() {
		if rdb, err = redis.Open(ctx, cfg.Redis, log); err != nil {
			return abort(err)
		}
		hooks = append(hooks, app.ShutdownHook(redis.Shutdown(rdb)))
	}
	hooks = append(hooks, app.ShutdownHook(logger.Flush()))

	w, reaper, err := newWorker(cfg, pool, rdb, log)
	if err != nil {
		return abort(err)
	}

	checks := health.Checks{
		"postgres": db.Healthcheck(pool),
		"worker":   job.Healthcheck(w),
	}
	if rdb != nil {
		checks["redis"] = redis.Healthcheck(rdb)
	}
	prober := health.NewProber(checks, health.WithLogger(log))

	opts := append([]app.Option{
		app.Address(cfg.App.ProbeAddr),
		app.Handler(health.Router(prober)),
		app.Logger(log),
		app.ShutdownTimeout(cfg.App.ShutdownTimeout),
		app.Service("charge worker", w.StartFunc(), w.Shutdown()),
		app.Service("stale claim reaper", reaper.StartFunc(), reaper.Shutdown()),
	}, hooks...)

	return app.New(opts...).Run()
}

// newWorker assembles the queue, the charge handler and its collaborators.
func newWorker(cfg *config.Config, pool *pgxpool.Pool, rdb goredis.UniversalClient, log *slog.Logger) (*job.Worker, *job.Reaper, error) {
	store, err := job.NewPostgres(pool)
	if err != nil {
		return nil, nil, err
	}

	var sink job.Metrics = metrics.NewCounters()
	if rdb != nil {
		sink = metrics.NewRedis(rdb, metrics.WithLogger(log))
	}

	q, err := job.NewQueue(store,
		job.WithBackoff(job.NewBackoff(cfg.Worker.BackoffBase, cfg.Worker.BackoffMax)),
		job.WithDefaultMaxRetries(cfg.Worker.MaxRetries),
		job.WithMetrics(sink),
		job.WithQueueLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	gw, err := gateway.New(cfg.Gateway, gateway.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	ledger, err := billing.NewPostgresLedger(pool)
	if err != nil {
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.NewLog(log)
	if cfg.Notify.Enabled() {
		email, err := notify.NewEmail(cfg.Notify)
		if err != nil {
			return nil, nil, err
		}
		notifier = notify.Multi{notifier, email}
	}

	handler, err := billing.NewChargeHandler(gw, ledger,
		billing.WithNotifier(notifier),
		billing.WithTokenValidator(newTokenValidator(cfg.Token, gw, rdb, log)),
		billing.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	w, err := job.NewWorker(q,
		job.WithTask[billing.ChargePayload](handler),
		job.WithExhaustedHook(handler.OnExhausted),
		job.WithInterval(cfg.Worker.Interval),
		job.WithBatchSize(cfg.Worker.BatchSize),
		job.WithTimeout(cfg.Worker.Timeout),
		job.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	reaper, err := job.NewReaper(q,
		job.WithSchedule(cfg.Worker.ReaperCron),
		job.WithClaimTimeout(cfg.Worker.ClaimTimeout),
		job.WithReaperLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	return w, reaper, nil
}

func newTokenValidator(cfg config.Token, gw *gateway.Client, rdb goredis.UniversalClient, log *slog.Logger) *paytoken.Validator {
	var cache paytoken.Cache = paytoken.NewMemoryCache()
	if rdb != nil {
		cache = paytoken.NewRedisCache(rdb)
	}

	opts := []paytoken.Option{
		paytoken.WithMinLength(cfg.MinLength),
		paytoken.WithCache(cache, cfg.CacheTTL),
		paytoken.WithLookupTimeout(cfg.LookupTimeout),
		paytoken.WithLogger(log),
	}
	if cfg.Remote {
		opts = append(opts, paytoken.WithVerifier(gw))
	}
	return paytoken.New(opts...)
}
