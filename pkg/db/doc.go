// Package db provides PostgreSQL plumbing for the charge worker: pool
// creation with startup retries, embedded goose migrations, a transaction
// helper and health/shutdown hooks.
//
// # Configuration
//
//	DATABASE_URL                - PostgreSQL connection URL (required)
//	DATABASE_MAX_CONNS          - Maximum pool connections (default: 5)
//	DATABASE_MIN_CONNS          - Minimum idle connections (default: 1)
//	DATABASE_HEALTHCHECK_PERIOD - Pool health check interval (default: 1m)
//	DATABASE_MAX_CONN_IDLE_TIME - Maximum connection idle time (default: 10m)
//	DATABASE_MAX_CONN_LIFETIME  - Maximum connection lifetime (default: 30m)
//	DATABASE_RETRY_ATTEMPTS     - Connection attempts at startup (default: 3)
//	DATABASE_RETRY_INTERVAL     - Base retry interval (default: 5s)
//	DATABASE_MIGRATIONS_TABLE   - Goose version table (default: goose_db_version)
//	DATABASE_AUTO_MIGRATE       - Apply migrations on startup (default: true)
//
// # Usage
//
//	pool, err := db.Connect(ctx, cfg.DB, log)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := db.Migrate(ctx, pool, migrations.FS, cfg.DB.MigrationsTable, log); err != nil {
//		return err
//	}
//
// Enqueue a job atomically with other writes:
//
//	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
//		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET state = 'renewing' WHERE id = $1`, subID); err != nil {
//			return err
//		}
//		_, err := billing.EnqueueChargeTx(ctx, queue, tx, payload)
//		return err
//	})
//
// Errors are wrapped with [errors.Join] around the sentinels in errors.go.
package db
