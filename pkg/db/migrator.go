package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/trekpay/pkg/logger"
)

// Migrate applies all pending goose migrations found at the root of fsys.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, table string, log *slog.Logger) error {
	if err := setupGoose(fsys, table, log); err != nil {
		return err
	}

	// The *sql.DB shares the pool's connections and must not be closed here.
	if err := goose.UpContext(ctx, stdlib.OpenDBFromPool(pool), "."); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, table string) (int64, error) {
	if err := setupGoose(fsys, table, nil); err != nil {
		return 0, err
	}

	v, err := goose.GetDBVersionContext(ctx, stdlib.OpenDBFromPool(pool))
	if err != nil {
		return 0, errors.Join(ErrMigrationStatus, err)
	}
	return v, nil
}

func setupGoose(fsys fs.FS, table string, log *slog.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	goose.SetBaseFS(fsys)
	goose.SetLogger(&gooseLogger{log: log})
	if table != "" {
		goose.SetTableName(table)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...), slog.String("component", "migrations"))
}

// Fatalf logs only; goose returns the error to the caller as well.
func (g *gooseLogger) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...), slog.String("component", "migrations"))
}
