// Package testdb provisions throwaway Postgres schemas for integration tests.
package testdb

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trekpay/migrations"
	"github.com/dmitrymomot/trekpay/pkg/db"
)

// EnvURL names the variable holding the test database URL.
const EnvURL = "TEST_DATABASE_URL"

// goose keeps its settings in package globals.
var migrateMu sync.Mutex

// New returns a pool bound to a fresh, migrated schema that is dropped when
// the test ends. The test is skipped when TEST_DATABASE_URL is not set.
func New(t testing.TB) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s is not set", EnvURL)
	}

	ctx := context.Background()
	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrateMu.Lock()
	defer migrateMu.Unlock()
	require.NoError(t, db.Migrate(ctx, pool, migrations.FS, "goose_db_version", nil))

	return pool
}
