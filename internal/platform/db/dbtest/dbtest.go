// Package dbtest opens a migrated Postgres database for integration tests.
// Tests are skipped unless KITCHENLEDGER_TEST_PG_DSN is set.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/kitchenledger/kitchenledger/internal/platform/db"
)

// EnvDSN names the variable holding the integration database DSN.
const EnvDSN = "KITCHENLEDGER_TEST_PG_DSN"

// Open migrates the database to the latest schema, empties every table and
// returns a pool closed at test cleanup.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}

	mg, err := db.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	require.NoError(t, mg.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE invoice_items, invoices, products, product_units, suppliers, idempotency_keys CASCADE`)
	require.NoError(t, err)
	return pool
}
