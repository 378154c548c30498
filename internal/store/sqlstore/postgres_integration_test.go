//go:build integration

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"contactlink/internal/config"
	"contactlink/internal/database"
	"contactlink/internal/store/storetest"
	"contactlink/internal/testutil/containers"
)

// newPostgresDB connects with the given driver and empties the contacts table.
func newPostgresDB(t *testing.T, driver string) *database.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:       driver,
		URL:          containers.PostgresDSN(t),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
	db, err := database.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Conn.Exec(`TRUNCATE contacts RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func TestStore_Postgres(t *testing.T) {
	for _, driver := range []string{config.DriverPostgres, config.DriverPgx} {
		t.Run(driver, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) storetest.Fixture {
				db := newPostgresDB(t, driver)
				return storetest.Fixture{Store: New(db), SoftDelete: softDeleter(db)}
			})
		})
	}
}
