package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/config"
	"contactlink/internal/database"
	"contactlink/internal/models"
	"contactlink/internal/store"
	"contactlink/internal/store/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, URL: ":memory:"}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// softDeleter returns a hook that marks a contact deleted with plain SQL.
func softDeleter(db *database.DB) func(t *testing.T, id int64) {
	return func(t *testing.T, id int64) {
		t.Helper()

		query := `UPDATE contacts SET deleted_at = ? WHERE id = ?`
		if db.IsPostgres() {
			query = `UPDATE contacts SET deleted_at = $1 WHERE id = $2`
		}
		_, err := db.Conn.Exec(query, time.Now().UTC(), id)
		require.NoError(t, err)
	}
}

func TestStore_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		db := newSQLiteDB(t)
		return storetest.Fixture{Store: New(db), SoftDelete: softDeleter(db)}
	})
}

func TestStore_Clock(t *testing.T) {
	db := newSQLiteDB(t)
	at := time.Date(2023, 4, 1, 0, 0, 0, 123456789, time.UTC)
	s := New(db, WithClock(func() time.Time { return at }))

	email := "marty@hillvalley.edu"
	c, err := s.Create(context.Background(), store.NewContact{Email: &email, LinkPrecedence: models.LinkPrecedencePrimary})
	require.NoError(t, err)

	want := at.Truncate(time.Microsecond)
	assert.True(t, want.Equal(c.CreatedAt), "got %s", c.CreatedAt)
	assert.True(t, want.Equal(c.UpdatedAt), "got %s", c.UpdatedAt)
}

func TestStore_CreateUnknownLinkedID(t *testing.T) {
	s := New(newSQLiteDB(t))

	missing := int64(999)
	_, err := s.Create(context.Background(), store.NewContact{
		LinkedID:       &missing,
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWhere(t *testing.T) {
	t.Parallel()

	email, phone := "a@example.com", "123"
	tests := []struct {
		name     string
		filter   store.Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "email only",
			filter:   store.ByEmailOrPhone(&email, nil),
			wantSQL:  "((email = ?) AND deleted_at IS NULL)",
			wantArgs: []any{email},
		},
		{
			name:     "email or phone",
			filter:   store.ByEmailOrPhone(&email, &phone),
			wantSQL:  "((email = ? OR phone_number = ?) AND deleted_at IS NULL)",
			wantArgs: []any{email, phone},
		},
		{
			name:     "group",
			filter:   store.ByGroup(1, 2),
			wantSQL:  "((id IN (?,?) OR linked_id IN (?,?)) AND deleted_at IS NULL)",
			wantArgs: []any{int64(1), int64(2), int64(1), int64(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sql, args, err := where(tt.filter).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestNew_PlaceholderByDialect(t *testing.T) {
	t.Parallel()

	email := "a@example.com"
	tests := []struct {
		driver  string
		wantSQL string
	}{
		{config.DriverSQLite, "SELECT id FROM contacts WHERE ((email = ?) AND deleted_at IS NULL)"},
		{config.DriverPostgres, "SELECT id FROM contacts WHERE ((email = $1) AND deleted_at IS NULL)"},
		{config.DriverPgx, "SELECT id FROM contacts WHERE ((email = $1) AND deleted_at IS NULL)"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s := New(&database.DB{Driver: tt.driver})

			sql, args, err := s.sb.Select("id").From(table).Where(where(store.ByEmailOrPhone(&email, nil))).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, []any{email}, args)
		})
	}
}
