package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"github.com/pressly/goose/v3"

	"contactlink/internal/config"
)

//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrations embed.FS

const sqliteDefaultParams = "_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

// DB wraps the sql.DB connection
type DB struct {
	Conn   *sql.DB
	Driver string
}

// New opens a database connection, checks it and applies pending migrations.
func New(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	dsn := cfg.URL
	if cfg.Driver == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One connection keeps in-memory databases alive and serializes writers.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{Conn: conn, Driver: cfg.Driver}

	if err := db.runMigrations(ctx, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.InfoContext(ctx, "database initialized", slog.String("driver", cfg.Driver))
	return db, nil
}

// IsPostgres reports whether the connection speaks the PostgreSQL dialect.
func (db *DB) IsPostgres() bool {
	return db.Driver == config.DriverPostgres || db.Driver == config.DriverPgx
}

// runMigrations applies the embedded goose migrations for the active dialect.
func (db *DB) runMigrations(ctx context.Context, log *slog.Logger) error {
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite3"
	if db.IsPostgres() {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db.Conn, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.DebugContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Ping verifies the connection is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.Conn.Close()
}

// sqliteDSN adds busy-timeout, foreign-key and immediate-lock defaults
// unless the caller already supplied connection parameters.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?" + sqliteDefaultParams
}
