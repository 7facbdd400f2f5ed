// Package sqlstore implements store.Backend on a SQL database: SQLite for the
// on-device store and PostgreSQL for server deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// Driver names accepted by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Store implements store.Backend on a *sql.DB.
type Store struct {
	db  *sql.DB
	q   *queries
	now func() time.Time
}

// Compile-time checks.
var (
	_ store.Backend = (*Store)(nil)
	_ store.Indexed = (*Store)(nil)
)

// Open connects to the database named by dsn and applies pending migrations.
//
// DSN forms: "postgres://..." or "postgresql://..." select PostgreSQL;
// "sqlite://path", "file:path" or a bare path select SQLite.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if source, err = prepareSQLite(source); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// One writer keeps SQLite free of SQLITE_BUSY and makes :memory: usable.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return New(db, driver), nil
}

// New wraps an already-migrated database.
func New(db *sql.DB, driver string) *Store {
	return &Store{
		db:  db,
		q:   newQueries(driver),
		now: time.Now,
	}
}

func parseDSN(dsn string) (driver, source string, err error) {
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("empty database URL")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	default:
		return DriverSQLite, dsn, nil
	}
}

// prepareSQLite creates the parent directory of a file database and adds the
// pragmas the store relies on.
func prepareSQLite(source string) (string, error) {
	path := strings.TrimPrefix(source, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}
	if strings.Contains(source, "?") {
		return source, nil
	}
	return source + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

func runMigrations(db *sql.DB, driver string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case DriverPostgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (*model.Record, error) {
	return queryGet(ctx, s.db, s.q, key)
}

func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	return querySet(ctx, s.db, s.q, key, value, s.now())
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return queryRemove(ctx, s.db, s.q, key)
}

func (s *Store) List(ctx context.Context) ([]*model.Record, error) {
	return queryList(ctx, s.db, s.q)
}

func (s *Store) Clear(ctx context.Context) error {
	return queryClear(ctx, s.db, s.q)
}

// ListUpdatedSince returns records written at or after since, served by the
// updated_at index.
func (s *Store) ListUpdatedSince(ctx context.Context, since time.Time) ([]*model.Record, error) {
	return queryListUpdatedSince(ctx, s.db, s.q, since)
}
