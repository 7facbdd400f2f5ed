package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/layoutsync/internal/store"
	"github.com/alfredjeanlab/layoutsync/internal/store/storetest"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var recordColumns = []string{"key", "value", "updated_at"}

func TestRebind(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"WHERE key = ?", "WHERE key = $1"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
	} {
		if got := rebind(tc.in); got != tc.want {
			t.Errorf("rebind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseDSN(t *testing.T) {
	for _, tc := range []struct {
		dsn        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"", "", "", true},
		{"postgres://u@h/db", DriverPostgres, "postgres://u@h/db", false},
		{"postgresql://u@h/db", DriverPostgres, "postgresql://u@h/db", false},
		{"sqlite:///tmp/x.db", DriverSQLite, "/tmp/x.db", false},
		{"file:x.db", DriverSQLite, "file:x.db", false},
		{"layouts.db", DriverSQLite, "layouts.db", false},
	} {
		driver, source, err := parseDSN(tc.dsn)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseDSN(%q) err = %v, wantErr %v", tc.dsn, err, tc.wantErr)
			continue
		}
		if driver != tc.wantDriver || source != tc.wantSource {
			t.Errorf("parseDSN(%q) = (%q, %q), want (%q, %q)", tc.dsn, driver, source, tc.wantDriver, tc.wantSource)
		}
	}
}

func TestGetPostgresPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverPostgres)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT key, value, updated_at FROM records WHERE key = \\$1").
		WithArgs("layout_grid").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow("layout_grid", `{"cols":3}`, ts.UnixMilli()))

	rec, err := s.Get(context.Background(), "layout_grid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Value) != `{"cols":3}` {
		t.Errorf("value = %s", rec.Value)
	}
	if !rec.UpdatedAt.Equal(ts) {
		t.Errorf("updated_at = %v, want %v", rec.UpdatedAt, ts)
	}
}

func TestGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverSQLite)

	mock.ExpectQuery("SELECT key, value, updated_at FROM records WHERE key = \\?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetUpsertsWithClock(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverSQLite)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO records .+ ON CONFLICT \\(key\\) DO UPDATE").
		WithArgs("layout_grid", `{"cols":3}`, now.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set(context.Background(), "layout_grid", json.RawMessage(`{"cols":3}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestSetPropagatesError(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverPostgres)

	mock.ExpectExec("INSERT INTO records").
		WillReturnError(errors.New("disk full"))

	if err := s.Set(context.Background(), "k", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestListUpdatedSince(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverPostgres)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE updated_at >= \\$1 ORDER BY updated_at, key").
		WithArgs(since.UnixMilli()).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("layout_a", `{}`, since.UnixMilli()).
			AddRow("layout_b", `{}`, since.Add(time.Minute).UnixMilli()))

	recs, err := s.ListUpdatedSince(context.Background(), since)
	if err != nil {
		t.Fatalf("ListUpdatedSince: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "layout_a" || recs[1].Key != "layout_b" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestClearAndRemove(t *testing.T) {
	db, mock := newMockDB(t)
	s := New(db, DriverSQLite)

	mock.ExpectExec("DELETE FROM records WHERE key = \\?").WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM records$").
		WillReturnResult(sqlmock.NewResult(0, 3))

	ctx := context.Background()
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
}

func TestSQLiteBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "nested", "layouts.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenReappliesMigrations(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "layouts.db")
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(ctx, "layout_grid", json.RawMessage(`{"cols":3}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = Open(ctx, dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	rec, err := s.Get(ctx, "layout_grid")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(rec.Value) != `{"cols":3}` {
		t.Errorf("value = %s", rec.Value)
	}
}

func TestOpenUnreachablePath(t *testing.T) {
	dir := t.TempDir()
	// A regular file where a directory is expected cannot host the database.
	blocker := filepath.Join(dir, "blocker")
	if err := writeFile(blocker); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), "sqlite://"+filepath.Join(blocker, "layouts.db")); err == nil {
		t.Fatal("expected error opening database under a regular file")
	}
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}
