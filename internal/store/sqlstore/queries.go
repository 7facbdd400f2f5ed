package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statements rendered for one SQL dialect.
type queries struct {
	get, set, remove, list, since, clear string
}

func newQueries(driver string) *queries {
	q := &queries{
		get: `SELECT key, value, updated_at FROM records WHERE key = ?`,
		set: `INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		remove: `DELETE FROM records WHERE key = ?`,
		list:   `SELECT key, value, updated_at FROM records ORDER BY key`,
		since:  `SELECT key, value, updated_at FROM records WHERE updated_at >= ? ORDER BY updated_at, key`,
		clear:  `DELETE FROM records`,
	}
	if driver == DriverPostgres {
		q.get = rebind(q.get)
		q.set = rebind(q.set)
		q.remove = rebind(q.remove)
		q.since = rebind(q.since)
	}
	return q
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func queryGet(ctx context.Context, db executor, q *queries, key string) (*model.Record, error) {
	rec, err := scanRecord(db.QueryRowContext(ctx, q.get, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

func querySet(ctx context.Context, db executor, q *queries, key string, value json.RawMessage, now time.Time) error {
	_, err := db.ExecContext(ctx, q.set, key, string(value), now.UnixMilli())
	return err
}

func queryRemove(ctx context.Context, db executor, q *queries, key string) error {
	_, err := db.ExecContext(ctx, q.remove, key)
	return err
}

func queryList(ctx context.Context, db executor, q *queries) ([]*model.Record, error) {
	rows, err := db.QueryContext(ctx, q.list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func queryListUpdatedSince(ctx context.Context, db executor, q *queries, since time.Time) ([]*model.Record, error) {
	rows, err := db.QueryContext(ctx, q.since, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func queryClear(ctx context.Context, db executor, q *queries) error {
	_, err := db.ExecContext(ctx, q.clear)
	return err
}

// scannable is satisfied by *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var (
		r         model.Record
		value     string
		updatedAt int64
	)
	if err := row.Scan(&r.Key, &value, &updatedAt); err != nil {
		return nil, err
	}
	r.Value = json.RawMessage(value)
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*model.Record, error) {
	var recs []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
