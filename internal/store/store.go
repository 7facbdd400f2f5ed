// Package store defines the local key-value persistence contract and the
// Local store that selects between a structured backend and a flat fallback.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// Backend is a durable key-value medium. Implementations must be
// indistinguishable to callers: the same sequence of calls yields the same
// observable results regardless of the backend in use.
type Backend interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*model.Record, error)

	// Set upserts key, stamping the record's UpdatedAt with the current time.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// List returns every stored record.
	List(ctx context.Context) ([]*model.Record, error)

	// Clear deletes every record owned by the backend.
	Clear(ctx context.Context) error

	// Close releases the underlying handle.
	Close() error
}

// Indexed is implemented by backends that keep a secondary index on the
// record write time.
type Indexed interface {
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*model.Record, error)
}

// Opener opens a backend. It is called at most once per Initialize.
type Opener func(ctx context.Context) (Backend, error)
