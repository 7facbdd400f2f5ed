package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// Backend kinds reported by Local.Backend.
const (
	KindStructured = "structured"
	KindFlat       = "flat"
)

// Local is the process-wide local store. It opens the structured backend on
// the first Initialize and, if that fails, falls back to the flat backend for
// the rest of its lifetime. The choice is never retried.
type Local struct {
	primary  Opener
	fallback Opener
	logger   *slog.Logger

	mu       sync.RWMutex
	backend  Backend
	kind     string
	degraded bool
}

// Compile-time check that Local can stand in for a Backend.
var _ Backend = (*Local)(nil)

// NewLocal returns an uninitialized Local store. primary may be nil, in which
// case the flat backend is used directly.
func NewLocal(primary, fallback Opener, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Initialize opens the backend. It is idempotent. A structured backend that
// fails to open is logged and never surfaced; an error is returned only when
// the flat fallback cannot be opened either.
func (l *Local) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backend != nil {
		return nil
	}

	if l.primary != nil && !l.degraded {
		b, err := l.primary(ctx)
		if err == nil {
			l.backend, l.kind = b, KindStructured
			l.logger.Debug("local store initialized", "backend", KindStructured)
			return nil
		}
		l.degraded = true
		l.logger.Warn("structured backend unavailable, falling back to flat store", "err", err)
	}

	if l.fallback == nil {
		return fmt.Errorf("open flat backend: %w", ErrBackendUnavailable)
	}
	b, err := l.fallback(ctx)
	if err != nil {
		return fmt.Errorf("open flat backend: %w: %w", ErrBackendUnavailable, err)
	}
	l.backend, l.kind = b, KindFlat
	l.logger.Debug("local store initialized", "backend", KindFlat)
	return nil
}

// Dispose closes the active backend. A later Initialize reopens it, keeping
// any fallback decision already made.
func (l *Local) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backend == nil {
		return nil
	}
	err := l.backend.Close()
	l.backend = nil
	return err
}

// Close is an alias for Dispose so a Local satisfies Backend.
func (l *Local) Close() error {
	return l.Dispose()
}

// Backend returns the kind of the active backend, or "" before Initialize.
func (l *Local) Backend() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.backend == nil {
		return ""
	}
	return l.kind
}

// Get returns the record for key or ErrNotFound.
func (l *Local) Get(ctx context.Context, key string) (*model.Record, error) {
	var rec *model.Record
	err := l.with(func(b Backend) error {
		var err error
		rec, err = b.Get(ctx, key)
		return readErr("get", key, err)
	})
	return rec, err
}

// Set upserts key.
func (l *Local) Set(ctx context.Context, key string, value json.RawMessage) error {
	return l.with(func(b Backend) error {
		return writeErr("set", key, b.Set(ctx, key, value))
	})
}

// Remove deletes key if present.
func (l *Local) Remove(ctx context.Context, key string) error {
	return l.with(func(b Backend) error {
		return writeErr("remove", key, b.Remove(ctx, key))
	})
}

// List returns every stored record.
func (l *Local) List(ctx context.Context) ([]*model.Record, error) {
	var recs []*model.Record
	err := l.with(func(b Backend) error {
		var err error
		recs, err = b.List(ctx)
		return readErr("list", "", err)
	})
	return recs, err
}

// Clear deletes every record.
func (l *Local) Clear(ctx context.Context) error {
	return l.with(func(b Backend) error {
		return writeErr("clear", "", b.Clear(ctx))
	})
}

// ListUpdatedSince returns the records written at or after since, oldest
// first. Backends without a write-time index are scanned.
func (l *Local) ListUpdatedSince(ctx context.Context, since time.Time) ([]*model.Record, error) {
	var recs []*model.Record
	err := l.with(func(b Backend) error {
		if ix, ok := b.(Indexed); ok {
			var err error
			recs, err = ix.ListUpdatedSince(ctx, since)
			return readErr("list", "", err)
		}
		all, err := b.List(ctx)
		if err != nil {
			return readErr("list", "", err)
		}
		recs = filterUpdatedSince(all, since)
		return nil
	})
	return recs, err
}

func (l *Local) with(fn func(b Backend) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.backend == nil {
		return ErrNotInitialized
	}
	return fn(l.backend)
}

func filterUpdatedSince(all []*model.Record, since time.Time) []*model.Record {
	var out []*model.Record
	for _, r := range all {
		if !r.UpdatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}
