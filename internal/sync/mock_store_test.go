package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// mockStore is a minimal in-memory record store for export tests.
type mockStore struct {
	mu   gosync.Mutex
	recs map[string]*model.Record
	err  error
}

func newMockStore() *mockStore {
	return &mockStore{recs: make(map[string]*model.Record)}
}

func (m *mockStore) put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = &model.Record{Key: key, Value: json.RawMessage(value), UpdatedAt: time.Unix(100, 0).UTC()}
}

func (m *mockStore) List(_ context.Context) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*model.Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	// Reverse order so ExportJSONL has to sort.
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func (m *mockStore) Set(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs[key] = &model.Record{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

// mockSyncer counts passes.
type mockSyncer struct {
	pushes atomic.Int64
	pulls  atomic.Int64
	fail   atomic.Bool
	auth   atomic.Value // http.Header
}

func (m *mockSyncer) SyncPending(_ context.Context, auth http.Header) (int, error) {
	m.pushes.Add(1)
	m.auth.Store(auth)
	if m.fail.Load() {
		return 0, errors.New("local store unavailable")
	}
	return 1, nil
}

func (m *mockSyncer) Pull(_ context.Context, _ http.Header) (int, error) {
	m.pulls.Add(1)
	return 0, nil
}

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}
