package layout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/layoutsync/internal/client"
	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
	"github.com/alfredjeanlab/layoutsync/internal/store/flatstore"
)

// fakeRemote is an in-memory LayoutsClient that counts calls.
type fakeRemote struct {
	mu      sync.Mutex
	layouts map[string]*model.RemoteLayout
	stamp   time.Time
	err     error
	calls   map[string]int
	batches [][]*model.LayoutInput
	auth    http.Header

	// onSync runs inside SyncLayouts before it returns.
	onSync func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		layouts: map[string]*model.RemoteLayout{},
		stamp:   time.Unix(1000, 0).UTC(),
		calls:   map[string]int{},
	}
}

var _ client.LayoutsClient = (*fakeRemote)(nil)

func (f *fakeRemote) record(op string, auth http.Header) error {
	f.calls[op]++
	f.auth = auth
	return f.err
}

func (f *fakeRemote) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for op, c := range f.calls {
		if op != "health" {
			n += c
		}
	}
	return n
}

func (f *fakeRemote) put(typ, config string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts[typ] = &model.RemoteLayout{ID: "lay-" + typ, UserID: "u1", Type: typ, Config: json.RawMessage(config), UpdatedAt: at}
}

func (f *fakeRemote) upsert(in *model.LayoutInput) *model.RemoteLayout {
	r := &model.RemoteLayout{ID: "lay-" + in.Type, UserID: "u1", Type: in.Type, Config: in.Config, UpdatedAt: f.stamp}
	f.layouts[in.Type] = r
	return r
}

func (f *fakeRemote) UpsertLayout(_ context.Context, in *model.LayoutInput, auth http.Header) (*model.RemoteLayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upsert", auth); err != nil {
		return nil, err
	}
	return f.upsert(in), nil
}

func (f *fakeRemote) UpdateLayout(_ context.Context, layoutType string, config json.RawMessage, auth http.Header) (*model.RemoteLayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update", auth); err != nil {
		return nil, err
	}
	if _, ok := f.layouts[layoutType]; !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Message: "layout not found"}
	}
	return f.upsert(&model.LayoutInput{Type: layoutType, Config: config}), nil
}

func (f *fakeRemote) GetLayout(_ context.Context, layoutType string, auth http.Header) (*model.RemoteLayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get", auth); err != nil {
		return nil, err
	}
	r, ok := f.layouts[layoutType]
	if !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Message: "layout not found"}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRemote) ListLayouts(_ context.Context, auth http.Header) ([]*model.RemoteLayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list", auth); err != nil {
		return nil, err
	}
	var out []*model.RemoteLayout
	for _, r := range f.layouts {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRemote) SyncLayouts(_ context.Context, in []*model.LayoutInput, auth http.Header) (*model.SyncResult, error) {
	f.mu.Lock()
	if err := f.record("sync", auth); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.batches = append(f.batches, in)
	res := &model.SyncResult{Message: "Layouts synced successfully"}
	for _, l := range in {
		f.upsert(l)
		res.Synced = append(res.Synced, l.Type)
	}
	hook := f.onSync
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return res, nil
}

func (f *fakeRemote) DeleteLayout(_ context.Context, layoutType string, auth http.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete", auth); err != nil {
		return err
	}
	if _, ok := f.layouts[layoutType]; !ok {
		return &client.APIError{StatusCode: http.StatusNotFound, Message: "layout not found"}
	}
	delete(f.layouts, layoutType)
	return nil
}

func (f *fakeRemote) Health(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["health"]++
	return "ok", f.err
}

func (f *fakeRemote) Close() error { return nil }

// recordingPublisher captures published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(sec int64) *clock { return &clock{t: time.Unix(sec, 0).UTC()} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Unix(sec, 0).UTC()
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLocalStore returns an initialized Local store on the flat backend.
func newLocalStore(t *testing.T) *store.Local {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offline.json")
	l := store.NewLocal(nil, func(context.Context) (store.Backend, error) {
		return flatstore.Open(path)
	}, quietLogger())
	require.NoError(t, l.Initialize(context.Background()))
	t.Cleanup(func() { l.Dispose() })
	return l
}

// failingStore fails every write.
type failingStore struct {
	Store
	err error
}

func (f *failingStore) Set(context.Context, string, json.RawMessage) error { return f.err }
