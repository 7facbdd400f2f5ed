// Package layout implements local-first persistence of UI layouts and their
// last-writer-wins reconciliation with the remote authority.
//
// Every mutation commits to the local store before any network attempt.
// Remote failures are logged and absorbed: the caller always gets the local
// result, and unconfirmed records stay Synced=false until a later
// SyncPending confirms them.
package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/client"
	"github.com/alfredjeanlab/layoutsync/internal/connectivity"
	"github.com/alfredjeanlab/layoutsync/internal/events"
	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// ErrNotFound is returned when a layout exists neither locally nor remotely.
var ErrNotFound = store.ErrNotFound

// Store is the part of the local store the synchronizer needs.
// *store.Local satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (*model.Record, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]*model.Record, error)
}

// Synchronizer saves layouts locally and reconciles them with the remote
// authority. It is safe for concurrent use.
type Synchronizer struct {
	store  Store
	remote client.LayoutsClient
	online connectivity.Checker
	logger *slog.Logger
	now    func() time.Time
	pub    events.Publisher

	// mu guards local read-modify-write sequences. It is never held across
	// a network call.
	mu sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithClock overrides the time source used to stamp local saves.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithPublisher sets the event publisher. Default is a no-op.
func WithPublisher(p events.Publisher) Option {
	return func(s *Synchronizer) { s.pub = p }
}

// New returns a Synchronizer over an initialized local store. A nil remote or
// checker leaves it local-only.
func New(st Store, remote client.LayoutsClient, online connectivity.Checker, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  st,
		remote: remote,
		online: online,
		logger: slog.Default(),
		now:    time.Now,
		pub:    &events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.online == nil {
		s.online = connectivity.NewStatic(false)
	}
	return s
}

// SaveLocal writes config as the unsynced local copy of layoutType, stamped
// with the current time. It never touches the network.
func (s *Synchronizer) SaveLocal(ctx context.Context, layoutType string, config json.RawMessage) (*model.Layout, error) {
	if err := model.ValidateLayoutInput(&model.LayoutInput{Type: layoutType, Config: config}); err != nil {
		return nil, err
	}

	l := &model.Layout{
		Type:      layoutType,
		Config:    config,
		UpdatedAt: s.now().UTC(),
		Synced:    false,
	}

	s.mu.Lock()
	err := s.put(ctx, l)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("layout saved locally", "layout_type", layoutType)
	s.publish(ctx, events.TopicLayoutSaved, events.LayoutSaved{Layout: l})
	return l, nil
}

// ReadLocal returns the local copy of layoutType or ErrNotFound.
func (s *Synchronizer) ReadLocal(ctx context.Context, layoutType string) (*model.Layout, error) {
	if err := model.ValidateLayoutType(layoutType); err != nil {
		return nil, err
	}
	return s.get(ctx, layoutType)
}

// Save commits config locally and then, when online and auth is supplied,
// pushes it to the remote authority. A successful push marks the local copy
// synced unless it was edited again meanwhile. Remote failures are absorbed.
func (s *Synchronizer) Save(ctx context.Context, layoutType string, config json.RawMessage, auth http.Header) (*model.Layout, error) {
	l, err := s.SaveLocal(ctx, layoutType, config)
	if err != nil {
		return nil, err
	}
	if !s.canReach(ctx, auth) {
		return l, nil
	}

	if _, err := s.remote.UpsertLayout(ctx, l.Input(), auth); err != nil {
		s.logger.Warn("remote save failed, kept local copy", "layout_type", layoutType, "err", err)
		return l, nil
	}

	synced, ok, err := s.markSynced(ctx, l)
	if err != nil {
		s.logger.Warn("mark layout synced", "layout_type", layoutType, "err", err)
		return l, nil
	}
	if !ok {
		return l, nil
	}
	s.publish(ctx, events.TopicLayoutSynced, events.LayoutSynced{LayoutTypes: []string{layoutType}, At: s.now().UTC()})
	return synced, nil
}

// Read returns the freshest known copy of layoutType. The local copy is read
// first; when online and auth is supplied the remote copy is fetched and
// replaces the local cache if its UpdatedAt is strictly newer. Ties keep the
// local copy. Any remote failure falls back to the local copy.
func (s *Synchronizer) Read(ctx context.Context, layoutType string, auth http.Header) (*model.Layout, error) {
	local, err := s.ReadLocal(ctx, layoutType)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if !s.canReach(ctx, auth) {
		return orNotFound(local)
	}

	remote, err := s.remote.GetLayout(ctx, layoutType, auth)
	if err != nil {
		if client.IsNotFound(err) {
			s.logger.Debug("layout not found remotely", "layout_type", layoutType)
		} else {
			s.logger.Warn("remote read failed, using local copy", "layout_type", layoutType, "err", err)
		}
		return orNotFound(local)
	}

	rl := remote.ToLayout()
	rl.Type = layoutType
	cur, _, err := s.cacheRemote(ctx, rl)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// SyncPending submits every unsynced local layout as one batch and marks
// them synced on success. Records edited during the round trip stay
// pending. With nothing pending no network call is made. The batch is
// all-or-nothing: a remote failure leaves every record pending and is not
// returned. It returns the number of records marked synced.
func (s *Synchronizer) SyncPending(ctx context.Context, auth http.Header) (int, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 || !s.canReach(ctx, auth) {
		return 0, nil
	}

	in := make([]*model.LayoutInput, len(pending))
	for i, l := range pending {
		in[i] = l.Input()
	}

	res, err := s.remote.SyncLayouts(ctx, in, auth)
	if err != nil {
		s.logger.Warn("batch sync failed, layouts remain pending", "count", len(pending), "err", err)
		return 0, nil
	}
	s.logger.Debug("batch sync accepted", "message", res.Message, "synced", res.Synced)

	var types []string
	for _, l := range pending {
		_, ok, err := s.markSynced(ctx, l)
		if err != nil {
			return len(types), err
		}
		if ok {
			types = append(types, l.Type)
		}
	}

	if len(types) > 0 {
		s.logger.Info("layouts synced", "count", len(types))
		s.publish(ctx, events.TopicLayoutSynced, events.LayoutSynced{LayoutTypes: types, At: s.now().UTC()})
	}
	return len(types), nil
}

// Pull fetches every remote layout and applies last-writer-wins to each. It
// returns the number of local records replaced by a newer remote copy.
func (s *Synchronizer) Pull(ctx context.Context, auth http.Header) (int, error) {
	if !s.canReach(ctx, auth) {
		return 0, nil
	}

	remotes, err := s.remote.ListLayouts(ctx, auth)
	if err != nil {
		s.logger.Warn("remote list failed", "err", err)
		return 0, nil
	}

	var types []string
	for _, r := range remotes {
		if err := model.ValidateLayoutType(r.Type); err != nil {
			s.logger.Warn("skipping remote layout with invalid type", "layout_type", r.Type, "err", err)
			continue
		}
		_, replaced, err := s.cacheRemote(ctx, r.ToLayout())
		if err != nil {
			return len(types), err
		}
		if replaced {
			types = append(types, r.Type)
		}
	}

	if len(types) > 0 {
		s.logger.Info("layouts pulled", "count", len(types))
		s.publish(ctx, events.TopicLayoutPulled, events.LayoutPulled{LayoutTypes: types, At: s.now().UTC()})
	}
	return len(types), nil
}

// Delete removes the local copy of layoutType and, when online and auth is
// supplied, the remote copy. A missing remote copy is not an error.
func (s *Synchronizer) Delete(ctx context.Context, layoutType string, auth http.Header) error {
	if err := model.ValidateLayoutType(layoutType); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.store.Remove(ctx, model.LayoutKey(layoutType))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if !s.canReach(ctx, auth) {
		return nil
	}
	if err := s.remote.DeleteLayout(ctx, layoutType, auth); err != nil && !client.IsNotFound(err) {
		s.logger.Warn("remote delete failed", "layout_type", layoutType, "err", err)
	}
	return nil
}

// List returns every local layout sorted by type. Records that fail to
// decode are logged and skipped.
func (s *Synchronizer) List(ctx context.Context) ([]*model.Layout, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*model.Layout
	for _, r := range recs {
		if _, ok := model.LayoutTypeFromKey(r.Key); !ok {
			continue
		}
		l, err := decode(r)
		if err != nil {
			s.logger.Warn("skipping undecodable layout record", "key", r.Key, "err", err)
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// Pending returns the local layouts not yet confirmed by the remote.
func (s *Synchronizer) Pending(ctx context.Context) ([]*model.Layout, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Layout
	for _, l := range all {
		if !l.Synced {
			out = append(out, l)
		}
	}
	return out, nil
}

// markSynced flips the synced flag of the local copy if it is still the
// version that was pushed. It reports whether the flag was flipped.
func (s *Synchronizer) markSynced(ctx context.Context, pushed *model.Layout) (*model.Layout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.get(ctx, pushed.Type)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cur.Synced || !cur.UpdatedAt.Equal(pushed.UpdatedAt) {
		return cur, false, nil
	}
	cur.Synced = true
	if err := s.put(ctx, cur); err != nil {
		return nil, false, err
	}
	return cur, true, nil
}

// cacheRemote stores rl if it is strictly newer than the local copy. It
// returns the copy that is now current and whether rl replaced it.
func (s *Synchronizer) cacheRemote(ctx context.Context, rl *model.Layout) (*model.Layout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.get(ctx, rl.Type)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if !rl.NewerThan(cur) {
		return cur, false, nil
	}
	rl.Synced = true
	if err := s.put(ctx, rl); err != nil {
		return nil, false, err
	}
	s.logger.Debug("cached newer remote layout", "layout_type", rl.Type, "updated_at", rl.UpdatedAt)
	return rl, true, nil
}

func (s *Synchronizer) canReach(ctx context.Context, auth http.Header) bool {
	return auth != nil && s.remote != nil && s.online.Online(ctx)
}

func (s *Synchronizer) get(ctx context.Context, layoutType string) (*model.Layout, error) {
	rec, err := s.store.Get(ctx, model.LayoutKey(layoutType))
	if err != nil {
		return nil, err
	}
	return decode(rec)
}

func (s *Synchronizer) put(ctx context.Context, l *model.Layout) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode layout %s: %w", l.Type, err)
	}
	return s.store.Set(ctx, l.Key(), data)
}

func (s *Synchronizer) publish(ctx context.Context, topic string, event any) {
	if err := s.pub.Publish(ctx, topic, event); err != nil {
		s.logger.Debug("publish event", "topic", topic, "err", err)
	}
}

func decode(rec *model.Record) (*model.Layout, error) {
	var l model.Layout
	if err := json.Unmarshal(rec.Value, &l); err != nil {
		return nil, fmt.Errorf("decode layout %s: %w", rec.Key, err)
	}
	if l.Type == "" {
		l.Type, _ = model.LayoutTypeFromKey(rec.Key)
	}
	return &l, nil
}

func orNotFound(l *model.Layout) (*model.Layout, error) {
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}
