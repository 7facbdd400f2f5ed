// Package server implements the layouts remote authority: the HTTP/JSON API
// the synchronizer pushes to and pulls from.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/events"
	"github.com/alfredjeanlab/layoutsync/internal/idgen"
	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// AnonymousPrincipal owns every layout when authentication is disabled.
const AnonymousPrincipal = "anonymous"

// errLayoutNotFound is returned when a principal has no layout of the
// requested type.
var errLayoutNotFound = errors.New("layout not found")

// Server stores layouts per principal in a store.Backend.
type Server struct {
	store     store.Backend
	publisher events.Publisher
	sseHub    *sseHub
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	// mu serializes read-modify-write of stored layouts.
	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New returns a Server backed by st.
func New(st store.Backend, opts ...Option) *Server {
	s := &Server{
		store:     st,
		publisher: &events.NoopPublisher{},
		sseHub:    newSSEHub(),
		metrics:   NewMetrics(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeKey namespaces a layout record by its owner.
func storeKey(principal, layoutType string) string {
	return principal + "/" + model.LayoutKey(layoutType)
}

// Upsert creates or replaces the principal's layout of in.Type. The server
// stamps updated_at; id and created_at survive replacement.
func (s *Server) Upsert(ctx context.Context, principal string, in *model.LayoutInput) (*model.RemoteLayout, error) {
	if err := model.ValidateLayoutInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rl, err := s.upsertLocked(ctx, principal, in)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.metrics.recordWrites("upsert", 1)
	s.publish(ctx, principal, events.TopicLayoutUpdated, events.LayoutUpdated{Layout: rl})
	return rl, nil
}

// Update replaces the config of an existing layout.
func (s *Server) Update(ctx context.Context, principal, layoutType string, config json.RawMessage) (*model.RemoteLayout, error) {
	in := &model.LayoutInput{Type: layoutType, Config: config}
	if err := model.ValidateLayoutInput(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if _, err := s.load(ctx, principal, layoutType); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	rl, err := s.upsertLocked(ctx, principal, in)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.metrics.recordWrites("update", 1)
	s.publish(ctx, principal, events.TopicLayoutUpdated, events.LayoutUpdated{Layout: rl})
	return rl, nil
}

// Sync upserts every layout in the batch and returns the synced types in
// request order. The batch is rejected whole if any entry is invalid. A
// storage failure part way through leaves the earlier entries written and
// unannounced; callers re-send the whole batch, and since each entry is an
// upsert the retry converges.
func (s *Server) Sync(ctx context.Context, principal string, batch []*model.LayoutInput) ([]string, error) {
	for i, in := range batch {
		if in == nil {
			return nil, &model.ValidationError{Errors: []model.FieldError{{Field: fmt.Sprintf("[%d]", i), Message: "is required"}}}
		}
		if err := model.ValidateLayoutInput(in); err != nil {
			return nil, err
		}
	}

	synced := make([]string, 0, len(batch))
	updated := make([]*model.RemoteLayout, 0, len(batch))
	s.mu.Lock()
	for _, in := range batch {
		rl, err := s.upsertLocked(ctx, principal, in)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		synced = append(synced, rl.Type)
		updated = append(updated, rl)
	}
	s.mu.Unlock()
	s.metrics.recordWrites("sync", len(synced))
	s.metrics.recordSyncBatch(len(synced))

	for _, rl := range updated {
		s.publish(ctx, principal, events.TopicLayoutUpdated, events.LayoutUpdated{Layout: rl})
	}
	return synced, nil
}

// Get returns the principal's layout of the given type.
func (s *Server) Get(ctx context.Context, principal, layoutType string) (*model.RemoteLayout, error) {
	if err := model.ValidateLayoutType(layoutType); err != nil {
		return nil, err
	}
	return s.load(ctx, principal, layoutType)
}

// List returns the principal's layouts sorted by type.
func (s *Server) List(ctx context.Context, principal string) ([]*model.RemoteLayout, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	prefix := principal + "/"
	layouts := make([]*model.RemoteLayout, 0, len(recs))
	for _, rec := range recs {
		rest, ok := strings.CutPrefix(rec.Key, prefix)
		if !ok {
			continue
		}
		if _, ok := model.LayoutTypeFromKey(rest); !ok {
			continue
		}
		var rl model.RemoteLayout
		if err := json.Unmarshal(rec.Value, &rl); err != nil {
			s.logger.Warn("skipping undecodable layout", "key", rec.Key, "error", err)
			continue
		}
		layouts = append(layouts, &rl)
	}
	sort.Slice(layouts, func(i, j int) bool { return layouts[i].Type < layouts[j].Type })
	return layouts, nil
}

// Delete removes the principal's layout of the given type.
func (s *Server) Delete(ctx context.Context, principal, layoutType string) error {
	if err := model.ValidateLayoutType(layoutType); err != nil {
		return err
	}
	s.mu.Lock()
	if _, err := s.load(ctx, principal, layoutType); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.store.Remove(ctx, storeKey(principal, layoutType))
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.metrics.recordWrites("delete", 1)
	s.publish(ctx, principal, events.TopicLayoutDeleted, events.LayoutDeleted{UserID: principal, LayoutType: layoutType})
	return nil
}

// upsertLocked requires s.mu.
func (s *Server) upsertLocked(ctx context.Context, principal string, in *model.LayoutInput) (*model.RemoteLayout, error) {
	now := s.now().UTC()
	rl, err := s.load(ctx, principal, in.Type)
	switch {
	case errors.Is(err, errLayoutNotFound):
		id, err := idgen.NewLayoutID()
		if err != nil {
			return nil, err
		}
		rl = &model.RemoteLayout{ID: id, UserID: principal, Type: in.Type, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	rl.Config = in.Config
	rl.UpdatedAt = now

	data, err := json.Marshal(rl)
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}
	if err := s.store.Set(ctx, storeKey(principal, in.Type), data); err != nil {
		return nil, err
	}
	return rl, nil
}

func (s *Server) load(ctx context.Context, principal, layoutType string) (*model.RemoteLayout, error) {
	rec, err := s.store.Get(ctx, storeKey(principal, layoutType))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errLayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	var rl model.RemoteLayout
	if err := json.Unmarshal(rec.Value, &rl); err != nil {
		return nil, fmt.Errorf("decode layout %q: %w", rec.Key, err)
	}
	return &rl, nil
}

// publish emits an event on the bus and to SSE subscribers of principal.
// Failures are logged and never reach the caller.
func (s *Server) publish(ctx context.Context, principal, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "principal", principal, "error", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(principal, topic, payload)
}
