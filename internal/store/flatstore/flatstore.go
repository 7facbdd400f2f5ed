// Package flatstore implements store.Backend on a single JSON object file.
//
// The file is shared: it may hold keys written by other programs. Every key
// owned by this store carries a prefix (default "offline_"), and every write
// preserves the keys it does not own. Entries are kept as text, the same way a
// browser's localStorage would hold them, and the stored value is opaque
// text returned byte for byte:
//
//	{"offline_layout_grid": "{\"value\":\"{...}\",\"updated_at\":\"2026-03-01T12:00:00Z\"}"}
package flatstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/store"
)

// DefaultPrefix namespaces the keys this store owns inside the shared file.
const DefaultPrefix = "offline_"

// Store is a store.Backend over one JSON file. It re-reads the file on every
// operation so edits made by other writers are observed.
type Store struct {
	path   string
	prefix string
	perm   os.FileMode
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

var _ store.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithFileMode sets the permissions of the file on write.
func WithFileMode(perm os.FileMode) Option {
	return func(s *Store) {
		s.perm = perm
	}
}

// envelope is the text form of a stored value. Value is a string so the
// bytes given to Set are neither reformatted nor required to be JSON.
type envelope struct {
	Value     string          `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Open returns a Store for path, creating its directory if needed. An
// existing file must parse as a JSON object of strings.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		prefix: DefaultPrefix,
		perm:   0o600,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create flat store directory: %w", err)
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Close marks the store closed. The file needs no handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = errors.New("flat store closed")

func (s *Store) Get(ctx context.Context, key string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, ok := data[s.prefix+key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return decode(key, raw)
}

func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	data, err := s.load()
	if err != nil {
		return err
	}
	text, err := marshalText(envelope{
		Value:     string(value),
		UpdatedAt: s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data[s.prefix+key] = string(text)
	return s.save(data)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[s.prefix+key]; !ok {
		return nil
	}
	delete(data, s.prefix+key)
	return s.save(data)
}

// List returns owned records in key order.
func (s *Store) List(ctx context.Context) ([]*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := s.load()
	if err != nil {
		return nil, err
	}

	var recs []*model.Record
	for k, raw := range data {
		key, ok := strings.CutPrefix(k, s.prefix)
		if !ok {
			continue
		}
		r, err := decode(key, raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

// Clear removes every owned key and leaves the rest of the file intact.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	data, err := s.load()
	if err != nil {
		return err
	}
	n := len(data)
	for k := range data {
		if strings.HasPrefix(k, s.prefix) {
			delete(data, k)
		}
	}
	if len(data) == n {
		return nil
	}
	return s.save(data)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

// load reads the whole file. A missing or empty file is an empty object.
func (s *Store) load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	data := map[string]string{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return data, nil
}

func (s *Store) save(data map[string]string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	return writeFileAtomic(s.path, buf.Bytes(), s.perm)
}

// marshalText encodes v without HTML escaping.
func marshalText(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func decode(key, raw string) (*model.Record, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &model.Record{
		Key:       key,
		Value:     json.RawMessage(env.Value),
		UpdatedAt: env.UpdatedAt.UTC(),
	}, nil
}
