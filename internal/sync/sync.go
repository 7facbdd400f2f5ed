// Package sync drives background reconciliation of local layouts with the
// remote authority and exports the local store to backup destinations.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/layoutsync/internal/connectivity"
)

// Syncer is the reconciliation surface the scheduler drives.
// *layout.Synchronizer satisfies it.
type Syncer interface {
	SyncPending(ctx context.Context, auth http.Header) (int, error)
	Pull(ctx context.Context, auth http.Header) (int, error)
}

// Destination is the interface for a backup target (S3, git, etc.).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Backup exports s once and writes the payload to every destination
// concurrently. It returns the first destination error after all of them
// have finished.
func Backup(ctx context.Context, s Lister, destinations []Destination, logger *slog.Logger) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s, &buf); err != nil {
		return err
	}
	data := buf.Bytes()

	var g errgroup.Group
	for _, dest := range destinations {
		g.Go(func() error {
			if err := dest.Write(ctx, data); err != nil {
				logger.Error("backup destination write failed", "destination", dest.Name(), "err", err)
				return fmt.Errorf("%s: %w", dest.Name(), err)
			}
			logger.Debug("backup written", "destination", dest.Name(), "bytes", len(data))
			return nil
		})
	}
	return g.Wait()
}

// Scheduler runs SyncPending then Pull at startup, on every interval tick,
// and whenever the connectivity probe sees the remote come back online.
type Scheduler struct {
	syncer        Syncer
	online        connectivity.Checker
	auth          http.Header
	interval      time.Duration
	probeInterval time.Duration
	logger        *slog.Logger

	backupFrom   Lister
	destinations []Destination

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the periodic sync period. Zero disables periodic passes.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithProbeInterval sets how often connectivity is polled for
// offline-to-online transitions. Zero disables polling.
func WithProbeInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.probeInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithBackup exports from to the destinations after every pass.
func WithBackup(from Lister, destinations ...Destination) SchedulerOption {
	return func(s *Scheduler) {
		s.backupFrom = from
		s.destinations = destinations
	}
}

// NewScheduler creates a scheduler for syncer using auth on every pass.
func NewScheduler(syncer Syncer, online connectivity.Checker, auth http.Header, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		syncer:        syncer,
		online:        online,
		auth:          auth,
		interval:      time.Minute,
		probeInterval: 10 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins background syncing. It runs an initial pass immediately.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current pass (if any) to
// finish. A stopped scheduler can be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce performs a single pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.pass(ctx, "manual")
}

func (s *Scheduler) run(ctx context.Context) {
	wasOnline := s.online != nil && s.online.Online(ctx)
	s.pass(ctx, "startup")

	var tick, probe <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}
	if s.probeInterval > 0 && s.online != nil {
		p := time.NewTicker(s.probeInterval)
		defer p.Stop()
		probe = p.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.pass(ctx, "interval")
		case <-probe:
			online := s.online.Online(ctx)
			if online && !wasOnline {
				s.logger.Info("remote reachable again, syncing")
				s.pass(ctx, "reconnect")
			}
			wasOnline = online
		}
	}
}

func (s *Scheduler) pass(ctx context.Context, reason string) {
	pushed, err := s.syncer.SyncPending(ctx, s.auth)
	if err != nil {
		s.logger.Error("sync pending failed", "reason", reason, "err", err)
	}
	pulled, err := s.syncer.Pull(ctx, s.auth)
	if err != nil {
		s.logger.Error("pull failed", "reason", reason, "err", err)
	}
	s.logger.Debug("sync pass completed", "reason", reason, "pushed", pushed, "pulled", pulled)

	if s.backupFrom != nil && len(s.destinations) > 0 {
		if err := Backup(ctx, s.backupFrom, s.destinations, s.logger); err != nil {
			s.logger.Error("backup failed", "err", err)
		}
	}
}
