// Package connectivity answers whether the remote authority is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Checker reports network reachability. Implementations must be safe for
// concurrent use and must not block longer than ctx allows.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a settable answer.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static checker starting at online.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Online(context.Context) bool { return s.online.Load() }

// Set changes the reported state.
func (s *Static) Set(online bool) { s.online.Store(online) }

// Func adapts a plain function to Checker.
type Func func(ctx context.Context) bool

func (f Func) Online(ctx context.Context) bool { return f(ctx) }

// Pinger is the health check a Probe calls.
type Pinger interface {
	Health(ctx context.Context) (string, error)
}

// Probe considers the remote online when its health check succeeds. Results
// are cached for the TTL so hot paths do not issue a request per call.
type Probe struct {
	pinger  Pinger
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	checked time.Time
	online  bool
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithTimeout bounds each health check. Default 5s.
func WithTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.timeout = d }
}

// WithLogger sets the logger used to report state changes.
func WithLogger(l *slog.Logger) ProbeOption {
	return func(p *Probe) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ProbeOption {
	return func(p *Probe) { p.now = now }
}

// NewProbe returns a Probe that caches results for ttl. A zero ttl checks on
// every call.
func NewProbe(pinger Pinger, ttl time.Duration, opts ...ProbeOption) *Probe {
	p := &Probe{
		pinger:  pinger,
		ttl:     ttl,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Online reports the cached answer while it is fresh. Otherwise concurrent
// callers share one health check; a caller whose ctx ends first sees offline.
func (p *Probe) Online(ctx context.Context) bool {
	p.mu.Lock()
	if !p.checked.IsZero() && p.ttl > 0 && p.now().Sub(p.checked) < p.ttl {
		online := p.online
		p.mu.Unlock()
		return online
	}
	p.mu.Unlock()

	ch := p.group.DoChan("health", func() (any, error) {
		return p.check(), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

// check runs detached from any one caller, bounded by the probe timeout.
func (p *Probe) check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, err := p.pinger.Health(ctx)
	online := err == nil
	if err != nil {
		p.logger.Debug("health check failed", "err", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checked.IsZero() && online != p.online {
		p.logger.Info("connectivity changed", "online", online)
	}
	p.online = online
	p.checked = p.now()
	return online
}

// Invalidate drops the cached result so the next Online call re-checks.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = time.Time{}
}
