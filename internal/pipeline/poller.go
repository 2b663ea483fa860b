package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source returns the full current list of raw requests.
type Source interface {
	Fetch(ctx context.Context) ([]domain.RawEmergency, error)
}

// Poller refreshes the store from a Source on a fixed interval.
type Poller struct {
	source   Source
	ingestor *Ingestor
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	trigger  chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClock overrides the real clock, for tests.
func WithPollerClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// NewPoller creates a Poller that refreshes every interval.
func NewPoller(source Source, ingestor *Ingestor, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...PollerOption) *Poller {
	p := &Poller{
		source:   source,
		ingestor: ingestor,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once at least one refresh has succeeded.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no successful refresh yet")
	}
	return nil
}

// Trigger requests an immediate refresh. Requests made while one is
// already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes once, then on every tick or trigger until ctx is cancelled.
// Refreshes run one at a time on this goroutine and never overlap.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval)
	p.metrics.ServiceRunning.Set(1)
	defer p.metrics.ServiceRunning.Set(0)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	_ = p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			_ = p.Poll(ctx)
		case <-p.trigger:
			_ = p.Poll(ctx)
		}
	}
}

// Poll performs one fetch-normalize-replace cycle. On failure the store
// keeps its previous contents.
func (p *Poller) Poll(ctx context.Context) error {
	start := p.clock.Now()

	raws, err := p.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error("refresh failed, keeping stale data", "error", err)
		p.metrics.Polls.WithLabelValues("error").Inc()
		return fmt.Errorf("poll: %w", err)
	}

	reqs := p.ingestor.Refresh(ctx, raws)
	p.ready.Store(true)
	p.metrics.Polls.WithLabelValues("success").Inc()
	p.metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	p.logger.Debug("refresh completed", "records", len(reqs))
	return nil
}
