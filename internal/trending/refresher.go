// Package trending keeps a periodically refreshed snapshot of trending videos.
package trending

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/catalog"
	"github.com/dayuer/tubebot/internal/logging"
	"github.com/dayuer/tubebot/internal/metrics"
)

const DefaultInterval = time.Hour

// Options configures a Refresher.
type Options struct {
	Region   string
	Limit    int
	Interval time.Duration
	// OnRefresh is called after each successful refresh.
	OnRefresh func([]catalog.VideoSummary)
	Logger    *zap.Logger
}

// Refresher polls the catalog for trending videos on a fixed interval.
type Refresher struct {
	provider catalog.Provider
	opts     Options
	logger   *zap.Logger

	mu        sync.RWMutex
	items     []catalog.VideoSummary
	refreshed time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a stopped refresher.
func NewRefresher(provider catalog.Provider, opts Options) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Region == "" {
		opts.Region = catalog.DefaultRegion
	}
	return &Refresher{
		provider: provider,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Start refreshes once immediately and then on every tick until ctx is done
// or Stop is called. Calling Start on a running refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

// Stop ends the loop and waits for an in-progress refresh to return.
func (r *Refresher) Stop() {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Snapshot returns the last successful result and when it was taken. The
// zero time means no refresh has succeeded yet.
func (r *Refresher) Snapshot() ([]catalog.VideoSummary, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.VideoSummary, len(r.items))
	copy(out, r.items)
	return out, r.refreshed
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.Refresh(ctx)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch. Failures keep the previous snapshot.
func (r *Refresher) Refresh(ctx context.Context) {
	items, err := r.provider.Trending(ctx, r.opts.Region, r.opts.Limit)
	now := time.Now()
	metrics.ObserveTrendingRefresh(err, float64(now.Unix()))
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("trending refresh failed", zap.String("region", r.opts.Region), zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	r.items = items
	r.refreshed = now
	r.mu.Unlock()

	r.logger.Debug("trending refreshed", zap.String("region", r.opts.Region), zap.Int("count", len(items)))
	if r.opts.OnRefresh != nil {
		r.opts.OnRefresh(items)
	}
}
