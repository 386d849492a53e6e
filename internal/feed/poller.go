package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
	"github.com/NetoRibeiro/ovpfh-v2/internal/metrics"
)

const defaultInterval = 30 * time.Second

// Loader reads one consistent snapshot from the store.
type Loader interface {
	LoadSnapshot(ctx context.Context) (catalog.Snapshot, error)
}

// Cache keeps the last good snapshot across restarts.
type Cache interface {
	Save(snap catalog.Snapshot) error
	Load() (catalog.Snapshot, bool, error)
}

// Poller reloads the snapshot on an interval and on demand, publishing into a Feed.
type Poller struct {
	loader   Loader
	feed     *Feed
	cache    Cache
	logger   *slog.Logger
	metrics  *metrics.Recorder
	interval time.Duration

	refresh  chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool

	statusMu sync.RWMutex
	status   Status
}

// Status describes the recent health of the reload loop.
type Status struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastAttempt         time.Time `json:"lastAttempt"`
	LastSuccess         time.Time `json:"lastSuccess"`
	Generation          uint64    `json:"generation"`
	FromCache           bool      `json:"fromCache,omitempty"`
}

// IsReady reports whether a snapshot is being served and loads are not failing
// repeatedly.
func (s Status) IsReady() bool {
	if s.LastSuccess.IsZero() && !s.FromCache {
		return false
	}
	return s.ConsecutiveFailures < 3
}

// NewPoller wires a loader to a feed. cache, logger and recorder may be nil.
func NewPoller(loader Loader, f *Feed, cache Cache, logger *slog.Logger, recorder *metrics.Recorder, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		loader:   loader,
		feed:     f,
		cache:    cache,
		logger:   logger,
		metrics:  recorder,
		interval: interval,
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start loads once synchronously, so the feed is warm when Start returns, then keeps
// reloading in the background until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.startMu.Lock()
	if p.started {
		p.startMu.Unlock()
		return
	}
	p.started = true
	p.startMu.Unlock()

	if err := p.RunOnce(ctx); err != nil {
		p.restoreFromCache()
	}

	ticker := time.NewTicker(p.interval)
	go func() {
		defer close(p.exited)
		defer ticker.Stop()
		p.logInfo("feed poller started", slog.Int64(logging.FieldDurationMS, p.interval.Milliseconds()))
		for {
			select {
			case <-ctx.Done():
				p.logInfo("feed poller stopped")
				return
			case <-p.done:
				p.logInfo("feed poller stopped")
				return
			case <-ticker.C:
				_ = p.RunOnce(ctx)
			case <-p.refresh:
				_ = p.RunOnce(ctx)
			}
		}
	}()
}

// Stop ends the reload loop and waits for it to exit, or for ctx to be done.
func (p *Poller) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.done) })
	p.startMu.Lock()
	started := p.started
	p.startMu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh asks the loop for a reload without waiting for it. Requests made while one
// is already queued collapse into it.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// RunOnce performs one load and publish. On failure the feed keeps serving the
// previous snapshot.
func (p *Poller) RunOnce(ctx context.Context) error {
	start := time.Now()
	p.recordAttempt(start)
	gen := p.feed.Begin()
	snap, err := p.loader.LoadSnapshot(ctx)
	p.metrics.RecordFeedCycle(time.Since(start), err)
	if err != nil {
		p.logError("feed load failed", err, slog.Int64(logging.FieldDurationMS, time.Since(start).Milliseconds()))
		p.recordFailure(err)
		return err
	}

	published := p.feed.Publish(gen, snap)
	if published && p.cache != nil {
		if err := p.cache.Save(snap); err != nil {
			p.logError("feed cache write failed", err)
		}
	}
	p.recordSuccess(start, p.feed.Current().Generation)
	p.logDebug("feed refreshed",
		logging.FieldCount, len(snap.Matches),
		logging.FieldGeneration, gen,
		logging.FieldDurationMS, time.Since(start).Milliseconds(),
		"published", published,
	)
	return nil
}

func (p *Poller) restoreFromCache() {
	if p.cache == nil {
		return
	}
	snap, ok, err := p.cache.Load()
	if err != nil {
		p.logError("feed cache read failed", err)
		return
	}
	if !ok {
		return
	}
	gen := p.feed.Begin()
	if p.feed.Publish(gen, snap) {
		p.statusMu.Lock()
		p.status.FromCache = true
		p.status.Generation = gen
		p.statusMu.Unlock()
		p.logInfo("feed restored from cache", logging.FieldCount, len(snap.Matches))
	}
}

func (p *Poller) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

func (p *Poller) recordAttempt(at time.Time) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.LastAttempt = at
}

func (p *Poller) recordSuccess(at time.Time, gen uint64) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.ConsecutiveFailures = 0
	p.status.LastError = ""
	p.status.LastSuccess = at
	p.status.Generation = gen
	p.status.FromCache = false
}

func (p *Poller) recordFailure(err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.ConsecutiveFailures++
	p.status.LastError = err.Error()
}

func (p *Poller) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Poller) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Poller) logError(msg string, err error, attrs ...any) {
	if p.logger != nil {
		p.logger.Error(msg, append(attrs, logging.FieldError, err)...)
	}
}
