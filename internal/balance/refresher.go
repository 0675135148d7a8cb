package balance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/events"
	"github.com/quiverwallet/quiver/internal/pricefeed"
	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

const (
	// DefaultInterval matches the original app's 10s auto-refresh.
	DefaultInterval = 10 * time.Second

	defaultQueryTries = 3
)

// Publisher is the subset of the event bus the refresher needs.
type Publisher interface {
	Publish(event events.Event) error
}

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	WalletID string
	Provider provider.Provider
	Registry *registry.Registry
	Prices   pricefeed.PriceSource
	Bus      Publisher
	Interval time.Duration
	Logger   *zap.Logger
}

// Refresher polls the provider for balance results on a fixed interval, plus
// on demand, and publishes recomputed snapshots. A completion that lands
// after Stop is discarded; overlapping requests are the provider's problem to
// coalesce, not ours.
type Refresher struct {
	cfg    RefresherConfig
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *Snapshot

	generation atomic.Uint64
	refreshCh  chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool
}

// NewRefresher creates a stopped refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		cfg:       cfg,
		logger:    cfg.Logger.Named("balance_refresher"),
		refreshCh: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins polling. It refreshes once immediately, then on every tick and
// every RefreshNow call.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()

	r.logger.Info("Balance refresher started",
		zap.String("wallet_id", r.cfg.WalletID),
		zap.Duration("interval", r.cfg.Interval))
}

// RefreshNow requests an immediate refresh (pull-to-refresh). Requests made
// while one is already pending collapse into it.
func (r *Refresher) RefreshNow() {
	select {
	case r.refreshCh <- struct{}{}:
	default:
	}
}

// Stop tears the refresher down. In-flight query completions are discarded;
// nothing is applied to a stopped refresher.
func (r *Refresher) Stop() {
	// Invalidate any in-flight completion before cancelling.
	r.generation.Add(1)
	r.cancel()
	r.wg.Wait()
	r.logger.Info("Balance refresher stopped", zap.String("wallet_id", r.cfg.WalletID))
}

// Snapshot returns the latest snapshot, if a refresh has completed yet.
func (r *Refresher) Snapshot() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return Snapshot{}, false
	}
	return *r.snapshot, true
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.refreshOnce()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce()
		case <-r.refreshCh:
			r.refreshOnce()
		}
	}
}

// refreshOnce queries the provider with bounded retries and applies the
// resulting snapshot unless a newer refresh or Stop superseded it.
func (r *Refresher) refreshOnce() {
	gen := r.generation.Add(1)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	notify := func(err error, d time.Duration) {
		r.logger.Debug("Retrying balance query",
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	operation := func() ([]provider.BalanceResult, error) {
		return r.cfg.Provider.QueryBalances(r.ctx, r.cfg.WalletID, r.cfg.Registry)
	}

	results, err := backoff.Retry(r.ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(defaultQueryTries),
		backoff.WithNotify(notify))
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Warn("Balance refresh failed",
			zap.String("wallet_id", r.cfg.WalletID),
			zap.Error(err))
		r.publish(&RefreshFailedEvent{
			BaseEvent: events.NewBase(events.BalanceRefreshFailed),
			WalletID:  r.cfg.WalletID,
			Err:       err,
		})
		return
	}

	snap := NewSnapshot(r.cfg.Registry, results, r.cfg.Prices)

	if !r.apply(gen, snap) {
		r.logger.Debug("Discarding superseded balance refresh",
			zap.Uint64("generation", gen))
		return
	}

	r.logger.Debug("Balances refreshed",
		zap.String("wallet_id", r.cfg.WalletID),
		zap.Int("assets", len(snap.Assets)))

	r.publish(&UpdatedEvent{
		BaseEvent: events.NewBase(events.BalancesUpdated),
		WalletID:  r.cfg.WalletID,
		Snapshot:  snap,
	})
}

func (r *Refresher) apply(gen uint64, snap Snapshot) bool {
	if r.ctx.Err() != nil || gen != r.generation.Load() {
		return false
	}
	r.mu.Lock()
	r.snapshot = &snap
	r.mu.Unlock()
	return true
}

func (r *Refresher) publish(event events.Event) {
	if r.cfg.Bus == nil {
		return
	}
	if err := r.cfg.Bus.Publish(event); err != nil {
		r.logger.Warn("Failed to publish balance event", zap.Error(err))
	}
}
