package predictionmarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"spotarb/internal/types"
)

// refreshInterval is the periodic re-discovery cadence (spec.md §4.3
// "every 60 s thereafter").
const refreshInterval = 60 * time.Second

// referencePriceSource is the narrow slice of refprice.Feed the target
// price fallback needs.
type referencePriceSource interface {
	CurrentPrice() (types.ReferencePriceMessage, bool)
}

// targetScraper is the narrow interface *Scraper satisfies; accepting
// it here lets tests inject a fake without a network round trip.
type targetScraper interface {
	ScrapeTargetPrice(ctx context.Context, slug string) (float64, bool, error)
}

// Maintainer discovers and tracks the single currently-active
// short-horizon contract, acquiring its per-window target price and
// signaling the streaming subscriber to tear down and reopen whenever
// the condition identifier changes (spec.md §4.3, §9 "Active-market
// replacement").
type Maintainer struct {
	catalog *Catalog
	scraper targetScraper
	refPrice referencePriceSource
	logger  *slog.Logger

	mu      sync.RWMutex
	current types.ActiveMarket
	hasCurrent bool

	resubscribe atomic.Bool
}

// NewMaintainer constructs a Maintainer.
func NewMaintainer(catalog *Catalog, scraper targetScraper, refPrice referencePriceSource, logger *slog.Logger) *Maintainer {
	return &Maintainer{
		catalog:  catalog,
		scraper:  scraper,
		refPrice: refPrice,
		logger:   logger,
	}
}

// Refresh performs one discovery attempt, swapping the active market
// descriptor if the condition id changed. Callers must treat a failed
// first call as fatal per spec.md §5 "Startup ordering"; subsequent
// calls should only be logged.
func (m *Maintainer) Refresh(ctx context.Context) error {
	next, err := m.catalog.Discover(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("discover active market: %w", err)
	}

	m.mu.Lock()
	changed := !m.hasCurrent || m.current.ConditionID != next.ConditionID
	if changed {
		m.current = next
		m.hasCurrent = true
		m.resubscribe.Store(true)
	}
	m.mu.Unlock()

	if changed && m.logger != nil {
		m.logger.Info("prediction market active window changed",
			"condition_id", next.ConditionID, "slug", next.Slug)
	}
	return nil
}

// RunPeriodic runs the 60s re-discovery loop until ctx is canceled,
// logging (never returning) on failure per spec.md §7 "Catalog failure
// during periodic refresh".
func (m *Maintainer) RunPeriodic(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && m.logger != nil {
				m.logger.Warn("prediction market refresh failed, retaining previous active market", "err", err)
			}
			m.tryAcquireTarget(ctx)
		}
	}
}

// tryAcquireTarget attempts the scrape-then-fallback target price
// acquisition of spec.md §4.3 for the currently tracked window, if it
// doesn't already have one.
func (m *Maintainer) tryAcquireTarget(ctx context.Context) {
	m.mu.RLock()
	cur := m.current
	has := m.hasCurrent
	alreadySet := cur.HasTarget
	m.mu.RUnlock()
	if !has || alreadySet {
		return
	}

	if price, ok, err := m.scraper.ScrapeTargetPrice(ctx, cur.Slug); err == nil && ok {
		m.setTarget(cur.ConditionID, price)
		return
	}

	if time.Now().Before(cur.WindowStart) {
		return
	}
	if m.refPrice == nil {
		return
	}
	if msg, ok := m.refPrice.CurrentPrice(); ok {
		m.setTarget(cur.ConditionID, msg.Value)
	}
}

func (m *Maintainer) setTarget(conditionID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.ConditionID != conditionID {
		return // replaced while we were fetching
	}
	m.current.HasTarget = true
	m.current.TargetPrice = price
}

// ForceSetTarget sets the target price for the current window even if
// one is already set, bypassing the "set once" rule of tryAcquireTarget
// — the one exception noted in spec.md §8. It is a no-op if conditionID
// is no longer the current market's.
func (m *Maintainer) ForceSetTarget(conditionID string, price float64) {
	m.setTarget(conditionID, price)
}

// CurrentMarket returns a cloned snapshot of the active market, or
// ok=false if discovery has never succeeded.
func (m *Maintainer) CurrentMarket() (types.ActiveMarket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.hasCurrent
}

// ConsumeResubscribe reports and clears the resubscribe flag; the
// streaming subscriber polls this after each message and whenever its
// connection drops.
func (m *Maintainer) ConsumeResubscribe() bool {
	return m.resubscribe.Swap(false)
}

// RemainingSeconds returns max(0, window_end - now) for the currently
// tracked window, or ok=false if there is no active market.
func (m *Maintainer) RemainingSeconds(now time.Time) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasCurrent {
		return 0, false
	}
	remaining := int64(m.current.WindowEnd.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
