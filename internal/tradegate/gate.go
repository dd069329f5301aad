// Package tradegate enforces the pre-trade risk policy and submits
// authenticated orders on explicit operator instruction (spec.md §4.5).
package tradegate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spotarb/internal/types"
)

// RiskLimits are the static, configuration-bounded limits the
// operator-mutated TradeConfig may never exceed (spec.md §3 "Trading
// configuration state").
type RiskLimits struct {
	MaxSize               float64
	MaxSpread             float64
	StaleQuoteThresholdMs int64
}

// quoteSource is the narrow slice of predictionmarket.QuoteState the
// gate needs.
type quoteSource interface {
	Snapshot() types.PredictionQuote
	Staleness(nowMs int64) (int64, bool)
}

// marketSource is the narrow slice of predictionmarket.Maintainer the
// gate needs.
type marketSource interface {
	CurrentMarket() (types.ActiveMarket, bool)
}

// orderSubmitter is the narrow slice of clob.Client the gate needs.
type orderSubmitter interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)
}

// configPersister is the narrow slice of store.Store the gate needs.
type configPersister interface {
	SaveTradeConfig(cfg types.TradeConfig) error
}

// Gate holds the mutable trading configuration and enforces the
// ordered risk checks before submitting an order.
type Gate struct {
	mu sync.Mutex

	config types.TradeConfig
	limits RiskLimits
	mode   string // "dry_run" or "live"

	quotes  quoteSource
	market  marketSource
	client  orderSubmitter
	persist configPersister

	actionLog []types.ActionLogEntry
}

// NewGate constructs a Gate. mode must be "dry_run" or "live" per
// spec.md §9's open question (no hybrid "paper" mode).
func NewGate(initial types.TradeConfig, limits RiskLimits, mode string, quotes quoteSource, market marketSource, client orderSubmitter, persist configPersister) *Gate {
	return &Gate{
		config:  initial,
		limits:  limits,
		mode:    mode,
		quotes:  quotes,
		market:  market,
		client:  client,
		persist: persist,
	}
}

// PlaceOrder evaluates the risk policy of spec.md §4.5 for side and,
// if allowed, submits the order. The returned entry is appended to the
// action log regardless of the outcome.
func (g *Gate) PlaceOrder(ctx context.Context, side types.Side) types.ActionLogEntry {
	g.mu.Lock()
	cfg := g.config
	mode := g.mode
	g.mu.Unlock()

	entry := types.ActionLogEntry{
		Timestamp: time.Now(),
		Side:      side,
		Size:      cfg.OrderSize,
		Mode:      mode,
		PostOnly:  true, // recorded per spec.md §9; not linked to the submitted order type
	}

	if cfg.KillSwitchOn {
		return g.reject(entry, types.RejectKillSwitch)
	}
	if cfg.OrderSize > g.limits.MaxSize {
		return g.reject(entry, types.RejectSizeExceeded)
	}

	nowMs := time.Now().UnixMilli()
	staleness, ok := g.quotes.Staleness(nowMs)
	if !ok || staleness > g.limits.StaleQuoteThresholdMs {
		return g.reject(entry, types.RejectStaleQuote)
	}

	market, ok := g.market.CurrentMarket()
	if !ok {
		return g.reject(entry, types.RejectStaleQuote)
	}

	quote := g.quotes.Snapshot()
	sideQuote, maxPrice, tokenID := sideView(side, quote, cfg, market)

	limit := maxPrice
	if sideQuote.HasAsk {
		limit = minFloat(sideQuote.Ask, maxPrice)
	}
	if limit > maxPrice {
		return g.reject(entry, types.RejectPriceExceeded)
	}
	entry.Price = limit

	if sideQuote.HasBid && sideQuote.HasAsk {
		spread := sideQuote.Ask - sideQuote.Bid
		if spread > g.limits.MaxSpread {
			return g.reject(entry, types.RejectSpreadExceeded)
		}
	}

	req := types.OrderRequest{
		TokenID: tokenID,
		Price:   fmt.Sprintf("%.2f", limit),
		Size:    fmt.Sprintf("%.0f", cfg.OrderSize),
		Side:    types.Buy,
		Type:    types.GTC,
	}

	result, err := g.client.PlaceOrder(ctx, req)
	if err != nil {
		entry.Accepted = false
		entry.Reason = types.RejectNone
		entry.Summary = fmt.Sprintf("order submission failed: %v", err)
		g.appendLog(entry)
		return entry
	}

	entry.Accepted = true
	entry.Result = result
	entry.Summary = fmt.Sprintf("%s %s @ %.2f size %.0f: %s",
		mode, side, limit, cfg.OrderSize, outcomeSummary(result))
	g.appendLog(entry)
	return entry
}

func outcomeSummary(result *types.OrderResult) string {
	if result.Success {
		return fmt.Sprintf("accepted, order id %s", result.OrderID)
	}
	return fmt.Sprintf("rejected by venue: %s", result.ErrorMsg)
}

func sideView(side types.Side, quote types.PredictionQuote, cfg types.TradeConfig, market types.ActiveMarket) (types.QuoteSide, float64, string) {
	if side == types.SideDown {
		return quote.Down, cfg.MaxPriceDown, market.DownTokenID
	}
	return quote.Up, cfg.MaxPriceUp, market.UpTokenID
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (g *Gate) reject(entry types.ActionLogEntry, reason types.RejectionReason) types.ActionLogEntry {
	entry.Accepted = false
	entry.Reason = reason
	entry.Summary = fmt.Sprintf("rejected: %s", reason)
	g.appendLog(entry)
	return entry
}

func (g *Gate) appendLog(entry types.ActionLogEntry) {
	g.mu.Lock()
	g.actionLog = append(g.actionLog, entry)
	g.mu.Unlock()
}

// ToggleKillSwitch flips the kill-switch state and persists the
// updated configuration.
func (g *Gate) ToggleKillSwitch() types.TradeConfig {
	g.mu.Lock()
	g.config.KillSwitchOn = !g.config.KillSwitchOn
	cfg := g.config
	g.mu.Unlock()
	g.persistConfig(cfg)
	return cfg
}

// AdjustSize changes the configured order size by delta.
func (g *Gate) AdjustSize(delta float64) types.TradeConfig {
	g.mu.Lock()
	g.config.OrderSize += delta
	if g.config.OrderSize < 0 {
		g.config.OrderSize = 0
	}
	if g.limits.MaxSize > 0 && g.config.OrderSize > g.limits.MaxSize {
		g.config.OrderSize = g.limits.MaxSize
	}
	cfg := g.config
	g.mu.Unlock()
	g.persistConfig(cfg)
	return cfg
}

// AdjustMaxPrice changes the per-side maximum price cap by delta.
func (g *Gate) AdjustMaxPrice(side types.Side, delta float64) types.TradeConfig {
	g.mu.Lock()
	if side == types.SideDown {
		g.config.MaxPriceDown += delta
	} else {
		g.config.MaxPriceUp += delta
	}
	cfg := g.config
	g.mu.Unlock()
	g.persistConfig(cfg)
	return cfg
}

func (g *Gate) persistConfig(cfg types.TradeConfig) {
	if g.persist == nil {
		return
	}
	_ = g.persist.SaveTradeConfig(cfg)
}

// GetState returns the current trading configuration.
func (g *Gate) GetState() types.TradeConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config
}

// GetActionLog returns a cloned copy of the action log.
func (g *Gate) GetActionLog() []types.ActionLogEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.ActionLogEntry, len(g.actionLog))
	copy(out, g.actionLog)
	return out
}
