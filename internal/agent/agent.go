// Package agent is the central orchestrator of the latency-arbitrage
// signal agent. It wires together the spot order book, the reference
// price feed, the prediction-market maintainer/streamer, the signal
// evaluator, and the trade gate, then drives a once-per-second snapshot
// tick that recomputes the signal and (optionally) publishes state to
// the HTTP/WS collaborator surface.
//
// Lifecycle: New() → Start() → [runs until context cancellation] → Stop()
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spotarb/internal/api"
	"spotarb/internal/clob"
	"spotarb/internal/config"
	"spotarb/internal/predictionmarket"
	"spotarb/internal/refprice"
	"spotarb/internal/signal"
	"spotarb/internal/spotbook"
	"spotarb/internal/store"
	"spotarb/internal/tradegate"
	"spotarb/internal/types"
)

const snapshotInterval = time.Second

// snapshotSink receives a SnapshotRecord once per tick. *api.Server
// implements it; tests can substitute a recording fake.
type snapshotSink interface {
	BroadcastSnapshot(rec types.SnapshotRecord)
}

// Agent orchestrates every component of the signal agent.
type Agent struct {
	cfg config.Config

	spotFeed   *spotbook.Feed
	refFeed    *refprice.Feed
	catalog    *predictionmarket.Catalog
	scraper    *predictionmarket.Scraper
	maintainer *predictionmarket.Maintainer
	streamer   *predictionmarket.Streamer
	evaluator  *signal.Evaluator
	clobClient *clob.Client
	gate       *tradegate.Gate
	store      *store.Store

	sink snapshotSink

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires all components from cfg. It does not start any goroutines.
func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tradeCfg := types.TradeConfig{
		OrderSize:    cfg.Risk.InitialOrderSize,
		MaxPriceUp:   cfg.Risk.InitialMaxPriceUp,
		MaxPriceDown: cfg.Risk.InitialMaxPriceDown,
	}
	if saved, err := st.LoadTradeConfig(); err != nil {
		logger.Warn("failed to load persisted trade config, using configured defaults", "error", err)
	} else if saved != nil {
		tradeCfg = *saved
	}

	spotFeed := spotbook.NewFeed(cfg.Spot.Symbol, cfg.Spot.SnapshotURL, cfg.Spot.StreamURL, logger)
	refFeed := refprice.NewFeed(cfg.RefPrice.StreamURL, logger)

	catalog := predictionmarket.NewCatalog(cfg.Market.CatalogBaseURL, cfg.Market.SlugPrefix)
	scraper := predictionmarket.NewScraper([2]float64{cfg.Market.ScrapeSanityMin, cfg.Market.ScrapeSanityMax})
	maintainer := predictionmarket.NewMaintainer(catalog, scraper, refFeed, logger)
	streamer := predictionmarket.NewStreamer(maintainer, cfg.Market.StreamURL, logger)

	evaluator := signal.NewEvaluator(cfg.Signal.Tau1, cfg.Signal.Tau3, cfg.Signal.StalenessThreshold.Milliseconds(), cfg.Signal.MinConfidence)

	var auth *clob.Auth
	if cfg.Wallet.Address != "" {
		auth, err = clob.NewAuth(cfg.Wallet.Address, cfg.Wallet.APIKey, cfg.Wallet.Secret, cfg.Wallet.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("build clob auth: %w", err)
		}
	}
	clobClient := clob.NewClient(cfg.CLOB.BaseURL, auth, cfg.DryRun, logger)

	if !cfg.DryRun {
		diag := clobClient.Diagnose(context.Background())
		if !diag.APIKeysOK {
			return nil, fmt.Errorf("clob authentication diagnostic failed in live mode: api-keys check did not pass")
		}
	}

	limits := tradegate.RiskLimits{
		MaxSize:               cfg.Risk.MaxSize,
		MaxSpread:             cfg.Risk.MaxSpread,
		StaleQuoteThresholdMs: cfg.Risk.StaleQuoteThreshold.Milliseconds(),
	}
	gate := tradegate.NewGate(tradeCfg, limits, cfg.Risk.Mode, streamer.State, maintainer, clobClient, st)

	return &Agent{
		cfg:        cfg,
		spotFeed:   spotFeed,
		refFeed:    refFeed,
		catalog:    catalog,
		scraper:    scraper,
		maintainer: maintainer,
		streamer:   streamer,
		evaluator:  evaluator,
		clobClient: clobClient,
		gate:       gate,
		store:      st,
		logger:     logger.With("component", "agent"),
	}, nil
}

// SetSink attaches the HTTP/WS server so the snapshot ticker can
// broadcast. Must be called before Start. A nil sink (the default)
// disables broadcasting without affecting snapshot computation.
func (a *Agent) SetSink(sink snapshotSink) {
	a.sink = sink
}

// Gate returns the trade gate for the API layer to drive operator
// mutations through.
func (a *Agent) Gate() *tradegate.Gate {
	return a.gate
}

// Start performs the mandatory synchronous startup sequence — an
// initial catalog discovery, fatal on failure per spec.md §5's startup
// ordering — then launches one goroutine per streaming component plus
// the snapshot ticker.
func (a *Agent) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.maintainer.Refresh(a.ctx); err != nil {
		return fmt.Errorf("initial market discovery: %w", err)
	}

	a.spawn(func() { a.spotFeed.Run(a.ctx) })
	a.spawn(func() { a.refFeed.Run(a.ctx) })
	a.spawn(func() { a.maintainer.RunPeriodic(a.ctx) })
	a.spawn(func() { a.streamer.Run(a.ctx) })
	a.spawn(a.runSnapshotTicker)

	return nil
}

// Stop cancels all background work and waits for it to exit.
func (a *Agent) Stop() {
	a.logger.Info("shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("shutdown complete")
}

func (a *Agent) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *Agent) runSnapshotTicker() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Agent) tick() {
	nowMs := time.Now().UnixMilli()

	r1, _ := a.spotFeed.Book.Returns(time.Second, nowMs)
	r3, _ := a.spotFeed.Book.Returns(3*time.Second, nowMs)
	staleness, ok := a.streamer.State.Staleness(nowMs)
	if !ok {
		staleness = a.cfg.Signal.StalenessThreshold.Milliseconds() + 1
	}

	a.evaluator.Recompute(r1, r3, staleness)

	if a.sink != nil {
		a.sink.BroadcastSnapshot(api.BuildSnapshot(a))
	}
}

// SpotQuote, SpotReturn, SpotStdDev, PredictionQuote,
// PredictionStaleness, ActiveMarket, RemainingSeconds, and SignalState
// implement api.SnapshotProvider so internal/api can build a
// SnapshotRecord without importing any core package directly.

func (a *Agent) SpotQuote(nowMs int64) (types.Quote, bool) {
	return a.spotFeed.Book.CurrentQuote(nowMs)
}

func (a *Agent) SpotReturn(window time.Duration, nowMs int64) (float64, bool) {
	return a.spotFeed.Book.Returns(window, nowMs)
}

func (a *Agent) SpotStdDev(window time.Duration, nowMs int64) (float64, bool) {
	return a.spotFeed.Book.StdDev(window, nowMs)
}

func (a *Agent) PredictionQuote() types.PredictionQuote {
	return a.streamer.State.Snapshot()
}

func (a *Agent) PredictionStaleness(nowMs int64) (int64, bool) {
	return a.streamer.State.Staleness(nowMs)
}

func (a *Agent) ActiveMarket() (types.ActiveMarket, bool) {
	return a.maintainer.CurrentMarket()
}

func (a *Agent) RemainingSeconds(now time.Time) (int64, bool) {
	return a.maintainer.RemainingSeconds(now)
}

func (a *Agent) SignalState() types.SignalState {
	return a.evaluator.State()
}
