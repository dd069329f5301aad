// Spot-arb signal agent — watches a Binance BTC/USDT order book and a
// Polymarket 15-minute up/down market side by side, and raises a
// directional signal when the spot move has outrun the prediction
// market's repricing.
//
// Architecture:
//
//	main.go                        — entry point: loads config, starts the agent, waits for SIGINT/SIGTERM
//	internal/agent/agent.go        — orchestrator: wires every feed, the evaluator, and the trade gate
//	internal/spotbook/book.go      — local BTC/USDT book mirror fed by WebSocket depth updates
//	internal/refprice/feed.go      — Binance mark/index price stream used as the target-price fallback when scraping fails
//	internal/predictionmarket      — market discovery, target-price scraping, and quote streaming
//	internal/signal/evaluator.go   — decision-table signal evaluator
//	internal/clob/client.go        — REST client for the Polymarket CLOB API
//	internal/tradegate/gate.go     — ordered risk checks gating manual order placement
//	internal/store/store.go        — JSON file persistence for operator-adjustable trade config
//	internal/api                   — read-only HTTP/WS snapshot surface plus operator controls
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"spotarb/internal/agent"
	"spotarb/internal/api"
	"spotarb/internal/config"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("SPOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ag, err := agent.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, ag, ag.Gate(), logger)
		ag.SetSink(apiServer)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ag.Start(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("spot-arb signal agent started",
		"symbol", cfg.Spot.Symbol,
		"slug_prefix", cfg.Market.SlugPrefix,
		"mode", cfg.Risk.Mode,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	cancel()
	ag.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
