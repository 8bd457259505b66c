// betd places bets on Azuro-style prediction markets from one wallet.
//
// Architecture:
//
//	main.go              entry point: loads config, starts engine and API, waits for SIGINT/SIGTERM
//	engine/engine.go     orchestrator: wires chain, odds, risk, ledger, metrics and publishers
//	bet/preparer.go      bet workflow: allowance, approve, odds, bet, fire-once callbacks
//	tx/state.go          transaction lifecycle: idle, pending, processing, success or error
//	tx/sender.go         signs, broadcasts and confirms transactions
//	chain/resolver.go    maps the node's chain id to contract metadata
//	contracts/abi.go     ERC20, proxy front and core ABIs
//	odds/                odds from calcOdds on the cores or an external odds API
//	risk/manager.go      max stake, max slippage, daily stake and failure cooldown
//	store/store.go       JSON file ledger of bets (survives restarts)
//	notify/notify.go     lifecycle events to Kafka
//	api/                 HTTP routes, WebSocket stream and /metrics
//
// A bet is submitted in two steps when the bet token allowance is short:
// the first POST /api/bets sends the approval, the second places the bet.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"azuro-bet/internal/api"
	"azuro-bet/internal/config"
	"azuro-bet/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BET_CONFIG"); p != "" {
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

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	eng, err := engine.New(ctx, *cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE: transactions are signed but never broadcast")
	}

	account := eng.Account()
	logger.Info("bet service started",
		"account", account.Address.Hex(),
		"chain_id", account.ChainID,
		"supported", eng.Chain() != nil,
		"odds_source", cfg.Odds.Source,
		"dry_run", cfg.DryRun,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}

	eng.Stop()
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
