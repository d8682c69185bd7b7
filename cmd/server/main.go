// Walletscope - Wallet risk scoring and transaction-graph analysis
package main

import (
	"context"
	"os"
	"time"

	"github.com/mbd888/walletscope/internal/config"
	"github.com/mbd888/walletscope/internal/logging"
	"github.com/mbd888/walletscope/internal/server"
	"github.com/mbd888/walletscope/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration first so the logger honors LOG_LEVEL/LOG_FORMAT
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting walletscope",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"indexer", cfg.IndexerURL,
	)

	ctx := context.Background()

	// Tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(shutdownCtx); err != nil {
			logger.Error("trace shutdown error", "error", err)
		}
	}()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
