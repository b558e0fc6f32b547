package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"market_ingestor/internal/app/config"
	"market_ingestor/internal/app/di"
	"market_ingestor/internal/platform/logging"
)

func main() {
	force := flag.Bool("force", false, "ignore the 30 day cache and refetch every company")
	flag.Parse()

	// .envを読み込む
	config.LoadDotEnv()
	cfg := config.LoadConfigFromEnv()
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := di.Bootstrap(ctx, cfg, logger, false)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	queries, err := res.QueryUniverse(ctx)
	if err != nil {
		logger.Error("failed to load requested companies; refreshing tracked companies only", "error", err)
	}
	if len(queries) == 0 {
		logger.Warn("no companies to refresh; set TRACKED_COMPANIES or add user requests")
		return
	}

	symbols, err := res.NewRefreshUsecase().RefreshAll(ctx, queries, *force)
	if err != nil {
		logger.Warn("refresh interrupted", "error", err, "symbols", len(symbols))
		return
	}
	logger.Info("refresh ok", "symbols", symbols)
}
