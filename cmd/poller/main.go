package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_ingestor/internal/app/config"
	"market_ingestor/internal/app/di"
	"market_ingestor/internal/app/router"
	tickshandler "market_ingestor/internal/feature/ticks/transport/handler"
	"market_ingestor/internal/platform/logging"
)

func main() {
	interval := flag.Duration("interval", 0, "poll interval (default POLL_INTERVAL or 60s)")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.LoadConfigFromEnv()
	if *interval > 0 {
		cfg.PollInterval = *interval
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := di.Bootstrap(ctx, cfg, logger, true)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	ticks := res.NewLiveTickStore()
	poller := res.NewPoller(ticks)

	srv := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           router.NewRouter(tickshandler.NewPollerHandler(poller), tickshandler.NewLatestHandler(ticks)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	if err := poller.Run(ctx); err != nil {
		logger.Error("poller stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", "error", err)
	}
	logger.Info("poller shut down")
}
