package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_ingestor/internal/app/config"
	"market_ingestor/internal/app/di"
	tickusecase "market_ingestor/internal/feature/ticks/usecase"
	"market_ingestor/internal/platform/logging"
)

func main() {
	symbol := flag.String("symbol", "", "backfill only this symbol instead of every known company")
	days := flag.Int("days", 0, "window length in days ending today (default 10 years)")
	flag.Parse()

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

	var symbols []string
	if *symbol != "" {
		symbols = []string{*symbol}
	} else if symbols, err = res.ListSymbols(ctx); err != nil {
		logger.Error("failed to load symbols", "error", err)
		return
	}

	start, end := tickusecase.DefaultWindow(time.Now())
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}

	logger.Info("backfill started", "symbols", len(symbols),
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	if err := res.NewBackfillUsecase().BackfillAll(ctx, symbols, start, end); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("backfill interrupted")
			return
		}
		logger.Error("backfill failed", "error", err)
		return
	}
	logger.Info("backfill ok")
}
