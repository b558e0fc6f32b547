// Package di provides dependency injection factories for creating application components.
package di

import (
	infrahttp "market_ingestor/internal/platform/http"
	"market_ingestor/internal/platform/externalapi/nse"
	"market_ingestor/internal/shared/ratelimiter"
)

// NewMarket creates a fully configured NSE client with a cookie aware HTTP client and a shared rate limiter.
func NewMarket() *nse.Client {
	cfg := nse.LoadConfig()
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	limiter := ratelimiter.NewRateLimiter(cfg.RateLimit, cfg.RateInterval)
	return nse.NewClient(cfg, httpClient, limiter)
}
