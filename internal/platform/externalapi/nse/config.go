// Package nse provides a client for the NSE India public market data API.
package nse

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL      = "https://www.nseindia.com"
	defaultTimeout      = 10 * time.Second
	defaultRateLimit    = 3
	defaultRateInterval = time.Second
	// historyChunkDays is the widest date range the historical endpoint serves in one call.
	historyChunkDays = 100
)

// Config holds configuration for the NSE API client.
type Config struct {
	BaseURL      string        // Base URL for the API (e.g., "https://www.nseindia.com")
	Timeout      time.Duration // HTTP request timeout
	RateLimit    int           // Requests allowed per RateInterval, <= 0 disables limiting
	RateInterval time.Duration
	UserAgent    string
}

// LoadConfig loads NSE configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:      os.Getenv("NSE_BASE_URL"),
		Timeout:      defaultTimeout,
		RateLimit:    defaultRateLimit,
		RateInterval: defaultRateInterval,
		UserAgent:    os.Getenv("NSE_USER_AGENT"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	}
	if v, err := time.ParseDuration(os.Getenv("NSE_TIMEOUT")); err == nil && v > 0 {
		cfg.Timeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("NSE_RATE_LIMIT")); err == nil {
		cfg.RateLimit = v
	}
	return cfg
}
