// Package config loads the process level settings shared by the ingestion commands.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"market_ingestor/internal/shared/executor"
)

const (
	defaultPollInterval  = 60 * time.Second
	defaultOpTimeout     = 30 * time.Second
	defaultBackfillDelay = time.Second
	defaultHealthAddr    = ":8080"
	defaultChannelPrefix = "market_data"
)

// Config holds settings that are not owned by a single platform package.
type Config struct {
	TrackedCompanies    []string
	ProviderConcurrency int
	PollInterval        time.Duration
	OpTimeout           time.Duration
	BackfillDelay       time.Duration
	HealthAddr          string
	ChannelPrefix       string
	LogLevel            string
	LogFormat           string
}

// LoadDotEnv loads .env into the environment when present. Existing variables are not overridden.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
}

// LoadConfigFromEnv reads Config from environment variables, applying defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrackedCompanies:    splitList(os.Getenv("TRACKED_COMPANIES")),
		ProviderConcurrency: intEnv("PROVIDER_CONCURRENCY", executor.DefaultSize),
		PollInterval:        durationEnv("POLL_INTERVAL", defaultPollInterval),
		OpTimeout:           durationEnv("OP_TIMEOUT", defaultOpTimeout),
		BackfillDelay:       durationEnv("BACKFILL_DELAY", defaultBackfillDelay),
		HealthAddr:          stringEnv("HEALTH_ADDR", defaultHealthAddr),
		ChannelPrefix:       stringEnv("REDIS_CHANNEL_PREFIX", defaultChannelPrefix),
		LogLevel:            stringEnv("LOG_LEVEL", "info"),
		LogFormat:           stringEnv("LOG_FORMAT", "text"),
	}
}

// splitList splits a comma or semicolon separated list, dropping empty entries.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// durationEnv accepts Go durations ("90s") and plain seconds ("90").
func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def)
	return def
}
