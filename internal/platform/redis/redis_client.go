package redis

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// LoadConfigFromEnv reads the Redis settings from environment variables.
// REDIS_URL takes precedence over REDIS_HOST / REDIS_PORT when set.
func LoadConfigFromEnv() Config {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	cfg := Config{
		Addr:        host + ":" + port,
		Password:    os.Getenv("REDIS_PASSWORD"),
		PingTimeout: 5 * time.Second,
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = v
	}
	return cfg
}

// NewRedisClient creates a client and verifies the connection with PING.
// A few attempts are made within PingTimeout before giving up.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if u := os.Getenv("REDIS_URL"); u != "" {
		parsed, err := redis.ParseURL(u)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = cfg.PingTimeout
	b.Reset()

	// 接続確認
	err := backoff.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx))
	if err != nil {
		slog.Error("Redis connection failed", "address", opts.Addr, "error", err)
		_ = rdb.Close()
		return nil, err
	}

	slog.Info("Redis connection successful", "address", opts.Addr)
	return rdb, nil
}
