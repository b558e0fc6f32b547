package di

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	tickadapters "market_ingestor/internal/feature/ticks/adapters"
	"market_ingestor/internal/feature/ticks/usecase"
)

// NewTickPublisher creates a TickPublisher.
// If Redis is available, ticks are published to "<prefix>:<SYMBOL>".
// Otherwise the returned publisher drops every tick.
func NewTickPublisher(rdb *redis.Client, prefix string) usecase.TickPublisher {
	if rdb == nil {
		slog.Warn("Redis unavailable. Ticks will not be published.")
	}
	return tickadapters.NewRedisPublisher(rdb, prefix)
}
