// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/feature/ticks/usecase"
)

// CachingTickRepository decorates a TickRepository with a Redis snapshot of
// the latest tick per symbol. The snapshot expires when the next trading
// session opens unless a fixed ttl is given.
type CachingTickRepository struct {
	inner     usecase.TickRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

var _ usecase.TickRepository = (*CachingTickRepository)(nil)

// NewCachingTickRepository decorates inner. rdb may be nil, in which case the
// decorator only forwards. If namespace is empty, it uses "ticks".
func NewCachingTickRepository(rdb *redis.Client, ttl time.Duration, inner usecase.TickRepository, namespace string) *CachingTickRepository {
	if namespace == "" {
		namespace = "ticks"
	}
	return &CachingTickRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		now:       time.Now,
	}
}

// Append stores the tick and then refreshes the snapshot when it is newer.
func (c *CachingTickRepository) Append(ctx context.Context, tick entity.Tick) error {
	if err := c.inner.Append(ctx, tick); err != nil {
		return err
	}
	if c.rdb == nil || tick.IsPlaceholder() {
		return nil
	}

	if cur, ok, err := c.Latest(ctx, tick.Symbol); err == nil && ok && !tick.Time.After(cur.Time) {
		return nil
	}
	if b, err := json.Marshal(tick); err == nil {
		_ = c.rdb.Set(ctx, c.cacheKey(tick.Symbol), b, c.expiry()).Err() // Best effort
	}
	return nil
}

// BulkAppend forwards to the inner repository. Bulk writes are historical and never touch the snapshot.
func (c *CachingTickRepository) BulkAppend(ctx context.Context, ticks []entity.Tick) error {
	return c.inner.BulkAppend(ctx, ticks)
}

// Latest returns the cached latest tick of symbol. ok is false on a miss.
func (c *CachingTickRepository) Latest(ctx context.Context, symbol string) (entity.Tick, bool, error) {
	if c.rdb == nil {
		return entity.Tick{}, false, nil
	}

	key := c.cacheKey(symbol)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Tick{}, false, nil
	}
	if err != nil {
		return entity.Tick{}, false, fmt.Errorf("read latest tick: %w", err)
	}

	var out entity.Tick
	if err := json.Unmarshal(b, &out); err != nil {
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
		return entity.Tick{}, false, nil
	}
	return out, true, nil
}

func (c *CachingTickRepository) expiry() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return TimeUntilNextOpen(c.now())
}

// cacheKey generates the snapshot key for symbol.
func (c *CachingTickRepository) cacheKey(symbol string) string {
	return fmt.Sprintf("%s:latest:%s", c.namespace, safe(symbol))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
