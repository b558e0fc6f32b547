package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/feature/ticks/usecase"
)

// DefaultChannelPrefix is the pub/sub channel prefix; ticks of SYM go to "market_data:SYM".
const DefaultChannelPrefix = "market_data"

// RedisPublisher implements usecase.TickPublisher with Redis PUBLISH.
// A publisher without a client drops every message.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

var _ usecase.TickPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a new RedisPublisher. client may be nil.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel name for symbol.
func (p *RedisPublisher) Channel(symbol string) string {
	return fmt.Sprintf("%s:%s", p.prefix, symbol)
}

// tickMessage is the JSON body of a published tick.
type tickMessage struct {
	Time     string      `json:"time"`
	Symbol   string      `json:"symbol"`
	Open     json.Number `json:"open"`
	High     json.Number `json:"high"`
	Low      json.Number `json:"low"`
	Close    json.Number `json:"close"`
	Volume   int64       `json:"volume"`
	Exchange string      `json:"exchange"`
}

// EncodeTick returns the JSON body published for tick.
func EncodeTick(tick entity.Tick) ([]byte, error) {
	return json.Marshal(tickMessage{
		Time:     tick.Time.UTC().Format(time.RFC3339),
		Symbol:   tick.Symbol,
		Open:     json.Number(tick.Open.String()),
		High:     json.Number(tick.High.String()),
		Low:      json.Number(tick.Low.String()),
		Close:    json.Number(tick.Close.String()),
		Volume:   tick.Volume,
		Exchange: tick.Exchange,
	})
}

// Publish sends tick to its symbol channel.
func (p *RedisPublisher) Publish(ctx context.Context, tick entity.Tick) error {
	if p.client == nil {
		return nil
	}
	data, err := EncodeTick(tick)
	if err != nil {
		return fmt.Errorf("failed to marshal tick: %w", err)
	}
	return p.client.Publish(ctx, p.Channel(tick.Symbol), data).Err()
}
