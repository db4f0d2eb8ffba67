// Package events announces logged exchanges on a Redis pub/sub channel so that
// dashboards and other listeners can follow the conversation live.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stubot/internal/model"
)

// ExchangeEvent is the payload published for each logged exchange.
type ExchangeEvent struct {
	Type     string          `json:"type"`
	Exchange *model.Exchange `json:"exchange"`
}

const EventExchangeLogged = "exchange.logged"

// RedisPublisher publishes exchange events to a single channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects to the server at redisURL (redis://host:port/db).
// The connection is established lazily; call Ping to verify it.
func NewRedisPublisher(redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisPublisher{
		rdb:     redis.NewClient(opts),
		channel: channel,
	}, nil
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Publish sends ex to the channel. Delivery is fire-and-forget: listeners that
// are not subscribed at the time miss the event.
func (p *RedisPublisher) Publish(ctx context.Context, ex *model.Exchange) error {
	data, err := json.Marshal(ExchangeEvent{Type: EventExchangeLogged, Exchange: ex})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
