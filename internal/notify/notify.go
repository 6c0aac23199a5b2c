// Package notify publishes product-created events. Publishing is best
// effort: callers log failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes notifications as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher publishes to channel through client.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends n to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, n core.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// LogPublisher writes notifications to a structured logger instead of a
// broker.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher logs through logger, or slog.Default when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs n at info level.
func (p *LogPublisher) Publish(ctx context.Context, n core.Notification) error {
	p.logger.InfoContext(ctx, n.Message,
		"type", n.Type,
		"product_id", n.Product.ID,
		"title", n.Product.Title,
		"price", n.Product.Price,
		"count", n.Product.Count,
	)
	return nil
}
