package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisPublisher publishes lifecycle events to a single Redis pub/sub
// channel via github.com/go-redis/redis/v8.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher dials addr and returns a Publisher that PUBLISHes
// every event to channel as JSON.
func NewRedisPublisher(addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish JSON-encodes evt and PUBLISHes it on the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, body).Err()
}

// Close releases the underlying Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Subscribe returns a Redis pub/sub subscription on the publisher's
// channel, for in-process test harnesses and operator tooling that want
// to observe the fan-out without a separate consumer process.
func (p *RedisPublisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, p.channel)
}
