package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/callout/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces room channels on a shared Redis.
const DefaultChannelPrefix = "callout:room:"

// RedisPublisher publishes room messages to one Redis channel per room so
// several server nodes can serve sockets for the same room.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher wraps a connected client.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the Redis channel of roomID.
func (p *RedisPublisher) Channel(roomID string) string {
	return p.prefix + roomID
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(msg.RoomID), raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Relay subscribes to every room channel under prefix and republishes the
// messages on the local bus until ctx is done.
func Relay(ctx context.Context, client *redis.Client, prefix string, bus *Bus, log logger.Logger) {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	sub := client.PSubscribe(ctx, prefix+"*")
	ch := sub.Channel()
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn(ctx, "relay decode failed", logger.Error(err))
					continue
				}
				if msg.RoomID == "" {
					msg.RoomID = strings.TrimPrefix(m.Channel, prefix)
				}
				_ = bus.Publish(ctx, msg)
			}
		}
	}()
}

// Fanout publishes to several publishers and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
