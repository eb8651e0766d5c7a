package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel real-time consumers subscribe to.
const DefaultChannel = "video_events"

// RedisSink publishes events on a Redis pub/sub channel, the transport the
// realtime layer fans out to connected clients from.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink builds a sink over an existing client. An empty channel name
// selects DefaultChannel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (r *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}
