package hub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Relay routes published payloads through a Redis channel so that observers
// connected to any API instance see completions committed on every instance.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRelay connects to Redis and wraps the given hub.
func NewRelay(redisURL, channel string, h *Hub) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Relay{client: client, channel: channel, hub: h}, nil
}

// Publish sends the payload to the Redis channel. Errors are logged and
// swallowed; broadcast stays fire-and-forget toward the caller.
func (r *Relay) Publish(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Printf("relay publish error: %v", err)
	}
}

// Run subscribes to the Redis channel and feeds received payloads into the
// local hub until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.hub.Publish([]byte(msg.Payload))
		}
	}
}

func (r *Relay) Close() error {
	return r.client.Close()
}
