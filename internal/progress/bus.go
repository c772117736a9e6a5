// Package progress carries upload progress updates from the upload handler
// to the websocket that reports them, over Redis pub/sub so the two can live
// in different processes.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Update is one progress tick for a user's upload. Provider is empty for the
// browser-to-mobius upload and set when a model is being pushed to a print
// provider.
type Update struct {
	Provider string `json:"provider,omitempty"`
	Progress int    `json:"progress"`
}

// Bus publishes and subscribes to per-user progress channels.
type Bus interface {
	Publish(ctx context.Context, userID string, update Update) error
	Subscribe(ctx context.Context, userID string) (<-chan Update, func())
}

// RedisBus is the Redis pub/sub implementation of Bus.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(addr, password string, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBus{client: rdb, log: log}, nil
}

// Client exposes the underlying Redis client so other components (quote
// cache, provider model id mapping) can share the connection.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) Publish(ctx context.Context, userID string, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelKey(userID), payload).Err()
}

// Subscribe returns a channel of updates for the user and a cancel function.
// The channel is closed when the subscription ends.
func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan Update, func()) {
	pubsub := b.client.Subscribe(ctx, channelKey(userID))
	updates := make(chan Update, 16)

	go func() {
		defer close(updates)
		for msg := range pubsub.Channel() {
			var update Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				b.log.Warn("dropping malformed progress payload", "user", userID, "error", err)
				continue
			}
			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		pubsub.Close()
	}
	return updates, cancel
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func channelKey(userID string) string {
	return "mobius:upload_progress:" + userID
}
