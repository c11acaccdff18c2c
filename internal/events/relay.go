package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay shares event-channel messages between API instances through a
// Redis pub/sub channel. Every instance, including the publisher, receives
// the message back from Redis and hands it to its local Hub. Presence
// messages never leave the process.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Hub
	logger  *zap.Logger
}

// NewRedisRelay builds a relay. A nil client makes the relay deliver
// everything locally.
func NewRedisRelay(client *redis.Client, channel string, local *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local, logger: logger}
}

// Publish implements Broadcaster.
func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if r.client == nil || msg.Channel != ChannelEvent {
		return r.local.Publish(ctx, msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("redis publish failed; delivering locally",
			zap.String("message_id", msg.ID), zap.Error(err))
		return r.local.Publish(ctx, msg)
	}
	return nil
}

// Run forwards relayed messages to the local hub until ctx is done. ready,
// if non-nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	if r.client == nil {
		if ready != nil {
			close(ready)
		}
		<-ctx.Done()
		return nil
	}

	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	// Anything published while unsubscribed never reached this instance.
	r.local.MarkAllResync()
	if ready != nil {
		close(ready)
	}
	r.logger.Info("event relay subscribed", zap.String("channel", r.channel))

	incoming := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-incoming:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			_ = r.local.Publish(ctx, msg)
		}
	}
}
