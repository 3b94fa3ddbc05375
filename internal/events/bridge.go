package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge joins feeds of several processes over a Redis pub/sub channel.
// Local changes are forwarded; remote ones are re-published into the local
// feed with their origin kept, so they are never forwarded back.
type RedisBridge struct {
	client  *redis.Client
	channel string
	feed    *Feed
	logger  *zerolog.Logger
	done    chan struct{}
}

func NewRedisBridge(client *redis.Client, channel string, feed *Feed, logger *zerolog.Logger) *RedisBridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		feed:    feed,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start subscribes to the channel and returns once the subscription is
// confirmed. Forwarding stops when ctx is cancelled.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	unsubscribe := b.feed.Subscribe(Filter{}, func(c Change) {
		if c.Origin != b.feed.Origin() {
			return
		}
		b.forward(ctx, c)
	})

	go func() {
		defer close(b.done)
		defer unsubscribe()
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.receive(msg.Payload)
			}
		}
	}()

	b.logger.Info().Str("channel", b.channel).Str("origin", b.feed.Origin()).Msg("redis change bridge started")
	return nil
}

// Done is closed after the bridge stops.
func (b *RedisBridge) Done() <-chan struct{} {
	return b.done
}

func (b *RedisBridge) forward(ctx context.Context, c Change) {
	data, err := json.Marshal(c)
	if err != nil {
		b.logger.Error().Err(err).Str("change_id", c.ID).Msg("failed to marshal change")
		return
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		if ctx.Err() == nil {
			b.logger.Error().Err(err).Str("change_id", c.ID).Msg("failed to forward change")
		}
	}
}

func (b *RedisBridge) receive(payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		b.logger.Warn().Err(err).Msg("ignoring malformed change from redis")
		return
	}
	if c.Origin == b.feed.Origin() || c.Origin == "" {
		return
	}
	b.feed.Publish(c)
}
