package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier wakes up other contexts after the sync log changed. It only
// shortens delivery latency; the poll loop alone is sufficient.
type Notifier interface {
	Notify(ctx context.Context) error
	Changes(ctx context.Context) <-chan struct{}
}

// NopNotifier never signals; delivery relies on polling.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context) error { return nil }

func (NopNotifier) Changes(context.Context) <-chan struct{} { return nil }

// RedisNotifier signals changes over a redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *zerolog.Logger) *RedisNotifier {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	if err := n.client.Publish(ctx, n.channel, "sync").Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

// Changes subscribes to the channel and returns a channel that receives one
// value per burst of notifications. It is closed when ctx ends or the
// subscription fails.
func (n *RedisNotifier) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := n.client.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		n.logger.Warn().Err(err).Str("channel", n.channel).Msg("Change notifications unavailable, relying on polling")
		_ = sub.Close()
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
