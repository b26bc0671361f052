package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// RedisChannel is the push channel over redis pub/sub, for deployments
// where the gateway fans events out through redis instead of holding a
// socket per client. Topics map one-to-one onto redis channels.
type RedisChannel struct {
	client *redis.Client

	events    chan Event
	lifecycle chan State

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisChannel(addr string) *RedisChannel {
	return &RedisChannel{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		events:    make(chan Event, 64),
		lifecycle: make(chan State, 8),
	}
}

var _ Channel = (*RedisChannel)(nil)

// Connect verifies the redis connection. The token is unused: access
// control on the fan-out channels is the gateway's concern.
func (r *RedisChannel) Connect(ctx context.Context, token string) error {
	r.mu.Lock()
	if r.pubsub != nil {
		r.mu.Unlock()
		return fmt.Errorf("redis channel already connected")
	}
	r.mu.Unlock()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(pumpCtx)

	r.mu.Lock()
	r.pubsub = pubsub
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(pumpCtx, pubsub)

	r.lifecycle <- Connected
	return nil
}

func (r *RedisChannel) run(ctx context.Context, pubsub *redis.PubSub) {
	incoming := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				r.mu.Lock()
				if r.pubsub == pubsub {
					r.pubsub = nil
				}
				r.mu.Unlock()

				r.lifecycle <- Disconnected
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Error("Failed to unmarshal pushed event", "channel", msg.Channel, "error", err)
				continue
			}

			select {
			case r.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisChannel) SendSubscribe(topic string) error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.mu.Unlock()

	if pubsub == nil {
		return fmt.Errorf("redis channel is not connected")
	}
	return pubsub.Subscribe(context.Background(), topic)
}

func (r *RedisChannel) SendUnsubscribe(topic string) error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.mu.Unlock()

	if pubsub == nil {
		return fmt.Errorf("redis channel is not connected")
	}
	return pubsub.Unsubscribe(context.Background(), topic)
}

func (r *RedisChannel) Events() <-chan Event {
	return r.events
}

func (r *RedisChannel) Lifecycle() <-chan State {
	return r.lifecycle
}

func (r *RedisChannel) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.pubsub != nil {
		errs = multierr.Append(errs, r.pubsub.Close())
		r.pubsub = nil
	}
	errs = multierr.Append(errs, r.client.Close())
	return errs
}
