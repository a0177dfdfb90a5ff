package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/redis/go-redis/v9"
)

// Redis is a [Notifier] over Redis pub/sub, shared by every server replica pointed at the same instance.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis creates a [Redis] notifier. prefix namespaces channels as {prefix}:clipboard:{userID}.
func NewRedis(opts *redis.Options, prefix string) (*Redis, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: channel prefix cannot be empty", shared.ErrInvalidConfig)
	}
	return &Redis{rdb: redis.NewClient(opts), prefix: prefix}, nil
}

// FromConfig returns a [Redis] notifier when an address is configured and a [Local] one otherwise.
func FromConfig(cfg shared.NotifyConfig) (Notifier, error) {
	if cfg.RedisAddr == "" {
		return NewLocal(), nil
	}
	return NewRedis(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, cfg.ChannelPrefix)
}

// Channel returns the pub/sub channel for userID.
func (r *Redis) Channel(userID string) string {
	return r.prefix + ":clipboard:" + userID
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.Channel(e.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription, so events published after it returns are delivered.
func (r *Redis) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, r.Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan Event, 10)
	errs := make(chan error, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					// Nothing is required to read errs, so a full buffer drops the error.
					select {
					case errs <- fmt.Errorf("failed to unmarshal event: %w", err):
					default:
					}
					continue
				}

				select {
				case events <- e:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, errors: errs, cancel: cancel}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
