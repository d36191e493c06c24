package fabric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisFabric implements Fabric over Redis pub/sub and string keys.
type RedisFabric struct {
	client *redis.Client
}

var _ Fabric = (*RedisFabric)(nil)

// NewRedisFabric wraps an already connected client. Close does not close the client.
func NewRedisFabric(client *redis.Client) *RedisFabric {
	return &RedisFabric{client: client}
}

// Publish sends payload with PUBLISH.
func (f *RedisFabric) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.client.Publish(ctx, channel, payload).Err()
}

// Subscribe issues SUBSCRIBE and waits for the confirmation.
func (f *RedisFabric) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := f.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		ps:  ps,
		out: make(chan []byte, 256),
	}
	go sub.pump(ps.Channel())
	return sub, nil
}

// SetKey stores value with SET and an optional expiry.
func (f *RedisFabric) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	return f.client.Set(ctx, key, value, ttl).Err()
}

// CountKeys counts existing keys with EXISTS.
func (f *RedisFabric) CountKeys(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := f.client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Incr increments key with INCR.
func (f *RedisFabric) Incr(ctx context.Context, key string) (int64, error) {
	return f.client.Incr(ctx, key).Result()
}

// Close is a no-op; the client is owned by the caller.
func (f *RedisFabric) Close() error {
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	once sync.Once
}

func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		s.out <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

// Close unsubscribes; the go-redis channel closes and pump closes Messages.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
	})
	return err
}
