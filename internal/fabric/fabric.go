// Package fabric carries check messages between detector and executor shards
// and provides the key/value primitives behind the startup barrier and the
// shared round-robin counter.
package fabric

import (
	"context"
	"fmt"
	"time"
)

// Fabric is a publish/subscribe transport plus a small key/value store.
// Delivery is at-most-once: messages published while nobody listens are lost.
type Fabric interface {
	// Publish sends payload to every current subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe starts receiving payloads published to channel.
	// The subscription is active when Subscribe returns.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// SetKey stores value under key. A ttl of zero means no expiry.
	SetKey(ctx context.Context, key, value string, ttl time.Duration) error

	// CountKeys returns how many of keys currently exist.
	CountKeys(ctx context.Context, keys ...string) (int, error)

	// Incr atomically increments key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	Close() error
}

// Subscription is a live channel subscription.
type Subscription interface {
	// Messages is closed after Close.
	Messages() <-chan []byte
	Close() error
}

// Publish encodes m and publishes it on channel.
func Publish(ctx context.Context, f Fabric, channel string, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	if err := f.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("publish %s on %s: %w", m.Discriminator(), channel, err)
	}
	return nil
}

// Names builds channel and key names for one chain.
type Names struct {
	Chain string
}

// ShardChannel is the check channel of an executor shard.
func (n Names) ShardChannel(shard int) string {
	return fmt.Sprintf("snipe:%s:%d", n.Chain, shard)
}

// ControlChannel carries readiness announcements.
func (n Names) ControlChannel() string {
	return fmt.Sprintf("snipe:%s:control", n.Chain)
}

// ReadyKey is set by a shard while it is subscribed.
func (n Names) ReadyKey(shard int) string {
	return fmt.Sprintf("snipe:%s:ready:%d", n.Chain, shard)
}

// CounterKey is the shared round-robin dispatch counter.
func (n Names) CounterKey() string {
	return fmt.Sprintf("snipe:%s:rr", n.Chain)
}
