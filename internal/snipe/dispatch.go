package snipe

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/fabric"
	"solana-snipe-engine/internal/observability"
)

// ShardSelector picks the executor shard for the next check message.
type ShardSelector interface {
	Next(ctx context.Context) (int, error)
}

// RoundRobinSelector rotates over n shards with an in-process counter.
type RoundRobinSelector struct {
	n       uint64
	counter atomic.Uint64
}

// NewRoundRobinSelector creates a selector over shards 0..n-1.
func NewRoundRobinSelector(n int) *RoundRobinSelector {
	if n < 1 {
		n = 1
	}
	return &RoundRobinSelector{n: uint64(n)}
}

// Next returns the next shard in rotation.
func (s *RoundRobinSelector) Next(context.Context) (int, error) {
	return int((s.counter.Add(1) - 1) % s.n), nil
}

// SharedCounterSelector rotates over n shards with a counter kept in the fabric,
// so several detector processes share one rotation.
type SharedCounterSelector struct {
	fabric fabric.Fabric
	key    string
	n      int64
}

// NewSharedCounterSelector creates a selector backed by the chain's counter key.
func NewSharedCounterSelector(f fabric.Fabric, names fabric.Names, n int) *SharedCounterSelector {
	if n < 1 {
		n = 1
	}
	return &SharedCounterSelector{fabric: f, key: names.CounterKey(), n: int64(n)}
}

// Next increments the shared counter and maps it onto a shard.
func (s *SharedCounterSelector) Next(ctx context.Context) (int, error) {
	v, err := s.fabric.Incr(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("next shard: %w", err)
	}
	shard := (v - 1) % s.n
	if shard < 0 {
		shard += s.n
	}
	return int(shard), nil
}

// FixedSelector always returns the same shard.
type FixedSelector int

// Next returns s.
func (s FixedSelector) Next(context.Context) (int, error) {
	return int(s), nil
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Fabric   fabric.Fabric
	Names    fabric.Names
	Selector ShardSelector // Default: round robin over one shard
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
}

// Dispatcher turns vault changes into check messages routed to one shard each.
// Publishing is fire-and-forget: failures are logged and counted, never retried.
type Dispatcher struct {
	fabric   fabric.Fabric
	names    fabric.Names
	selector ShardSelector
	metrics  *observability.Metrics
	log      logrus.FieldLogger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	selector := opts.Selector
	if selector == nil {
		selector = NewRoundRobinSelector(1)
	}
	return &Dispatcher{
		fabric:   opts.Fabric,
		names:    opts.Names,
		selector: selector,
		metrics:  metricsOrDefault(opts.Metrics),
		log:      loggerOrDefault(opts.Logger).WithField("component", "dispatcher"),
	}
}

// Dispatch publishes a check for poolID at slot to the next shard.
// It reports the shard used, or an error if nothing was published.
func (d *Dispatcher) Dispatch(ctx context.Context, poolID string, slot int64) (int, error) {
	log := d.log.WithFields(logrus.Fields{"pool_id": poolID, "slot": slot})

	shard, err := d.selector.Next(ctx)
	if err != nil {
		d.metrics.DispatchErrors.Inc()
		log.WithError(err).Warn("select shard failed")
		return 0, err
	}

	msg := fabric.CheckMessage{PoolID: poolID, Slot: slot}
	if err := fabric.Publish(ctx, d.fabric, d.names.ShardChannel(shard), msg); err != nil {
		d.metrics.DispatchErrors.Inc()
		log.WithError(err).WithField("shard", shard).Warn("dispatch failed")
		return shard, err
	}

	d.metrics.RecordDispatch(shard)
	log.WithField("shard", shard).Debug("check dispatched")
	return shard, nil
}
