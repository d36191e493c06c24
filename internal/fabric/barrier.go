package fabric

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// BarrierOptions configures a Barrier.
type BarrierOptions struct {
	// ReadyTTL is how long a readiness key lives without a heartbeat.
	ReadyTTL time.Duration
	// PollInterval is the WaitForShards polling period.
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

// Barrier is the startup handshake between executor shards and the detector.
// Each shard announces readiness once subscribed; the detector waits for all of them.
type Barrier struct {
	fabric Fabric
	names  Names
	opts   BarrierOptions
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewBarrier creates a barrier for the chain in names.
func NewBarrier(f Fabric, names Names, opts BarrierOptions) *Barrier {
	if opts.ReadyTTL <= 0 {
		opts.ReadyTTL = 15 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Barrier{
		fabric: f,
		names:  names,
		opts:   opts,
		log:    logger.WithField("component", "barrier"),
		now:    time.Now,
	}
}

// Announce marks shard ready and publishes a ReadyMessage on the control channel.
func (b *Barrier) Announce(ctx context.Context, shard int) error {
	at := b.now().UnixMilli()
	if err := b.fabric.SetKey(ctx, b.names.ReadyKey(shard), strconv.FormatInt(at, 10), b.opts.ReadyTTL); err != nil {
		return fmt.Errorf("announce shard %d: %w", shard, err)
	}
	return Publish(ctx, b.fabric, b.names.ControlChannel(), ReadyMessage{Shard: shard, At: at})
}

// Heartbeat refreshes the readiness key of shard until ctx is done.
func (b *Barrier) Heartbeat(ctx context.Context, shard int) {
	ticker := time.NewTicker(b.opts.ReadyTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			at := strconv.FormatInt(b.now().UnixMilli(), 10)
			if err := b.fabric.SetKey(ctx, b.names.ReadyKey(shard), at, b.opts.ReadyTTL); err != nil && ctx.Err() == nil {
				b.log.WithError(err).WithField("shard", shard).Warn("readiness heartbeat failed")
			}
		}
	}
}

// WaitForShards blocks until shards 0..n-1 are all ready or ctx is done.
// Fabric errors are logged and polling continues.
func (b *Barrier) WaitForShards(ctx context.Context, n int) error {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = b.names.ReadyKey(i)
	}

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	lastReady := -1
	for {
		ready, err := b.fabric.CountKeys(ctx, keys...)
		switch {
		case err != nil && ctx.Err() == nil:
			b.log.WithError(err).Warn("readiness poll failed")
		case err == nil && ready == n:
			b.log.WithField("shards", n).Info("all shards ready")
			return nil
		case err == nil && ready != lastReady:
			b.log.WithFields(logrus.Fields{"ready": ready, "shards": n}).Info("waiting for shards")
			lastReady = ready
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
