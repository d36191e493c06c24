package snipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/fabric"
	"solana-snipe-engine/internal/observability"
)

// CheckHandler executes pool checks. *Executor implements it.
type CheckHandler interface {
	HandleCheck(ctx context.Context, poolID string, slot int64) (string, error)
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Shard   int
	Fabric  fabric.Fabric
	Names   fabric.Names
	Handler CheckHandler
	// Barrier, when set, receives the shard's readiness once subscribed.
	Barrier *fabric.Barrier
	// MaxInFlight bounds concurrently handled checks. Default: 64.
	MaxInFlight int
	// MaxBackoff caps the resubscribe delay after the fabric fails. Default: 30s.
	MaxBackoff time.Duration
	Metrics    *observability.Metrics
	Logger     logrus.FieldLogger
}

// Worker consumes the check channel of one shard.
type Worker struct {
	shard      int
	fabric     fabric.Fabric
	channel    string
	handler    CheckHandler
	barrier    *fabric.Barrier
	sem        chan struct{}
	maxBackoff time.Duration
	metrics    *observability.Metrics
	log        logrus.FieldLogger

	inflight  sync.WaitGroup
	heartbeat sync.Once
}

// NewWorker creates a worker for opts.Shard.
func NewWorker(opts WorkerOptions) *Worker {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Worker{
		shard:      opts.Shard,
		fabric:     opts.Fabric,
		channel:    opts.Names.ShardChannel(opts.Shard),
		handler:    opts.Handler,
		barrier:    opts.Barrier,
		sem:        make(chan struct{}, maxInFlight),
		maxBackoff: durationOr(opts.MaxBackoff, 30*time.Second),
		metrics:    metricsOrDefault(opts.Metrics),
		log:        loggerOrDefault(opts.Logger).WithFields(logrus.Fields{"component": "worker", "shard": opts.Shard}),
	}
}

// Run consumes checks until ctx is done. A lost subscription is re-established
// with exponential backoff; in-flight checks finish before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	defer w.inflight.Wait()

	wait := time.Second
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			w.log.Info("worker stopping")
			return ctx.Err()
		}
		w.log.WithError(err).WithField("retry_in", wait).Warn("shard subscription lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > w.maxBackoff {
			wait = w.maxBackoff
		}
	}
}

func (w *Worker) consume(ctx context.Context) error {
	sub, err := w.fabric.Subscribe(ctx, w.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.channel, err)
	}
	defer sub.Close()

	w.log.WithField("channel", w.channel).Info("listening for checks")
	if w.barrier != nil {
		if err := w.barrier.Announce(ctx, w.shard); err != nil {
			w.log.WithError(err).Warn("announce readiness failed")
		}
		w.heartbeat.Do(func() { go w.barrier.Heartbeat(ctx, w.shard) })
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-sub.Messages():
			if !ok {
				return errors.New("subscription closed")
			}
			w.route(ctx, payload)
		}
	}
}

// route decodes one payload. Checks run concurrently up to MaxInFlight;
// everything else is logged and dropped.
func (w *Worker) route(ctx context.Context, payload []byte) {
	msg, err := fabric.Decode(payload)
	if err != nil {
		if errors.Is(err, fabric.ErrUnknownDiscriminator) {
			w.metrics.UnknownMessages.Inc()
			w.log.WithError(err).Debug("ignoring unknown message")
		} else {
			w.log.WithError(err).Warn("ignoring malformed message")
		}
		return
	}

	switch m := msg.(type) {
	case fabric.CheckMessage:
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			defer func() { <-w.sem }()
			if _, err := w.handler.HandleCheck(ctx, m.PoolID, m.Slot); err != nil {
				w.log.WithError(err).WithField("pool_id", m.PoolID).Warn("check failed")
			}
		}()
	case fabric.ReadyMessage:
		w.log.WithField("from_shard", m.Shard).Debug("ignoring readiness message")
	}
}
