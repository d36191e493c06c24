// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the snipe engine.
type Metrics struct {
	// Subscription metrics
	SubscriptionsActive prometheus.Gauge
	SubscriptionChanges *prometheus.CounterVec
	ReconcileErrors     prometheus.Counter

	// Dispatch metrics
	Dispatches      *prometheus.CounterVec
	DispatchErrors  prometheus.Counter
	UnknownMessages prometheus.Counter

	// Executor metrics
	Checks               *prometheus.CounterVec
	Attempts             *prometheus.CounterVec
	GuardContention      prometheus.Counter
	GuardReleaseFailures prometheus.Counter
	AttemptLatency       *prometheus.HistogramVec
	NotifyFailures       prometheus.Counter

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Discovery metrics
	PoolsDiscovered prometheus.Counter
	PoolsRejected   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "snipe"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Subscription metrics
		SubscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Number of vault account subscriptions currently open",
		}),
		SubscriptionChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "changes_total",
			Help:      "Total number of subscriptions added or removed",
		}, []string{"op"}),
		ReconcileErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "reconcile_errors_total",
			Help:      "Total number of failed reconciliation cycles",
		}),

		// Dispatch metrics
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Total number of check messages published by shard",
		}, []string{"shard"}),
		DispatchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Total number of check messages that could not be published",
		}),
		UnknownMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "unknown_messages_total",
			Help:      "Total number of received messages with an unrecognized discriminator",
		}),

		// Executor metrics
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "checks_total",
			Help:      "Total number of pool checks by result",
		}, []string{"result"}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts_total",
			Help:      "Total number of order attempts by outcome",
		}, []string{"outcome"}),
		GuardContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "guard_contention_total",
			Help:      "Total number of attempts skipped because the order guard was held",
		}),
		GuardReleaseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "guard_release_failures_total",
			Help:      "Total number of order guards left behind because their release failed",
		}),
		AttemptLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempt_latency_seconds",
			Help:      "Latency from check received to attempt outcome",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"outcome"}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "notify_failures_total",
			Help:      "Total number of user notifications that could not be delivered",
		}),

		// Chain metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		// Discovery metrics
		PoolsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pools_discovered_total",
			Help:      "Total number of pools written to the pool cache",
		}),
		PoolsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pools_rejected_total",
			Help:      "Total number of initialize transactions that did not yield a pool",
		}, []string{"reason"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler exposing the metrics of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveRPC records one RPC call. Its signature matches solana.WithObserver.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDispatch counts a published check message.
func (m *Metrics) RecordDispatch(shard int) {
	m.Dispatches.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// RecordAttempt counts an attempt and its latency.
func (m *Metrics) RecordAttempt(outcome string, latency time.Duration) {
	m.Attempts.WithLabelValues(outcome).Inc()
	m.AttemptLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordSubscriptionChanges updates subscription counters after a reconcile cycle.
func (m *Metrics) RecordSubscriptionChanges(added, removed, active int) {
	if added > 0 {
		m.SubscriptionChanges.WithLabelValues("added").Add(float64(added))
	}
	if removed > 0 {
		m.SubscriptionChanges.WithLabelValues("removed").Add(float64(removed))
	}
	m.SubscriptionsActive.Set(float64(active))
}
