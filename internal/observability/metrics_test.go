package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordDispatch(1)
	m.RecordDispatch(1)
	m.RecordDispatch(3)
	if got := testutil.ToFloat64(m.Dispatches.WithLabelValues("1")); got != 2 {
		t.Errorf("shard 1 dispatches = %v, want 2", got)
	}

	m.RecordAttempt("sent", 120*time.Millisecond)
	if got := testutil.ToFloat64(m.Attempts.WithLabelValues("sent")); got != 1 {
		t.Errorf("sent attempts = %v, want 1", got)
	}

	m.ObserveRPC("simulateTransaction", 10*time.Millisecond, nil)
	m.ObserveRPC("simulateTransaction", 10*time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("simulateTransaction")); got != 1 {
		t.Errorf("rpc errors = %v, want 1", got)
	}

	m.RecordSubscriptionChanges(3, 0, 3)
	m.RecordSubscriptionChanges(0, 1, 2)
	if got := testutil.ToFloat64(m.SubscriptionsActive); got != 2 {
		t.Errorf("active subscriptions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SubscriptionChanges.WithLabelValues("removed")); got != 1 {
		t.Errorf("removed = %v, want 1", got)
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	NewMetrics("", prometheus.NewRegistry())
	NewMetrics("", prometheus.NewRegistry())
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.PoolsDiscovered.Inc()

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "test_discovery_pools_discovered_total 1") {
		t.Errorf("metrics output missing pools counter:\n%s", rec.Body.String())
	}
}
