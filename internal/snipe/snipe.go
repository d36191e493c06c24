// Package snipe watches the vaults of sniped tokens, routes vault changes to
// executor shards and turns each check into at most one guarded buy per order.
package snipe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/observability"
)

func loggerOrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

// metricsOrDefault registers on a private registry when no metrics are wired,
// so components built in tests never collide on the default registerer.
func metricsOrDefault(m *observability.Metrics) *observability.Metrics {
	if m == nil {
		return observability.NewMetrics("", prometheus.NewRegistry())
	}
	return m
}
