// Package metrics holds the Prometheus collectors for the tenant
// resolution path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronhub_provision_total",
		Help: "Tenant database provisioning attempts by outcome.",
	}, []string{"outcome"})

	ResolveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cronhub_resolve_seconds",
		Help:    "Latency of tenant connection resolution.",
		Buckets: prometheus.DefBuckets,
	})

	TenantConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cronhub_tenant_connections",
		Help: "Tenant database connections currently cached.",
	})
)

// Provisioning outcomes.
const (
	OutcomeWon      = "won"
	OutcomeLostRace = "lost_race"
	OutcomeQuota    = "quota"
	OutcomeError    = "error"
)
