// Package metrics holds Prometheus instruments used across tronpoll.  All
// collectors are registered with the global registry, so importing this
// package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tronpoll_runs_total",
			Help: "Iterator runs by result (completed, halted, cancelled).",
		}, []string{"result"})

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tronpoll_run_duration_seconds",
			Help:    "Wall time of one iterator run across all tenants.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		})

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tronpoll_last_run_timestamp_seconds",
			Help: "Unix time at which the last iterator run finished.",
		})

	TenantOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tronpoll_tenant_outcomes_total",
			Help: "Per-tenant results (verified, verify_failed, open_failed, skipped).",
		}, []string{"status"})

	DirectoryErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tronpoll_directory_errors_total",
			Help: "Reseller directory scans that failed.",
		})

	InvoicesSettledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tronpoll_invoices_settled_total",
			Help: "Pending invoices marked paid from an on-chain transfer.",
		})

	TronRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tronpoll_tron_requests_total",
			Help: "Requests to the Tron API by result (ok, error, breaker_open).",
		}, []string{"result"})

	TronPageCapTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tronpoll_tron_page_cap_total",
			Help: "Transfer listings cut short by the per-call page limit.",
		})
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		LastRunTimestamp,
		TenantOutcomesTotal,
		DirectoryErrorsTotal,
		InvoicesSettledTotal,
		TronRequestsTotal,
		TronPageCapTotal,
	)
}
