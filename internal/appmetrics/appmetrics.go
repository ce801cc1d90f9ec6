// Package appmetrics declares the Prometheus series exported at GET /metrics, mirroring
// jeffrysusilo-order-service's internal/util/metrics.go (a package-level promauto var block).
package appmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_sessions_created_total",
		Help: "Total number of signing sessions created, by kind",
	}, []string{"kind"})

	SessionsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_sessions_completed_total",
		Help: "Total number of signing sessions completed, by kind",
	}, []string{"kind"})

	SessionsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_sessions_expired_total",
		Help: "Total number of signing sessions expired before completion, by kind",
	}, []string{"kind"})

	SessionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podx_session_conflicts_total",
		Help: "Total number of session resolution attempts rejected for state conflicts",
	})

	RadiusExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_radius_exceeded_total",
		Help: "Total number of session attempts rejected for geofence radius breach, by kind",
	}, []string{"kind"})

	BadSignatureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_bad_signature_total",
		Help: "Total number of session attempts rejected for signature verification failure, by kind",
	}, []string{"kind"})

	OnchainCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podx_onchain_call_latency_seconds",
		Help:    "Latency of on-chain gateway calls, by method",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	OnchainCallFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_onchain_call_failed_total",
		Help: "Total number of failed on-chain gateway calls, by method",
	}, []string{"method"})

	SettlementReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_settlement_reconciled_total",
		Help: "Total number of settlement mismatches fixed by the recovery sweep, by kind",
	}, []string{"kind"})

	ReplenishTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podx_replenish_triggered_total",
		Help: "Total number of inventory replenishment triggers raised on drop settlement",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podx_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podx_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
