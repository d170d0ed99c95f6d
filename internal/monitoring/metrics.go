// Package monitoring exposes Prometheus metrics for the admission pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Admission metrics
	AdmissionsTotal *prometheus.CounterVec // labels: provider, classification, outcome
	SessionsIssued  prometheus.Counter

	// Approval metrics
	ApprovalsTotal   *prometheus.CounterVec // labels: status
	ApprovalWaitTime prometheus.Histogram

	// Forward metrics
	ForwardDuration *prometheus.HistogramVec // labels: provider
	ForwardErrors   *prometheus.CounterVec   // labels: provider
}

// NewMetrics creates and registers all gateway metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use a
// private registry so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AdmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_admissions_total",
				Help: "Admissions processed, by provider, classification and outcome",
			},
			[]string{"provider", "classification", "outcome"}, // outcome: forwarded, denied, error
		),

		SessionsIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_issued_total",
				Help: "Session tokens issued",
			},
		),

		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_approvals_total",
				Help: "Approvals reaching a terminal state, by status",
			},
			[]string{"status"}, // approved, denied, expired
		),

		ApprovalWaitTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_approval_wait_seconds",
				Help:    "Time admissions spent blocked on a human decision",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
		),

		ForwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_forward_duration_seconds",
				Help:    "Duration of forwarded provider requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		ForwardErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_forward_errors_total",
				Help: "Forwarded requests that failed in transport",
			},
			[]string{"provider"},
		),
	}
}
