// Package metrics exposes Prometheus collectors for sessions, allocations and
// receipt analysis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "splitsession"

// Metrics groups the collectors recorded by the service.
type Metrics struct {
	RPCs            *prometheus.CounterVec
	RPCDuration     *prometheus.HistogramVec
	SessionsCreated prometheus.Counter
	SessionsLocked  *prometheus.CounterVec
	Allocations     prometheus.Counter
	Reconciliations prometheus.Counter
	ReceiptAnalyses *prometheus.CounterVec
	PendingLocks    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RPCs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		SessionsLocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_locked_total",
			Help:      "Sessions locked, by reason (organizer or expiry).",
		}, []string{"reason"}),
		Allocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Session summaries computed.",
		}),
		Reconciliations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_reconciliations_total",
			Help:      "Summaries where rounding drift was assigned to the largest share.",
		}),
		ReceiptAnalyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_analyses_total",
			Help:      "Receipt analysis calls by outcome.",
		}, []string{"outcome"}),
		PendingLocks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_lock_timers",
			Help:      "Sessions waiting for their expiry timer.",
		}),
	}
}

// Nop returns metrics registered on a private registry, for callers that do not
// export them.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
