package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Redemptions counts token redemption attempts by outcome
	// (marked_present, marked_late, or the failure kind).
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "redemptions_total",
		Help:      "Token redemption attempts by outcome.",
	}, []string{"outcome"})

	// SessionTransitions counts lifecycle transitions by action and result.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "session_transitions_total",
		Help:      "Session lifecycle transitions by action and result.",
	}, []string{"action", "result"})

	// MarkDuration observes end-to-end redemption latency.
	MarkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rollcall",
		Name:      "mark_duration_seconds",
		Help:      "Latency of attendance marking.",
		Buckets:   prometheus.DefBuckets,
	})
)
