// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntakeSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Total number of evidence submissions processed",
		},
		[]string{"outcome"},
	)

	IntakeDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_decisions_total",
			Help: "Total number of workflow decisions by status",
		},
		[]string{"status"},
	)

	DecisionRoundTripDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_decision_roundtrip_seconds",
			Help:    "Duration of the upload plus decision round trip in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	VoiceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Number of active voice conversation sessions",
		},
	)

	VoiceSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_sessions_total",
			Help: "Total number of voice conversation sessions by end reason",
		},
		[]string{"end_reason"},
	)

	TranscriptDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_deliveries_total",
			Help: "Total number of transcript persistence attempts",
		},
		[]string{"mode", "outcome"},
	)
)
