package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stubot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stubot_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	Exchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stubot_exchanges_total",
			Help: "Processed exchanges by reply outcome",
		},
		[]string{"outcome"},
	)

	RejectedExchanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stubot_exchanges_rejected_total",
			Help: "Exchanges rejected for lacking a usable message",
		},
	)

	NLULatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "stubot_nlu_latency_seconds",
			Help: "Round trip latency of NLU backend calls",
		},
	)

	SynthesisFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stubot_synthesis_failures_total",
			Help: "Failed speech synthesis attempts by artifact kind",
		},
		[]string{"kind"},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stubot_persistence_failures_total",
			Help: "Exchanges that could not be written to the conversation log",
		},
	)

	SweptArtifacts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stubot_swept_artifacts_total",
			Help: "Orphaned audio artifacts removed by the retention sweeper",
		},
	)
)
