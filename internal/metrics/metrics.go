package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "speech_async"

// Registry holds every collector this process exports. A dedicated registry
// keeps the textfile free of Go runtime series.
var Registry = prometheus.NewRegistry()

// Speech API metrics (incremented by the speech client).
var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total speech API requests by method and HTTP status.",
	}, []string{"method", "status_code"})

	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Speech API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// Operation metrics (incremented by the poller).
var (
	PollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_polls_total",
		Help:      "Total status checks issued against long-running operations.",
	})

	OperationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Time from submission until the operation reported done.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s → ~68m
	})

	LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the last run printed a completed operation, 0 otherwise.",
	})
)

func init() {
	Registry.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		PollsTotal,
		OperationDuration,
		LastRunSuccess,
	)
}

// WriteTextfile dumps the registry in the text exposition format for the
// node_exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
