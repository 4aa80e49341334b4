package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// ComputationCount counts report runs by outcome
	ComputationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_computations_total",
			Help: "Total number of similarity report computations",
		},
		[]string{"status"},
	)

	// ComputationDuration measures one report run
	ComputationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "winnow_computation_duration_seconds",
			Help:    "Similarity report computation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// PairsCompared counts file pairs compared
	PairsCompared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "winnow_pairs_compared_total",
			Help: "Total number of file pairs compared",
		},
	)

	// IndexedFingerprints records the fingerprint count of the last index built
	IndexedFingerprints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "winnow_indexed_fingerprints",
			Help: "Distinct fingerprints in the most recently built index",
		},
	)

	// SubmissionsProcessed counts stream submissions by outcome
	SubmissionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_submissions_processed_total",
			Help: "Total number of stream submissions tokenized and stored",
		},
		[]string{"status"},
	)
)

// InitPrometheus registers all collectors with the default registry
func InitPrometheus() {
	prometheus.MustRegister(RequestCount)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ComputationCount)
	prometheus.MustRegister(ComputationDuration)
	prometheus.MustRegister(PairsCompared)
	prometheus.MustRegister(IndexedFingerprints)
	prometheus.MustRegister(SubmissionsProcessed)
}

// MetricsHandler returns Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
