// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notare_jobs_submitted_total",
		Help: "Total number of jobs accepted into the queue.",
	})

	JobsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notare_jobs_rejected_total",
		Help: "Total number of submissions rejected because the queue was full.",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notare_jobs_processed_total",
		Help: "Total number of jobs processed by the worker.",
	}, []string{"status"}) // status: completed, failed

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "notare_job_duration_seconds",
		Help: "Duration of the separation + pitch extraction pipeline.",
		// Separation alone routinely takes minutes.
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notare_queue_depth",
		Help: "Number of jobs currently waiting or processing.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
