// Package metrics exposes Prometheus collectors for the fetch service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal   *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	pipelineTotal        *prometheus.CounterVec
	trackingBeaconsTotal *prometheus.CounterVec
	fallbackTotal        prometheus.Counter
	inflightFetches      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vastfetch_fetch_attempts_total",
				Help: "Total per-source fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vastfetch_fetch_duration_seconds",
				Help:    "Histogram of multi-source fetch latencies, labeled by mode.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"mode"},
		)

		pipelineTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vastfetch_pipeline_total",
				Help: "Total pipeline executions, labeled by terminal phase and outcome.",
			},
			[]string{"phase", "outcome"},
		)

		trackingBeaconsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vastfetch_tracking_beacons_total",
				Help: "Total tracking beacons fired, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vastfetch_fallback_total",
				Help: "Total fetches that cascaded to the fallback tier.",
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vastfetch_inflight_fetches",
				Help: "Number of multi-source fetches currently in flight.",
			},
		)
	})
}

// ObserveAttempt counts one per-source attempt outcome ("success", "empty",
// "timeout", "error").
func ObserveAttempt(outcome string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the latency of one multi-source fetch.
func ObserveFetch(mode string, elapsed time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObservePipeline counts one pipeline execution ending at phase.
func ObservePipeline(phase, outcome string) {
	if pipelineTotal == nil {
		return
	}
	pipelineTotal.WithLabelValues(phase, outcome).Inc()
}

// ObserveBeacon counts one tracking beacon outcome.
func ObserveBeacon(outcome string) {
	if trackingBeaconsTotal == nil {
		return
	}
	trackingBeaconsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFallback counts one cascade into the fallback tier.
func ObserveFallback() {
	if fallbackTotal == nil {
		return
	}
	fallbackTotal.Inc()
}

// FetchStarted increments the in-flight gauge.
func FetchStarted() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Inc()
}

// FetchFinished decrements the in-flight gauge.
func FetchFinished() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Dec()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
