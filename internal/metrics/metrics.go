package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docgate",
			Name:      "verdicts_total",
			Help:      "Classified pages by input kind and verdict",
		},
		[]string{"kind", "verdict"},
	)

	classifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docgate",
			Name:      "classify_duration_seconds",
			Help:      "Duration of a full classification (rasterize, measure, score) by input kind",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"kind"},
	)

	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docgate",
			Name:      "failures_total",
			Help:      "Failed classifications by input kind and error code",
		},
		[]string{"kind", "code"},
	)

	signal = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docgate",
			Name:      "signal_value",
			Help:      "Measured legibility signals by input kind and signal name",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 16),
		},
		[]string{"kind", "signal"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docgate",
			Name:      "jobs_processed_total",
			Help:      "Async classification jobs by result (legible, illegible, dlq)",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docgate",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(verdicts, classifyLatency, failures, signal, jobsProcessed, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveVerdict(kind, verdict string, dur time.Duration, sharpness, edgeDensity, noiseLevel float64) {
	verdicts.WithLabelValues(kind, verdict).Inc()
	classifyLatency.WithLabelValues(kind).Observe(dur.Seconds())
	signal.WithLabelValues(kind, "sharpness").Observe(sharpness)
	signal.WithLabelValues(kind, "edge_density").Observe(edgeDensity)
	signal.WithLabelValues(kind, "noise_level").Observe(noiseLevel)
}

func IncFailure(kind, code string) { failures.WithLabelValues(kind, code).Inc() }

func IncJob(result string) { jobsProcessed.WithLabelValues(result).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
