// Package metrics collects and exposes the queue's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the queue metric families and the registry they live in.
//
// Counters track lifecycle transitions, gauges mirror the active index
// depths, and the duration histogram feeds latency percentiles.
type Collector struct {
	registry *prometheus.Registry

	submitted prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	cancelled prometheus.Counter
	retried   prometheus.Counter
	reaped    prometheus.Counter
	rejected  *prometheus.CounterVec

	pending  prometheus.Gauge
	inflight prometheus.Gauge

	duration prometheus.Histogram
}

// New creates a Collector with its own registry, including the standard
// Go and process collectors.
func New() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_submitted_total",
			Help: "Jobs admitted into the pending queue.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_completed_total",
			Help: "Jobs that finished generation successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_failed_total",
			Help: "Jobs that failed permanently.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_cancelled_total",
			Help: "Jobs cancelled by clients.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_retried_total",
			Help: "Jobs returned to the pending queue for another attempt.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgeq_jobs_reaped_total",
			Help: "In-flight jobs recovered after lease expiry.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeq_jobs_rejected_total",
			Help: "Submissions rejected at admission, by reason.",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forgeq_jobs_pending",
			Help: "Jobs currently waiting in the pending queue.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forgeq_jobs_inflight",
			Help: "Jobs currently being processed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forgeq_job_duration_seconds",
			Help:    "Processing time of completed jobs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.submitted, c.completed, c.failed, c.cancelled, c.retried,
		c.reaped, c.rejected, c.pending, c.inflight, c.duration,
	)
	return c
}

// Handler returns the scrape endpoint for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) JobSubmitted() {
	c.submitted.Inc()
}

func (c *Collector) JobCompleted(d time.Duration) {
	c.completed.Inc()
	c.duration.Observe(d.Seconds())
}

func (c *Collector) JobFailed() {
	c.failed.Inc()
}

func (c *Collector) JobCancelled() {
	c.cancelled.Inc()
}

func (c *Collector) JobRetried() {
	c.retried.Inc()
}

func (c *Collector) JobReaped() {
	c.reaped.Inc()
}

func (c *Collector) JobRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) SetQueueDepth(pending, inflight int64) {
	c.pending.Set(float64(pending))
	c.inflight.Set(float64(inflight))
}
