package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service. Each collector owns
// its registry, so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline metrics
	PaintingsCreated   prometheus.Counter
	PaintingOutcomes   *prometheus.CounterVec
	GenerationCalls    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Scheduler metrics
	QueueDepth   prometheus.Gauge
	InFlight     prometheus.Gauge
	TaskDuration prometheus.Histogram
	TaskPanics   prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PaintingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paintings_created_total",
			Help:      "Paintings created by batch generation",
		}),
		PaintingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "painting_outcomes_total",
			Help:      "Terminal painting outcomes by status",
		}, []string{"status"}),
		GenerationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Upstream generation calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_call_duration_seconds",
			Help:      "Upstream generation call latency",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_queue_depth",
			Help:      "Image tasks waiting for a worker",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_tasks_in_flight",
			Help:      "Image tasks currently executing",
		}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_task_duration_seconds",
			Help:      "Wall time of image tasks including persistence",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		TaskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_task_panics_total",
			Help:      "Image tasks that panicked",
		}),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.PaintingsCreated, c.PaintingOutcomes, c.GenerationCalls, c.GenerationDuration,
		c.QueueDepth, c.InFlight, c.TaskDuration, c.TaskPanics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGeneration records one upstream call; kind is "idea" or "image".
func (c *Collector) RecordGeneration(kind, outcome string, duration time.Duration) {
	c.GenerationCalls.WithLabelValues(kind, outcome).Inc()
	c.GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPaintingsCreated counts paintings created by a batch.
func (c *Collector) RecordPaintingsCreated(n int) {
	c.PaintingsCreated.Add(float64(n))
}

// RecordPaintingOutcome counts a terminal status write.
func (c *Collector) RecordPaintingOutcome(status string) {
	c.PaintingOutcomes.WithLabelValues(status).Inc()
}

// TaskQueued implements scheduler.Observer.
func (c *Collector) TaskQueued(depth int) {
	c.QueueDepth.Set(float64(depth))
}

// TaskStarted implements scheduler.Observer.
func (c *Collector) TaskStarted(inFlight int) {
	c.InFlight.Set(float64(inFlight))
}

// TaskFinished implements scheduler.Observer.
func (c *Collector) TaskFinished(duration time.Duration, _ error, inFlight int) {
	c.InFlight.Set(float64(inFlight))
	c.TaskDuration.Observe(duration.Seconds())
}

// TaskPanicked implements scheduler.Observer.
func (c *Collector) TaskPanicked() {
	c.TaskPanics.Inc()
}
