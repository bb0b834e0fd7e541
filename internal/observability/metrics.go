package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hookrelay"

// Failure reasons used for the deliveries_failed_total label.
const (
	ReasonExhausted            = "exhausted"
	ReasonSubscriptionMissing  = "subscription_missing"
	ReasonSubscriptionInactive = "subscription_inactive"
)

// Metrics stores Prometheus collectors used by the API and the worker. All methods
// are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	deliveriesIngested    prometheus.Counter
	attemptsTotal         *prometheus.CounterVec
	attemptDuration       prometheus.Histogram
	deliveriesSucceeded   prometheus.Counter
	deliveriesFailed      *prometheus.CounterVec
	retriesScheduled      prometheus.Counter
	stuckRequeued         prometheus.Counter
	deliveriesReaped      prometheus.Counter
	workerInflight        prometheus.Gauge
	deliveriesByStatus    *prometheus.GaugeVec
	outcomeConflictsTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_ingested_total",
			Help:      "Deliveries accepted by the ingestion API.",
		}),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_attempts_total",
				Help:      "Dispatch attempts grouped by outcome.",
			},
			[]string{"outcome"},
		),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempt_duration_seconds",
			Help:      "Outbound webhook request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		deliveriesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_succeeded_total",
			Help:      "Deliveries that reached SUCCEEDED.",
		}),
		deliveriesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_failed_total",
				Help:      "Deliveries that reached FAILED_PERMANENT grouped by reason.",
			},
			[]string{"reason"},
		),
		retriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Failed attempts that were scheduled for another try.",
		}),
		stuckRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stuck_requeued_total",
			Help:      "IN_PROGRESS deliveries returned to RETRY_SCHEDULED by the sweeper.",
		}),
		deliveriesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_reaped_total",
			Help:      "Terminal deliveries deleted by the retention reaper.",
		}),
		workerInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_inflight",
			Help:      "Deliveries currently being dispatched by this process.",
		}),
		deliveriesByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "deliveries",
				Help:      "Stored deliveries grouped by status, refreshed by the reaper.",
			},
			[]string{"status"},
		),
		outcomeConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_conflicts_total",
			Help:      "Dispatches that found their claim taken over before sending or recording.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesIngested,
		m.attemptsTotal,
		m.attemptDuration,
		m.deliveriesSucceeded,
		m.deliveriesFailed,
		m.retriesScheduled,
		m.stuckRequeued,
		m.deliveriesReaped,
		m.workerInflight,
		m.deliveriesByStatus,
		m.outcomeConflictsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncIngested() {
	if m == nil {
		return
	}
	m.deliveriesIngested.Inc()
}

func (m *Metrics) ObserveAttempt(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	label := strings.ToLower(strings.TrimSpace(outcome))
	if label == "" {
		label = "unknown"
	}
	m.attemptsTotal.WithLabelValues(label).Inc()
	m.attemptDuration.Observe(max(latency.Seconds(), 0))
}

func (m *Metrics) IncSucceeded() {
	if m == nil {
		return
	}
	m.deliveriesSucceeded.Inc()
}

func (m *Metrics) IncFailedPermanent(reason string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(reason))
	if label == "" {
		label = "unknown"
	}
	m.deliveriesFailed.WithLabelValues(label).Inc()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retriesScheduled.Inc()
}

func (m *Metrics) IncOutcomeConflict() {
	if m == nil {
		return
	}
	m.outcomeConflictsTotal.Inc()
}

func (m *Metrics) AddStuckRequeued(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.stuckRequeued.Add(float64(n))
}

func (m *Metrics) AddReaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveriesReaped.Add(float64(n))
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

// SetDeliveriesByStatus replaces the per-status gauge. Statuses absent from counts are reset to zero.
func (m *Metrics) SetDeliveriesByStatus(counts map[string]int64) {
	if m == nil {
		return
	}
	m.deliveriesByStatus.Reset()
	for status, n := range counts {
		m.deliveriesByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
