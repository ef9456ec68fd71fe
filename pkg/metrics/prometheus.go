// Package metrics provides Prometheus metrics for the score ledger service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

var defaultDeltaBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 500, 1000} //nolint:gochecknoglobals // immutable defaults

// Manager owns every collector exported by the service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	deltaBuckets    []float64
	refreshInterval time.Duration
	registry        prometheus.Registerer

	// Contract operations
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	scoreDelta       prometheus.Histogram
	recordsMinted    prometheus.Counter
	duplicateRepays  prometheus.Counter

	// Store
	storeRetries *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Event queue and delivery
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueFails *prometheus.CounterVec
	workerCount       prometheus.Gauge
	eventsDelivered   *prometheus.CounterVec
	deliveryErrors    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "scorenft",
		subsystem:       "ledger",
		latencyBuckets:  prometheus.DefBuckets,
		deltaBuckets:    defaultDeltaBuckets,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often gauge-style metrics should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	histOpts := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets}
	}

	m.operations = auto.NewCounterVec(
		counterOpts("operations_total", "Contract operations by name and result"),
		[]string{"op", "result"},
	)
	m.operationLatency = auto.NewHistogramVec(
		histOpts("operation_latency_milliseconds", "Contract operation latency in milliseconds", m.latencyBuckets),
		[]string{"op"},
	)
	m.scoreDelta = auto.NewHistogram(histOpts(
		"score_delta", "Score points added per repayment", m.deltaBuckets,
	))
	m.recordsMinted = auto.NewCounter(counterOpts("records_minted_total", "Score records created"))
	m.duplicateRepays = auto.NewCounter(counterOpts("repayments_duplicate_total", "Repayments dropped as replays"))

	m.storeRetries = auto.NewCounterVec(
		counterOpts("store_tx_retries_total", "Store transactions retried after a conflict"),
		[]string{"driver"},
	)

	m.httpRequests = auto.NewCounterVec(
		counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		histOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorsByEndpoint = auto.NewCounterVec(
		counterOpts("http_errors_total", "HTTP error responses by endpoint and error type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.queueSize = auto.NewGauge(gaugeOpts("event_queue_size", "Ledger events waiting for delivery"))
	m.queueCapacity = auto.NewGauge(gaugeOpts("event_queue_capacity", "Ledger event queue capacity"))
	m.queueEnqueued = auto.NewCounter(counterOpts("event_queue_enqueued_total", "Ledger events enqueued"))
	m.queueDequeued = auto.NewCounter(counterOpts("event_queue_dequeued_total", "Ledger events dequeued"))
	m.queueEnqueueFails = auto.NewCounterVec(
		counterOpts("event_queue_enqueue_errors_total", "Ledger events dropped at enqueue"),
		[]string{"reason"},
	)
	m.workerCount = auto.NewGauge(gaugeOpts("event_worker_count", "Event delivery workers"))
	m.eventsDelivered = auto.NewCounterVec(
		counterOpts("events_delivered_total", "Ledger events delivered by sink"),
		[]string{"sink"},
	)
	m.deliveryErrors = auto.NewCounterVec(
		counterOpts("event_delivery_errors_total", "Ledger event delivery failures by sink"),
		[]string{"sink"},
	)

	m.systemMemoryUsage = auto.NewGauge(gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(histOpts(
		"system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.latencyBuckets,
	))
}

// RecordOperation counts a contract operation and observes its latency.
func RecordOperation(op, result string, latencyMs float64) {
	globalManager.operations.WithLabelValues(op, result).Inc()
	globalManager.operationLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordScoreDelta observes the points added by one repayment.
func RecordScoreDelta(delta uint64) {
	globalManager.scoreDelta.Observe(float64(delta))
}

// RecordRecordMinted counts a newly created score record.
func RecordRecordMinted() {
	globalManager.recordsMinted.Inc()
}

// RecordDuplicateRepayment counts a replayed repayment.
func RecordDuplicateRepayment() {
	globalManager.duplicateRepays.Inc()
}

// RecordStoreRetry counts a transaction retry for the given store driver.
func RecordStoreRetry(driver string) {
	globalManager.storeRetries.WithLabelValues(driver).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the number of queued ledger events.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted ledger event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a ledger event handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a dropped ledger event.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueFails.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of delivery workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordEventDelivered counts a delivered ledger event.
func RecordEventDelivered(sink string) {
	globalManager.eventsDelivered.WithLabelValues(sink).Inc()
}

// RecordDeliveryError counts a failed delivery.
func RecordDeliveryError(sink string) {
	globalManager.deliveryErrors.WithLabelValues(sink).Inc()
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval reports how often the process should refresh gauge-style
// metrics.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }
