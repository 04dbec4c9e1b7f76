// Package metrics provides Prometheus metrics for the lastcall service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Engine
	resolutions       *prometheus.CounterVec
	resolutionLatency prometheus.Histogram
	entriesScored     prometheus.Counter
	frozenPools       prometheus.Counter
	payoutTotal       prometheus.Counter

	// Predictions and settlements
	predictionsAccepted  prometheus.Counter
	predictionsDuplicate prometheus.Counter
	predictionsRejected  *prometheus.CounterVec
	settlements          prometheus.Counter
	settlementErrors     prometheus.Counter
	openMarkets          prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lastcall",
		subsystem:        "pool",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.resolutions = m.counterVec("resolutions_total", "Engine runs by allocation mode", "mode")
	m.resolutionLatency = m.histogram("resolution_latency_milliseconds", "Engine run latency in milliseconds")
	m.entriesScored = m.counter("entries_scored_total", "Entries scored by the engine")
	m.frozenPools = m.counter("frozen_pools_total", "Pools paid nothing because they were below the participant minimum")
	m.payoutTotal = m.counter("payout_amount_total", "Sum of all settled payouts")

	m.predictionsAccepted = m.counter("predictions_accepted_total", "Predictions stored")
	m.predictionsDuplicate = m.counter("predictions_duplicate_total", "Prediction submissions dropped as duplicates")
	m.predictionsRejected = m.counterVec("predictions_rejected_total", "Predictions refused by reason", "reason")
	m.settlements = m.counter("settlements_total", "Markets settled")
	m.settlementErrors = m.counter("settlement_errors_total", "Settlement jobs that failed")
	m.openMarkets = m.gauge("open_markets", "Markets accepting predictions")

	m.queueSize = m.gauge("queue_size", "Pending settlement jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Settlement queue capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Settlement jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Settlement jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Settlement jobs refused by the queue")

	m.workerCount = m.gauge("worker_count", "Configured settlement workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently settling a market")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Settlement job latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Worker failures")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Store call latency in milliseconds", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// Engine metrics.

// RecordResolution counts one engine run.
func RecordResolution(mode string, entries, frozenPools int, latencyMs float64) {
	globalManager.resolutions.WithLabelValues(mode).Inc()
	globalManager.entriesScored.Add(float64(entries))
	globalManager.frozenPools.Add(float64(frozenPools))
	globalManager.resolutionLatency.Observe(latencyMs)
}

// RecordPayout adds a settled amount.
func RecordPayout(amount float64) {
	if amount > 0 {
		globalManager.payoutTotal.Add(amount)
	}
}

// Prediction and settlement metrics.

// RecordPredictionAccepted counts a stored prediction.
func RecordPredictionAccepted() {
	globalManager.predictionsAccepted.Inc()
}

// RecordPredictionDuplicate counts a deduplicated submission.
func RecordPredictionDuplicate() {
	globalManager.predictionsDuplicate.Inc()
}

// RecordPredictionRejected counts a refused prediction.
func RecordPredictionRejected(reason string) {
	globalManager.predictionsRejected.WithLabelValues(reason).Inc()
}

// RecordSettlement counts a persisted settlement.
func RecordSettlement() {
	globalManager.settlements.Inc()
}

// RecordSettlementError counts a failed settlement.
func RecordSettlementError() {
	globalManager.settlementErrors.Inc()
}

// UpdateOpenMarkets sets the number of open markets.
func UpdateOpenMarkets(count int) {
	globalManager.openMarkets.Set(float64(count))
}

// Queue metrics.

// UpdateQueueSize sets the number of pending jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the configured number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount adjusts the number of busy workers by delta.
func UpdateWorkerActiveCount(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Repository metrics.

// RecordRepositoryQueryLatency records the latency of a store call.
func RecordRepositoryQueryLatency(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// Process metrics.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// Configure rebuilds the global collectors with opts on a fresh registry.
// Call it once at startup, before metrics are recorded or served.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts[:len(opts):len(opts)], WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
