// Package metrics provides Prometheus metrics for the ronbun essay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the essay service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scoring
	essaysScored    *prometheus.CounterVec
	scoringLatency  prometheus.Histogram
	scoreTotals     prometheus.Histogram
	scoringFallback prometheus.Counter
	scoringErrors   prometheus.Counter
	llmFailures     *prometheus.CounterVec
	llmLatency      prometheus.Histogram

	// Generation
	generationFallback *prometheus.CounterVec

	// Submissions
	submissionsAccepted  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	storedRecords        prometheus.Gauge
	storeErrors          prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ronbun",
		subsystem:        "essay",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      map[string]string{},
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.essaysScored = m.counterVec("scored_total", "Essays scored, by the scorer that produced the result", "source")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Scoring latency in milliseconds", m.histogramBuckets)
	m.scoreTotals = m.histogram("score_total_points", "Distribution of total scores", prometheus.LinearBuckets(0, 10, 11))
	m.scoringFallback = m.counter("scoring_fallback_total", "Remote scoring failures recovered by the heuristic scorer")
	m.scoringErrors = m.counter("scoring_errors_total", "Scoring calls that returned an error")
	m.llmFailures = m.counterVec("llm_failures_total", "Remote model failures by reason", "reason")
	m.llmLatency = m.histogram("llm_latency_milliseconds", "Remote model round trip in milliseconds", m.histogramBuckets)

	m.generationFallback = m.counterVec("generation_fallback_total",
		"Remote text generation failures served from local templates, by kind", "kind")

	m.submissionsAccepted = m.counter("submissions_accepted_total", "Submissions accepted for asynchronous scoring")
	m.submissionsDuplicate = m.counter("submissions_duplicate_total", "Submissions rejected as duplicates")
	m.storedRecords = m.gauge("stored_records", "Scored submissions held by the result store")
	m.storeErrors = m.counter("store_errors_total", "Result store write failures")

	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the submission queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Failed enqueue attempts by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Number of scoring workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time from dequeue to stored result in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counterVec("worker_errors_total", "Worker failures by stage", "stage")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint and type",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordEssayScored records a finished scoring call.
func RecordEssayScored(source string, total int, latencyMs float64) {
	globalManager.essaysScored.WithLabelValues(source).Inc()
	globalManager.scoreTotals.Observe(float64(total))
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringFallback increments the fallback counter.
func RecordScoringFallback() {
	globalManager.scoringFallback.Inc()
}

// RecordGenerationFallback counts a question or model answer served from a local template.
func RecordGenerationFallback(kind string) {
	globalManager.generationFallback.WithLabelValues(kind).Inc()
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordLLMFailure records a remote model failure.
func RecordLLMFailure(reason string) {
	globalManager.llmFailures.WithLabelValues(reason).Inc()
}

// RecordLLMLatency records a remote model round trip.
func RecordLLMLatency(latencyMs float64) {
	globalManager.llmLatency.Observe(latencyMs)
}

// RecordSubmissionAccepted increments the accepted submissions counter.
func RecordSubmissionAccepted() {
	globalManager.submissionsAccepted.Inc()
}

// RecordSubmissionDuplicate increments the duplicate submissions counter.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// UpdateStoredRecords sets the number of stored results.
func UpdateStoredRecords(count int) {
	globalManager.storedRecords.Set(float64(count))
}

// RecordStoreError increments the store errors counter.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError records a failed enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records end to end processing time of one submission.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError records a worker failure at the given stage.
func RecordWorkerError(stage string) {
	globalManager.workerErrors.WithLabelValues(stage).Inc()
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError records an HTTP error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
