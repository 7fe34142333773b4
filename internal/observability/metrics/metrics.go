// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scribe_mcp"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	// Protocol metrics
	MessagesTotal  *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	AudioChunksSkipped  *prometheus.CounterVec

	// Pipeline metrics
	PipelinesActive prometheus.Gauge
	ResultsTotal    prometheus.Counter

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	ProviderRetries prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram
}

// DefaultMetrics is the global metrics instance registered with the default registry.
var DefaultMetrics = NewMetrics()

// NewMetrics creates all metrics and registers them with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions initialized",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered",
		}),

		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of protocol messages handled",
		}, []string{"kind"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of protocol messages answered with an error",
		}, []string{"kind"}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes accepted into session queues",
		}),
		AudioChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks accepted into session queues",
		}),
		AudioChunksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_skipped_total",
			Help:      "Total audio chunks the pipeline skipped",
		}, []string{"reason"}),

		PipelinesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_active",
			Help:      "Number of running transcription pipelines",
		}),
		ResultsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Total transcription results pushed to sessions",
		}),

		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Transcription provider round trip latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of transcription provider errors",
		}, []string{"provider", "error_type"}),
		ProviderRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of retried provider requests",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of open WebSocket streams",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of WebSocket streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// RecordSessionCreated records a session being registered.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionRemoved records a session leaving the registry.
func (m *Metrics) RecordSessionRemoved() {
	m.SessionsActive.Dec()
}

// RecordMessage records a handled protocol message and whether it failed.
func (m *Metrics) RecordMessage(kind string, failed bool) {
	m.MessagesTotal.WithLabelValues(kind).Inc()
	if failed {
		m.ProtocolErrors.WithLabelValues(kind).Inc()
	}
}

// RecordAudioReceived records an audio chunk accepted into a session.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordChunkSkipped records a chunk the pipeline did not turn into a result.
func (m *Metrics) RecordChunkSkipped(reason string) {
	m.AudioChunksSkipped.WithLabelValues(reason).Inc()
}

// RecordPipelineStart records a pipeline task starting.
func (m *Metrics) RecordPipelineStart() {
	m.PipelinesActive.Inc()
}

// RecordPipelineEnd records a pipeline task exiting.
func (m *Metrics) RecordPipelineEnd() {
	m.PipelinesActive.Dec()
}

// RecordResult records a result pushed to a session.
func (m *Metrics) RecordResult() {
	m.ResultsTotal.Inc()
}

// RecordProviderCall records a provider round trip.
func (m *Metrics) RecordProviderCall(provider string, latencySeconds float64) {
	m.ProviderLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(provider, errorType string) {
	m.ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordProviderRetry records a retried provider request.
func (m *Metrics) RecordProviderRetry() {
	m.ProviderRetries.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStreamStart records a WebSocket stream opening.
func (m *Metrics) RecordStreamStart() {
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a WebSocket stream closing.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}
