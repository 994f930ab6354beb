package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the meeting stream service
type Metrics struct {
	// Session lifecycle metrics
	ActiveSessions       prometheus.Gauge
	DisconnectedSessions prometheus.Gauge
	SessionsRegistered   prometheus.Counter
	Reconnections        prometheus.Counter
	ReconnectionsDenied  prometheus.Counter
	Finalizations        prometheus.Counter
	SessionDuration      prometheus.Histogram

	// Audio flush metrics
	FlushesTriggered prometheus.Counter
	FlushesSkipped   prometheus.Counter
	FlushesSilent    prometheus.Counter
	FlushDuration    prometheus.Histogram
	FlushSize        prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Batch attribution metrics
	BatchesProcessed   prometheus.Counter
	BatchFallbacks     prometheus.Counter
	BatchSize          prometheus.Histogram
	AttributionLatency prometheus.Histogram

	// Deduplication metrics
	DuplicatesDropped prometheus.Counter

	// WebSocket gateway metrics
	ConnectionsOpened prometheus.Counter
	ConnectionsClosed prometheus.Counter
	MessagesReceived  *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	MessageErrors     prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session lifecycle metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_active_sessions",
			Help: "Current number of active meeting sessions",
		}),
		DisconnectedSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_disconnected_sessions",
			Help: "Current number of sessions awaiting reconnection",
		}),
		SessionsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_sessions_registered_total",
			Help: "Total number of sessions registered",
		}),
		Reconnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_reconnections_total",
			Help: "Total number of successful session reconnections",
		}),
		ReconnectionsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_reconnections_denied_total",
			Help: "Total number of reconnections refused over the limit",
		}),
		Finalizations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_finalizations_total",
			Help: "Total number of meetings finalized",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_session_duration_seconds",
			Help:    "Duration of meeting sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10), // 1 minute to ~17 hours
		}),

		// Audio flush metrics
		FlushesTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_flushes_triggered_total",
			Help: "Total number of audio buffer flushes triggered",
		}),
		FlushesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_flushes_skipped_total",
			Help: "Total number of flush attempts skipped while a flush was in progress",
		}),
		FlushesSilent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_flushes_silent_total",
			Help: "Total number of flushes gated as silence without transcription",
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_flush_duration_seconds",
			Help:    "End-to-end duration of buffer flushes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		FlushSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_flush_size_bytes",
			Help:    "Size of flushed audio buffers in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Batch attribution metrics
		BatchesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_batches_processed_total",
			Help: "Total number of transcript batches sent for speaker attribution",
		}),
		BatchFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_batch_fallbacks_total",
			Help: "Total number of batches attributed by pattern fallback",
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_batch_size_chunks",
			Help:    "Number of transcript chunks per attribution batch",
			Buckets: prometheus.LinearBuckets(1, 2, 10), // 1 to 19 chunks
		}),
		AttributionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_attribution_duration_seconds",
			Help:    "Duration of speaker attribution requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		// Deduplication metrics
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_duplicates_dropped_total",
			Help: "Total number of transcription results dropped as duplicates",
		}),

		// WebSocket gateway metrics
		ConnectionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_ws_connections_opened_total",
			Help: "Total number of WebSocket connections accepted",
		}),
		ConnectionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_ws_connections_closed_total",
			Help: "Total number of WebSocket connections closed",
		}),
		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		}, []string{"type"}),
		MessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_ws_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		}, []string{"type"}),
		MessageErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meeting_ws_message_errors_total",
			Help: "Total number of malformed or unroutable WebSocket messages",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meeting_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// SetDisconnectedSessions sets the current number of disconnected sessions
func (m *Metrics) SetDisconnectedSessions(count int) {
	m.DisconnectedSessions.Set(float64(count))
}

// RecordSessionRegistered increments the sessions registered counter
func (m *Metrics) RecordSessionRegistered() {
	m.SessionsRegistered.Inc()
}

// RecordReconnection increments the reconnections counter
func (m *Metrics) RecordReconnection() {
	m.Reconnections.Inc()
}

// RecordReconnectionDenied increments the denied reconnections counter
func (m *Metrics) RecordReconnectionDenied() {
	m.ReconnectionsDenied.Inc()
}

// RecordFinalization records a finalized meeting and its duration
func (m *Metrics) RecordFinalization(durationSeconds float64) {
	m.Finalizations.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordFlushTriggered records a flush with its buffer size
func (m *Metrics) RecordFlushTriggered(sizeBytes int) {
	m.FlushesTriggered.Inc()
	m.FlushSize.Observe(float64(sizeBytes))
}

// RecordFlushSkipped increments the skipped flushes counter
func (m *Metrics) RecordFlushSkipped() {
	m.FlushesSkipped.Inc()
}

// RecordFlushSilent increments the silent flushes counter
func (m *Metrics) RecordFlushSilent() {
	m.FlushesSilent.Inc()
}

// RecordFlushDuration observes the end-to-end flush duration
func (m *Metrics) RecordFlushDuration(durationSeconds float64) {
	m.FlushDuration.Observe(durationSeconds)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordBatchProcessed records an attribution batch
func (m *Metrics) RecordBatchProcessed(chunks int, durationSeconds float64) {
	m.BatchesProcessed.Inc()
	m.BatchSize.Observe(float64(chunks))
	m.AttributionLatency.Observe(durationSeconds)
}

// RecordBatchFallback increments the pattern fallback counter
func (m *Metrics) RecordBatchFallback() {
	m.BatchFallbacks.Inc()
}

// RecordDuplicateDropped increments the duplicates dropped counter
func (m *Metrics) RecordDuplicateDropped() {
	m.DuplicatesDropped.Inc()
}

// RecordConnectionOpened increments the connections opened counter
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsOpened.Inc()
}

// RecordConnectionClosed increments the connections closed counter
func (m *Metrics) RecordConnectionClosed() {
	m.ConnectionsClosed.Inc()
}

// RecordMessageReceived counts an inbound WebSocket message by type
func (m *Metrics) RecordMessageReceived(msgType string) {
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordMessageSent counts an outbound WebSocket message by type
func (m *Metrics) RecordMessageSent(msgType string) {
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

// RecordMessageError increments the message errors counter
func (m *Metrics) RecordMessageError() {
	m.MessageErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
