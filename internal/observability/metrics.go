package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversation_pipeline_active_sessions",
		Help: "Number of open recognition sessions",
	})

	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_pipeline_sessions_created_total",
		Help: "Total number of recognition sessions opened",
	})

	sessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_sessions_terminated_total",
		Help: "Total number of recognition sessions closed, by reason",
	}, []string{"reason"}) // end, error, client, stale, shutdown

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversation_pipeline_session_duration_seconds",
		Help:    "Lifetime of recognition sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200},
	})

	staleSessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_pipeline_stale_sessions_swept_total",
		Help: "Sessions removed by the staleness janitor",
	})

	// Frame metrics
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_frames_received_total",
		Help: "Audio frames received from clients",
	}, []string{"encoding"})

	audioBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_pipeline_audio_bytes_written_total",
		Help: "Audio bytes written into recognition streams",
	})

	frameSplits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_pipeline_frame_splits_total",
		Help: "Frames larger than the wire limit that were split",
	})

	streamWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_pipeline_stream_write_failures_total",
		Help: "Failed writes into recognition streams",
	})

	// Recognition metrics
	recognitionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_recognition_events_total",
		Help: "Recognition events delivered, by type",
	}, []string{"type"})

	transcriptsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_transcripts_saved_total",
		Help: "Final transcripts persisted, by status",
	}, []string{"status"})

	// Turn metrics
	turnsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_turns_total",
		Help: "AI reply turn persistence outcomes",
	}, []string{"path", "status"}) // path: complete, flush; status: persisted, failed, discarded

	// Event fan-out metrics
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_events_published_total",
		Help: "Records published to the event bus",
	}, []string{"topic", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conversation_pipeline_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_pipeline_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single recognition session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	endOnce   sync.Once
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	sessionsCreated.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *SessionMetrics) RecordSessionEnd(reason string) {
	m.endOnce.Do(func() {
		activeSessions.Dec()
		sessionsTerminated.WithLabelValues(reason).Inc()
		sessionDuration.Observe(time.Since(m.startTime).Seconds())
	})
}

// RecordRecognitionEvent counts one adapter event
func (m *SessionMetrics) RecordRecognitionEvent(eventType string) {
	recognitionEvents.WithLabelValues(eventType).Inc()
}

// RecordFrameReceived counts one inbound client frame
func RecordFrameReceived(encoding string) {
	framesReceived.WithLabelValues(encoding).Inc()
}

// RecordStreamWrite records bytes written and how many slices they took
func RecordStreamWrite(bytes int, slices int) {
	audioBytesWritten.Add(float64(bytes))
	if slices > 1 {
		frameSplits.Inc()
	}
}

// RecordStreamWriteFailure counts a failed stream write
func RecordStreamWriteFailure() {
	streamWriteFailures.Inc()
}

// RecordTranscriptSaved counts a final transcript persistence attempt
func RecordTranscriptSaved(success bool) {
	transcriptsSaved.WithLabelValues(statusLabel(success)).Inc()
}

// RecordTurn counts a turn persistence outcome
func RecordTurn(path, status string) {
	turnsRecorded.WithLabelValues(path, status).Inc()
}

// RecordStaleSessionsSwept counts sessions removed by the janitor
func RecordStaleSessionsSwept(n int) {
	if n > 0 {
		staleSessionsSwept.Add(float64(n))
	}
}

// RecordPublish counts a publish attempt to the event bus
func RecordPublish(topic string, success bool) {
	eventsPublished.WithLabelValues(topic, statusLabel(success)).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
