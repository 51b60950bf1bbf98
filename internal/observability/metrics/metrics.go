// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_intake_bridge"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal       prometheus.Counter
	SessionsActive      prometheus.Gauge
	SessionsClosed      *prometheus.CounterVec
	SessionDuration     prometheus.Histogram
	NegotiationLatency  prometheus.Histogram
	NegotiationFailures *prometheus.CounterVec

	// Audio metrics
	CallerFramesReceived   prometheus.Counter
	CallerFramesQueued     prometheus.Counter
	CallerFramesFlushed    prometheus.Counter
	CallerFramesDropped    *prometheus.CounterVec
	AssistantFramesRelayed prometheus.Counter

	// Conversation metrics
	BargeIns           prometheus.Counter
	TranscriptEntries  *prometheus.CounterVec
	HandoffExtractions *prometheus.CounterVec

	// Protocol metrics
	DecodeErrors   *prometheus.CounterVec
	UpstreamErrors prometheus.Counter
	UnknownEvents  *prometheus.CounterVec

	// Persistence metrics
	ArtifactWrites       *prometheus.CounterVec
	ArtifactWriteLatency *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Request metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	GRPCRequests        *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of call sessions currently registered",
		}),
		SessionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of call sessions closed, by close reason",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		NegotiationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_latency_seconds",
			Help:      "Time from stream start to AI session ready",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		NegotiationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_failures_total",
			Help:      "Total number of sessions that never reached ready",
		}, []string{"reason"}),

		// Audio metrics
		CallerFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_frames_received_total",
			Help:      "Total caller audio frames received from telephony",
		}),
		CallerFramesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_frames_queued_total",
			Help:      "Total caller audio frames queued while negotiating",
		}),
		CallerFramesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_frames_flushed_total",
			Help:      "Total queued caller audio frames flushed on ready",
		}),
		CallerFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_frames_dropped_total",
			Help:      "Total caller audio frames not forwarded",
		}, []string{"reason"}),
		AssistantFramesRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_frames_relayed_total",
			Help:      "Total assistant audio frames relayed to telephony",
		}),

		// Conversation metrics
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of response cancellations caused by caller speech",
		}),
		TranscriptEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_entries_total",
			Help:      "Total transcript entries accumulated",
		}, []string{"role"}),
		HandoffExtractions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoff_extractions_total",
			Help:      "Total handoff marker occurrences, by parse result",
		}, []string{"result"}),

		// Protocol metrics
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total frames dropped because they could not be decoded",
		}, []string{"source"}),
		UpstreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total error events reported by the AI connection",
		}),
		UnknownEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_events_total",
			Help:      "Total AI events ignored because their type is not handled",
		}, []string{"type"}),

		// Persistence metrics
		ArtifactWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_writes_total",
			Help:      "Total artifact writes, by artifact and result",
		}, []string{"artifact", "result"}),
		ArtifactWriteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_write_latency_seconds",
			Help:      "Artifact write latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"artifact"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Request metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests, by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"route"}),
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC unary calls, by method and status code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new call session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
}

// RecordSessionEnd records a call session finishing teardown.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// SetActiveSessions sets the registered session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.SessionsActive.Set(float64(n))
}

// RecordNegotiated records the time a session spent negotiating.
func (m *Metrics) RecordNegotiated(latencySeconds float64) {
	m.NegotiationLatency.Observe(latencySeconds)
}

// RecordNegotiationFailure records a session that closed before ready.
func (m *Metrics) RecordNegotiationFailure(reason string) {
	m.NegotiationFailures.WithLabelValues(reason).Inc()
}

// RecordCallerFrame records a caller audio frame and whether it was queued.
func (m *Metrics) RecordCallerFrame(queued bool) {
	m.CallerFramesReceived.Inc()
	if queued {
		m.CallerFramesQueued.Inc()
	}
}

// RecordFlush records queued frames flushed on ready.
func (m *Metrics) RecordFlush(frames int) {
	m.CallerFramesFlushed.Add(float64(frames))
}

// RecordCallerFrameDropped records a caller frame that was not forwarded.
func (m *Metrics) RecordCallerFrameDropped(reason string) {
	m.CallerFramesDropped.WithLabelValues(reason).Inc()
}

// RecordAssistantFrame records an assistant audio frame relayed to telephony.
func (m *Metrics) RecordAssistantFrame() {
	m.AssistantFramesRelayed.Inc()
}

// RecordBargeIn records a response cancellation caused by caller speech.
func (m *Metrics) RecordBargeIn() {
	m.BargeIns.Inc()
}

// RecordTranscriptEntry records a transcript entry for a role.
func (m *Metrics) RecordTranscriptEntry(role string) {
	m.TranscriptEntries.WithLabelValues(role).Inc()
}

// RecordHandoff records a handoff extraction attempt. Result is "parsed" or "malformed".
func (m *Metrics) RecordHandoff(result string) {
	m.HandoffExtractions.WithLabelValues(result).Inc()
}

// RecordDecodeError records a dropped frame. Source is "telephony" or "realtime".
func (m *Metrics) RecordDecodeError(source string) {
	m.DecodeErrors.WithLabelValues(source).Inc()
}

// RecordUpstreamError records an error event from the AI connection.
func (m *Metrics) RecordUpstreamError() {
	m.UpstreamErrors.Inc()
}

// RecordUnknownEvent records an ignored AI event type.
func (m *Metrics) RecordUnknownEvent(eventType string) {
	m.UnknownEvents.WithLabelValues(eventType).Inc()
}

// RecordArtifactWrite records a persistence attempt for one artifact.
func (m *Metrics) RecordArtifactWrite(artifact string, err error, latencySeconds float64) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ArtifactWrites.WithLabelValues(artifact, result).Inc()
	m.ArtifactWriteLatency.WithLabelValues(artifact).Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordGRPCRequest records a completed gRPC unary call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}
