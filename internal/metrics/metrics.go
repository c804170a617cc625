package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the coaching engine
type Metrics struct {
	// Message pipeline metrics
	MessagesTotal    *prometheus.CounterVec
	MessageDuration  *prometheus.HistogramVec
	StageCompletions *prometheus.CounterVec

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderTokens   *prometheus.CounterVec

	// Retrieval metrics
	RetrievalRequests  prometheus.Counter
	RetrievalFailures  prometheus.Counter
	RetrievedExamples  prometheus.Histogram
	EmbeddingRequests  *prometheus.CounterVec
	EmbeddingCacheHits prometheus.Counter

	// System metrics
	EventsPublished     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			MessagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_messages_total",
					Help: "Messages handled by the orchestrator",
				},
				[]string{"stage", "outcome"},
			),
			MessageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "coach_message_duration_seconds",
					Help:    "End-to-end message handling duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
				},
				[]string{"stage"},
			),
			StageCompletions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_stage_completions_total",
					Help: "Program stage completions recorded",
				},
				[]string{"stage"},
			),
			ProviderRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_provider_requests_total",
					Help: "Completion requests sent per provider",
				},
				[]string{"provider", "model"},
			),
			ProviderErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_provider_errors_total",
					Help: "Completion request failures per provider",
				},
				[]string{"provider"},
			),
			ProviderLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "coach_provider_latency_seconds",
					Help:    "Completion request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
				},
				[]string{"provider"},
			),
			ProviderTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_provider_tokens_total",
					Help: "Tokens consumed per provider and direction",
				},
				[]string{"provider", "direction"},
			),
			RetrievalRequests: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coach_retrieval_requests_total",
					Help: "Similarity retrievals attempted",
				},
			),
			RetrievalFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coach_retrieval_failures_total",
					Help: "Similarity retrievals that failed and degraded to ungrounded generation",
				},
			),
			RetrievedExamples: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "coach_retrieved_examples",
					Help:    "Number of examples returned per retrieval",
					Buckets: prometheus.LinearBuckets(0, 1, 6),
				},
			),
			EmbeddingRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_embedding_requests_total",
					Help: "Embedding requests per model",
				},
				[]string{"model"},
			),
			EmbeddingCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coach_embedding_cache_hits_total",
					Help: "Embedding requests served from cache",
				},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_events_published_total",
					Help: "Events published to the message bus",
				},
				[]string{"type"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coach_http_requests_total",
					Help: "HTTP requests by path, method, and status",
				},
				[]string{"path", "method", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "coach_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path", "method"},
			),
		}
	})
	return sharedMetrics
}
