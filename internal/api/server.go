// Package api exposes the coaching engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nalahealth/coach/internal/logging"
	"github.com/nalahealth/coach/internal/metrics"
	"github.com/nalahealth/coach/internal/orchestrator"
	"github.com/nalahealth/coach/internal/progress"
	"github.com/nalahealth/coach/pkg/config"
	"github.com/nalahealth/coach/pkg/models"
)

// Coach handles inbound chat messages.
type Coach interface {
	HandleMessage(ctx context.Context, req *orchestrator.Request) (*orchestrator.Response, error)
}

// ConversationReader serves the conversation inspection endpoints.
type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	GetHistory(ctx context.Context, conversationID string, limit int) ([]models.Turn, error)
}

// ExampleStore manages the coaching example corpus.
type ExampleStore interface {
	InsertExample(ctx context.Context, example *models.CoachingExample) error
	CountExamples(ctx context.Context) (int, error)
}

// Embedder computes embedding vectors for corpus seeding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker reports readiness of a dependency.
type HealthChecker interface {
	Health() error
}

// Server represents the HTTP API server
type Server struct {
	coach      Coach
	tracker    *progress.Tracker
	store      ConversationReader
	examples   ExampleStore
	embedder   Embedder
	config     *config.Config
	logs       *logging.Manager
	metrics    *metrics.Metrics
	pingDB     func() error
	busHealth  HealthChecker
	isNotFound func(error) bool
}

// Options wires the server's dependencies.
type Options struct {
	Coach    Coach
	Tracker  *progress.Tracker
	Store    ConversationReader
	Examples ExampleStore
	Embedder Embedder
	Config   *config.Config
	Logs     *logging.Manager
	Metrics  *metrics.Metrics

	// PingDB checks database reachability for the health endpoint.
	PingDB func() error
	// BusHealth is nil when no event bus is configured.
	BusHealth HealthChecker
	// IsNotFound reports whether a store error means "no such row".
	IsNotFound func(error) bool
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.IsNotFound == nil {
		opts.IsNotFound = func(error) bool { return false }
	}
	return &Server{
		coach:      opts.Coach,
		tracker:    opts.Tracker,
		store:      opts.Store,
		examples:   opts.Examples,
		embedder:   opts.Embedder,
		config:     opts.Config,
		logs:       opts.Logs,
		metrics:    opts.Metrics,
		pingDB:     opts.PingDB,
		busHealth:  opts.BusHealth,
		isNotFound: opts.IsNotFound,
	}
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	// Chat
	mux.HandleFunc("/api/v1/chat/message", s.handleChatMessage)

	// Program progression
	mux.HandleFunc("/api/v1/session/complete", s.handleSessionComplete)
	mux.HandleFunc("/api/v1/session/progress/", s.handleSessionProgress)

	// Conversations
	mux.HandleFunc("/api/v1/conversations", s.handleConversations)
	mux.HandleFunc("/api/v1/conversations/", s.handleConversation)

	// Coaching example corpus
	mux.HandleFunc("/api/v1/examples", s.handleExamples)

	// Logs
	mux.HandleFunc("/api/v1/logs", s.handleLogs)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	handler := s.metricsMiddleware(mux)
	handler = s.corsMiddleware(handler)
	handler = s.authMiddleware(handler)

	return handler
}

// Middleware

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latency
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		path := metricPath(r.URL.Path)
		s.metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(recorder.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// metricPath collapses per-entity path segments to keep label cardinality low.
func metricPath(path string) string {
	for _, prefix := range []string{"/api/v1/session/progress/", "/api/v1/conversations/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix + ":id"
		}
	}
	return path
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.config.Security.AllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.config.Security.AllowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware handles authentication
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health check and metrics
		if r.URL.Path == "/api/v1/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if !s.config.Security.EnableAuth {
			next.ServeHTTP(w, r)
			return
		}

		// If auth is enabled but no keys are configured, treat auth as disabled.
		if len(s.config.Security.APIKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			http.Error(w, "Missing API key", http.StatusUnauthorized)
			return
		}

		valid := false
		for _, key := range s.config.Security.APIKeys {
			if key == apiKey {
				valid = true
				break
			}
		}

		if !valid {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper functions

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// extractID extracts ID from URL path
func (s *Server) extractID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimPrefix(id, "/")
	id = strings.TrimSuffix(id, "/")

	parts := strings.Split(id, "/")
	if len(parts) > 0 {
		return parts[0]
	}

	return id
}
