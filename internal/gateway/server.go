// Package gateway exposes the pipeline over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/pipeline"
	"github.com/lexiqai/conversation-pipeline/internal/turns"
)

// RecordReader is the read side of storage the gateway needs
type RecordReader interface {
	ListTranscripts(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error)
	ListAITurns(ctx context.Context, sessionID string) ([]models.AIMessageRecord, error)
	TurnIDs(ctx context.Context, sessionID string) ([]string, error)
}

// Options configures a Server
type Options struct {
	ReadinessChecks map[string]observability.HealthCheckFunc
	MetricsEnabled  bool
	// PersistTimeout bounds flushes that outlive their request
	PersistTimeout time.Duration
}

// Server routes client traffic to the session manager and turn registry
type Server struct {
	sessions *pipeline.Manager
	turns    *turns.Registry
	records  RecordReader
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a gateway server
func NewServer(sessions *pipeline.Manager, registry *turns.Registry, records RecordReader, opts Options) *Server {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	return &Server{
		sessions: sessions,
		turns:    registry,
		records:  records,
		opts:     opts,
		upgrader: websocket.Upgrader{
			// TODO: restrict origins once client deployments have a fixed host list
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(s.opts.ReadinessChecks))
	if s.opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Delete("/", s.handleDeleteSession)
		r.Post("/frames", s.handleFrame)
		r.Get("/audio", s.handleAudioStream)
		r.Get("/agent", s.handleAgentStream)
		r.Post("/turns/flush", s.handleFlushTurn)
		r.Get("/conversation", s.handleConversation)
	})

	return r
}

// requestLogger logs each request with the chi request id as correlation id
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger := observability.WithCorrelationID(middleware.GetReqID(r.Context()))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
