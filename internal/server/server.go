package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claims-intake/internal/common/config"
	commonhttp "claims-intake/internal/common/http"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/observability"
)

// Server is the HTTP surface of the intake service.
type Server struct {
	logger   logger.Logger
	handlers *Handlers
	metrics  *observability.Observability
	httpSrv  *http.Server
}

// New builds the server and its route table.
func New(cfg config.ServerConfig, log logger.Logger, handlers *Handlers, obs *observability.Observability) *Server {
	s := &Server{
		logger:   log,
		handlers: handlers,
		metrics:  obs,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/intake/sessions", handlers.CreateSession)
	mux.HandleFunc("GET /v1/intake/sessions/{id}", handlers.GetSession)
	mux.HandleFunc("POST /v1/intake/sessions/{id}/evidence", handlers.SubmitEvidence)
	mux.HandleFunc("POST /v1/intake/sessions/{id}/reset", handlers.ResetSession)
	mux.HandleFunc("DELETE /v1/intake/sessions/{id}", handlers.DeleteSession)
	mux.HandleFunc("GET /v1/intake/geocode", handlers.ReverseGeocode)

	// Signed URL and transcript ingestion keep the edge function contract:
	// permissive CORS, preflight handled by the middleware, opaque 500s.
	mux.HandleFunc("GET /v1/voice/signed-url", handlers.SignedURL)
	mux.HandleFunc("POST /v1/voice/signed-url", handlers.SignedURL)
	mux.HandleFunc("POST /v1/transcripts", handlers.DeliverTranscript)

	mux.HandleFunc("GET /v1/voice/stream", handlers.VoiceStream)
	mux.HandleFunc("GET /v1/voice/sessions/{id}", handlers.VoiceSessionState)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", handlers.Health)

	s.httpSrv = &http.Server{
		Addr:         cfg.Address,
		Handler:      commonhttp.WithCORS(s.instrument(mux)),
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"addr": s.httpSrv.Addr,
	}).Info("HTTP server listening", nil)

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps the websocket upgrade working through the middleware chain.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			s.metrics.RecordRequest(r.Context(), r.URL.Path, fmt.Sprintf("%d", rec.status))
			s.metrics.RecordRequestDuration(r.Context(), r.URL.Path, time.Since(started))
		}
	})
}
