package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// Server exposes health, readiness, metrics, and read-only registry endpoints.
type Server struct {
	httpServer *http.Server
	resolver   *domain.Resolver
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /services and /domains routes.
func NewServer(addr string, ready ReadinessChecker, resolver *domain.Resolver, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		resolver: resolver,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.HandleFunc("GET /services", s.handleServices)
	mux.HandleFunc("GET /domains", s.handleDomains)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type serviceView struct {
	ID            domain.ServiceID `json:"id"`
	Scope         string           `json:"scope"`
	CycleInterval string           `json:"cycle_interval"`
	TimeStep      string           `json:"time_step"`
	StormRequired bool             `json:"storm_required,omitempty"`
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	infos := domain.Services()
	out := make([]serviceView, len(infos))
	for i, info := range infos {
		out[i] = serviceView{
			ID:            info.ID,
			Scope:         info.Scope.String(),
			CycleInterval: info.CycleInterval.String(),
			TimeStep:      info.TimeStep.String(),
			StormRequired: info.StormRequired,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDomains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Predefined())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
