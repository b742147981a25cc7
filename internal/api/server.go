// Package api exposes the solver over HTTP.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetopt/internal/config"
	"fleetopt/internal/events"
	"fleetopt/internal/metrics"
	"fleetopt/internal/solver"
	"fleetopt/internal/store"
)

// maxBodyBytes bounds request bodies for every solve endpoint.
const maxBodyBytes = 8 << 20

type Server struct {
	Store   store.Store
	Solver  *solver.Service
	Broker  events.EventBroker
	Limiter *RateLimiter // nil disables rate limiting
	Config  config.Config
}

// NewServer wires a server. A zero rate in cfg disables limiting.
func NewServer(cfg config.Config, st store.Store, sv *solver.Service, br events.EventBroker) *Server {
	s := &Server{Store: st, Solver: sv, Broker: br, Config: cfg}
	if cfg.Rate.RPS > 0 {
		s.Limiter = NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst)
	}
	return s
}

// Routes returns the full handler chain: logging, metrics, rate limiting, then the mux.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Solving
	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/solve/batch", s.BatchHandler)
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

	// Async solves
	mux.HandleFunc("/v1/solves", s.SolvesHandler)
	mux.HandleFunc("/v1/solves/", s.SolveByIDHandler) // includes /metrics, /events, /ws

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)

	var h http.Handler = mux
	if s.Limiter != nil {
		h = s.Limiter.Middleware(h)
	}
	return logMiddleware(metricsMiddleware(h))
}

// Close releases background resources.
func (s *Server) Close() {
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
}
