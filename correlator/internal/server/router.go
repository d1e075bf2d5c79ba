package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/common/middleware"
	"github.com/telhawk-systems/threatlens/correlator/internal/handlers"
)

// NewRouter constructs a ServeMux with correlator API routes registered.
func NewRouter(h *handlers.Handler, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/threats", h.ListThreats)
	mux.HandleFunc("/api/v1/patterns", h.ListPatterns)
	mux.HandleFunc("/api/v1/summary", h.Summary)
	mux.HandleFunc("/api/v1/correlation/refresh", h.Refresh)
	mux.HandleFunc("/api/v1/events", h.IngestEvents)

	mux.HandleFunc("/api/v1/attacks", h.ListAttacks)
	mux.HandleFunc("/api/v1/defense", h.Defense)
	mux.HandleFunc("/api/v1/simulation/start", h.StartSimulation)
	mux.HandleFunc("/api/v1/simulation/stop", h.StopSimulation)
	mux.HandleFunc("/api/v1/simulation/reset", h.ResetSimulation)

	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.AccessLog(logger.Logger)(mux))
}
