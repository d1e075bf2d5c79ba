// Package handlers implements the correlator's HTTP API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/telhawk-systems/threatlens/common/httputil"
	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/aggregator"
	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
	"github.com/telhawk-systems/threatlens/correlator/internal/simulator"
)

// MaxIntakeBatch bounds the events accepted by one intake request.
const MaxIntakeBatch = 1000

// ThreatReader exposes the current correlation result.
type ThreatReader interface {
	Current() *refresher.Result
	Trigger(source string) bool
}

// SimulationController is the simulator's control surface.
type SimulationController interface {
	Start(ctx context.Context) error
	Stop() error
	Reset()
	Snapshot() simulator.Snapshot
}

// SummaryProvider computes the aggregate summary.
type SummaryProvider interface {
	Summary() aggregator.Summary
}

// EventWriter persists intake batches.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []models.SecurityEvent) (int, error)
}

// Notifier receives state changes the handler causes. Errors are logged only.
type Notifier interface {
	EventsInserted(ctx context.Context, ids []string, count int) error
	SimulationChanged(ctx context.Context, action string, running bool) error
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the correlator API.
type Handler struct {
	threats   ThreatReader
	summary   SummaryProvider
	sim       SimulationController
	events    EventWriter
	notifier  Notifier
	checks    []ReadinessCheck
	logger    *logging.Logger
	simCtx    context.Context
	startedAt time.Time
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithSimulator enables the simulation endpoints. ctx bounds the lifetime of
// a simulation started over HTTP; it must outlive individual requests.
func WithSimulator(ctx context.Context, sim SimulationController) Option {
	return func(h *Handler) {
		h.simCtx = ctx
		h.sim = sim
	}
}

// WithEventWriter enables the intake endpoint.
func WithEventWriter(w EventWriter) Option {
	return func(h *Handler) { h.events = w }
}

// WithNotifier publishes insert and simulation notifications.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithReadinessChecks adds dependency checks to /readyz.
func WithReadinessChecks(checks ...ReadinessCheck) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

// WithLogger sets the handler logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler.
func NewHandler(threats ThreatReader, summary SummaryProvider, opts ...Option) *Handler {
	h := &Handler{
		threats:   threats,
		summary:   summary,
		logger:    logging.Default(),
		simCtx:    context.Background(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ThreatsResponse is returned by GET /api/v1/threats.
type ThreatsResponse struct {
	State       refresher.State           `json:"state"`
	Message     string                    `json:"message,omitempty"`
	Threats     []models.CorrelatedThreat `json:"threats"`
	RefreshedAt *time.Time                `json:"refreshed_at,omitempty"`
	LastError   string                    `json:"last_error,omitempty"`
}

// PatternsResponse is returned by GET /api/v1/patterns.
type PatternsResponse struct {
	State       refresher.State        `json:"state"`
	Message     string                 `json:"message,omitempty"`
	Patterns    []models.ThreatPattern `json:"patterns"`
	RefreshedAt *time.Time             `json:"refreshed_at,omitempty"`
}

// AttacksResponse is returned by GET /api/v1/attacks.
type AttacksResponse struct {
	Running bool                     `json:"running"`
	Attacks []models.SimulatedAttack `json:"attacks"`
}

// SimulationResponse is returned by the simulation control endpoints.
type SimulationResponse struct {
	Action  string `json:"action"`
	Running bool   `json:"running"`
}

// RefreshResponse is returned by POST /api/v1/correlation/refresh.
type RefreshResponse struct {
	Queued bool `json:"queued"`
}

// IngestRequest is the body of POST /api/v1/events.
type IngestRequest struct {
	Events []models.SecurityEvent `json:"events"`
}

// IngestResponse reports the outcome of an intake batch.
type IngestResponse struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

func refreshedAt(r *refresher.Result) *time.Time {
	if r.RefreshedAt.IsZero() {
		return nil
	}
	t := r.RefreshedAt
	return &t
}

// ListThreats handles GET /api/v1/threats. An optional status query
// parameter filters by threat status.
func (h *Handler) ListThreats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cur := h.threats.Current()
	threats := cur.Threats
	if status := r.URL.Query().Get("status"); status != "" {
		switch models.ThreatStatus(status) {
		case models.ThreatStatusActive, models.ThreatStatusInvestigating, models.ThreatStatusMitigated:
		default:
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
		filtered := make([]models.CorrelatedThreat, 0, len(threats))
		for _, t := range threats {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		threats = filtered
	}

	httputil.WriteJSON(w, http.StatusOK, ThreatsResponse{
		State:       cur.State,
		Message:     cur.Message,
		Threats:     threats,
		RefreshedAt: refreshedAt(cur),
		LastError:   cur.LastError,
	})
}

// ListPatterns handles GET /api/v1/patterns.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cur := h.threats.Current()
	httputil.WriteJSON(w, http.StatusOK, PatternsResponse{
		State:       cur.State,
		Message:     cur.Message,
		Patterns:    cur.Patterns,
		RefreshedAt: refreshedAt(cur),
	})
}

// Summary handles GET /api/v1/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.summary.Summary())
}

// Refresh handles POST /api/v1/correlation/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	queued := h.threats.Trigger(refresher.SourceManual)
	httputil.WriteJSON(w, http.StatusAccepted, RefreshResponse{Queued: queued})
}

// ListAttacks handles GET /api/v1/attacks.
func (h *Handler) ListAttacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.sim == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "simulation is disabled")
		return
	}

	snap := h.sim.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, AttacksResponse{Running: snap.Running, Attacks: snap.Attacks})
}

// Defense handles GET /api/v1/defense.
func (h *Handler) Defense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.sim == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "simulation is disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.sim.Snapshot().Metrics)
}

// StartSimulation handles POST /api/v1/simulation/start.
func (h *Handler) StartSimulation(w http.ResponseWriter, r *http.Request) {
	h.controlSimulation(w, r, "start", func() error { return h.sim.Start(h.simCtx) })
}

// StopSimulation handles POST /api/v1/simulation/stop.
func (h *Handler) StopSimulation(w http.ResponseWriter, r *http.Request) {
	h.controlSimulation(w, r, "stop", func() error { return h.sim.Stop() })
}

// ResetSimulation handles POST /api/v1/simulation/reset.
func (h *Handler) ResetSimulation(w http.ResponseWriter, r *http.Request) {
	h.controlSimulation(w, r, "reset", func() error {
		h.sim.Reset()
		return nil
	})
}

func (h *Handler) controlSimulation(w http.ResponseWriter, r *http.Request, action string, op func() error) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.sim == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "simulation is disabled")
		return
	}

	ctx := r.Context()
	if err := op(); err != nil {
		switch {
		case errors.Is(err, simulator.ErrRunning), errors.Is(err, simulator.ErrStopped):
			httputil.WriteError(w, http.StatusConflict, err.Error())
		default:
			h.logger.ErrorContext(ctx, "simulation control failed", "action", action, logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	running := h.sim.Snapshot().Running
	h.logger.InfoContext(ctx, "simulation control", "action", action, "running", running)
	if h.notifier != nil {
		if err := h.notifier.SimulationChanged(ctx, action, running); err != nil {
			h.logger.WarnContext(ctx, "failed to publish simulation state", logging.Error(err))
		}
	}
	httputil.WriteJSON(w, http.StatusOK, SimulationResponse{Action: action, Running: running})
}

// IngestEvents handles POST /api/v1/events. A batch with any invalid event
// is rejected as a whole.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.events == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event intake is disabled")
		return
	}
	ctx := r.Context()

	var req IngestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		metrics.EventsIngested.WithLabelValues("rejected").Inc()
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case len(req.Events) == 0:
		metrics.EventsIngested.WithLabelValues("rejected").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "no events provided")
		return
	case len(req.Events) > MaxIntakeBatch:
		metrics.EventsIngested.WithLabelValues("rejected").Add(float64(len(req.Events)))
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch exceeds %d events", MaxIntakeBatch))
		return
	}

	var problems []string
	for i := range req.Events {
		e := &req.Events[i]
		if sev, err := models.ParseSeverity(string(e.Severity)); err == nil {
			e.Severity = sev
		}
		if err := e.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("events[%d]: %v", i, err))
		}
	}
	if len(problems) > 0 {
		metrics.EventsIngested.WithLabelValues("rejected").Add(float64(len(req.Events)))
		httputil.WriteJSON(w, http.StatusBadRequest, IngestResponse{Errors: problems})
		return
	}

	inserted, err := h.events.InsertEvents(ctx, req.Events)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to store events", logging.Error(err), logging.Count(len(req.Events)))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store events")
		return
	}
	metrics.EventsIngested.WithLabelValues("accepted").Add(float64(inserted))

	if inserted > 0 {
		h.threats.Trigger(refresher.SourceNotification)
		if h.notifier != nil {
			ids := make([]string, len(req.Events))
			for i, e := range req.Events {
				ids[i] = e.ID
			}
			if err := h.notifier.EventsInserted(ctx, ids, inserted); err != nil {
				h.logger.WarnContext(ctx, "failed to publish insert notification", logging.Error(err))
			}
		}
	}

	h.logger.InfoContext(ctx, "events ingested", logging.Count(inserted), "duplicates", len(req.Events)-inserted)
	httputil.WriteJSON(w, http.StatusAccepted, IngestResponse{
		Accepted:   inserted,
		Duplicates: len(req.Events) - inserted,
	})
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// ReadyCheck handles GET /readyz.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[c.Name] = err.Error()
			continue
		}
		checks[c.Name] = "ok"
	}

	ready := "ready"
	if status != http.StatusOK {
		ready = "not ready"
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"status":            ready,
		"checks":            checks,
		"correlation_state": h.threats.Current().State,
	})
}
