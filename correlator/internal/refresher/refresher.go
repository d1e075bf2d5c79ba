// Package refresher drives correlation passes: it fetches a snapshot from
// the event source, runs the engine and publishes the result atomically.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/correlation"
	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// EventSource supplies the recent-history snapshot for a pass.
type EventSource interface {
	FetchRecentEvents(ctx context.Context, limit int) ([]models.SecurityEvent, error)
	FetchRecentDetections(ctx context.Context, limit int) ([]models.Detection, error)
}

// State distinguishes the three empty-result situations a reader can see.
type State string

const (
	// StatePending: no pass has completed yet.
	StatePending State = "pending"
	// StateReady: the last pass succeeded.
	StateReady State = "ready"
	// StateStale: the last pass failed; results are from an earlier pass.
	StateStale State = "stale"
)

// Messages shown for the empty states.
const (
	MessagePending   = "analyzing patterns..."
	MessageNoThreats = "no threats correlated yet"
	MessageStale     = "could not refresh correlation results"
)

// Trigger sources for metrics and logs.
const (
	SourceNotification = "notification"
	SourcePoll         = "poll"
	SourceManual       = "manual"
)

// Result is one immutable correlation result. Readers must not modify it.
type Result struct {
	State            State                     `json:"state"`
	Message          string                    `json:"message,omitempty"`
	Threats          []models.CorrelatedThreat `json:"threats"`
	Patterns         []models.ThreatPattern    `json:"patterns"`
	EventsProcessed  int                       `json:"events_processed"`
	MalformedEvents  int                       `json:"malformed_events"`
	RecentDetections int                       `json:"recent_detections"`
	RefreshedAt      time.Time                 `json:"refreshed_at"`
	LastAttemptAt    time.Time                 `json:"last_attempt_at"`
	LastError        string                    `json:"last_error,omitempty"`
}

// ResultHook runs after every successful pass, on the refresh goroutine.
type ResultHook func(ctx context.Context, r *Result)

// Config controls snapshot size and cadence.
type Config struct {
	EventLimit     int           `mapstructure:"event_limit"`
	DetectionLimit int           `mapstructure:"detection_limit"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
}

// DefaultConfig returns the stock snapshot bounds and cadence.
func DefaultConfig() Config {
	return Config{
		EventLimit:     100,
		DetectionLimit: 50,
		PollInterval:   30 * time.Second,
		FetchTimeout:   10 * time.Second,
	}
}

// Refresher runs at most one pass at a time. Triggers that arrive while a
// pass is running collapse into a single trailing pass.
type Refresher struct {
	source EventSource
	engine *correlation.Engine
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	hooks []ResultHook

	passMu     sync.Mutex
	current    atomic.Pointer[Result]
	trigger    chan struct{}
	subscribed atomic.Bool
}

// New creates a Refresher in the pending state.
func New(source EventSource, engine *correlation.Engine, cfg Config, logger *logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Refresher{
		source:  source,
		engine:  engine,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "refresher")),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
	r.current.Store(&Result{
		State:    StatePending,
		Message:  MessagePending,
		Threats:  []models.CorrelatedThreat{},
		Patterns: []models.ThreatPattern{},
	})
	return r
}

// OnResult registers a hook. Register hooks before calling Run.
func (r *Refresher) OnResult(hook ResultHook) {
	r.hooks = append(r.hooks, hook)
}

// SetSubscribed records whether a live change subscription exists. While
// it does, poll ticks only retry after a failed pass.
func (r *Refresher) SetSubscribed(ok bool) {
	r.subscribed.Store(ok)
}

// Current returns the latest result. It never returns nil.
func (r *Refresher) Current() *Result {
	return r.current.Load()
}

// Trigger requests a pass. It reports false when a pass is already queued
// and the request was coalesced into it.
func (r *Refresher) Trigger(source string) bool {
	select {
	case r.trigger <- struct{}{}:
		metrics.RefreshTriggers.WithLabelValues(source, "queued").Inc()
		return true
	default:
		metrics.RefreshTriggers.WithLabelValues(source, "coalesced").Inc()
		return false
	}
}

// Run performs an initial pass and then serves triggers and poll ticks
// until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("Correlation refresher started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int("event_limit", r.cfg.EventLimit),
		slog.Int("detection_limit", r.cfg.DetectionLimit),
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	_ = r.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Correlation refresher stopped")
			return
		case <-r.trigger:
			_ = r.Refresh(ctx)
		case <-ticker.C:
			if r.subscribed.Load() && r.Current().State != StateStale {
				continue
			}
			metrics.RefreshTriggers.WithLabelValues(SourcePoll, "queued").Inc()
			_ = r.Refresh(ctx)
		}
	}
}

// Refresh runs one pass synchronously. On a fetch failure the previous
// threats and patterns stay in place and the state becomes stale.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	start := r.now()
	defer func() {
		metrics.CorrelationPassDuration.Observe(time.Since(start).Seconds())
	}()

	events, detections, err := r.fetch(ctx)
	if err != nil {
		r.markStale(start, err)
		metrics.CorrelationPasses.WithLabelValues("failure").Inc()
		r.logger.WarnContext(ctx, "Correlation pass failed, keeping previous results", logging.Error(err))
		return err
	}

	out := r.engine.Correlate(events)
	if out.Malformed > 0 {
		metrics.MalformedEvents.Add(float64(out.Malformed))
		r.logger.WarnContext(ctx, "Dropped events without an event type", logging.Count(out.Malformed))
	}

	result := &Result{
		State:            StateReady,
		Threats:          out.Threats,
		Patterns:         out.Patterns,
		EventsProcessed:  out.EventsConsidered,
		MalformedEvents:  out.Malformed,
		RecentDetections: len(detections),
		RefreshedAt:      start,
		LastAttemptAt:    start,
	}
	if len(result.Threats) == 0 {
		result.Message = MessageNoThreats
	}
	r.current.Store(result)
	metrics.CorrelationPasses.WithLabelValues("success").Inc()

	r.logger.DebugContext(ctx, "Correlation pass completed",
		slog.Int("events", result.EventsProcessed),
		slog.Int("threats", len(result.Threats)),
		slog.Int("patterns", len(result.Patterns)),
	)

	for _, hook := range r.hooks {
		hook(ctx, result)
	}
	return nil
}

func (r *Refresher) fetch(ctx context.Context) ([]models.SecurityEvent, []models.Detection, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	events, err := r.source.FetchRecentEvents(fetchCtx, r.cfg.EventLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch recent events: %w", err)
	}
	detections, err := r.source.FetchRecentDetections(fetchCtx, r.cfg.DetectionLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch recent detections: %w", err)
	}
	return events, detections, nil
}

// markStale must be called with passMu held.
func (r *Refresher) markStale(at time.Time, err error) {
	next := *r.current.Load()
	next.State = StateStale
	next.Message = MessageStale
	next.LastAttemptAt = at
	next.LastError = err.Error()
	r.current.Store(&next)
}
