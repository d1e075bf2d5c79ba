// Package simulator runs a bounded population of synthetic attacks through
// an incoming -> {blocked | mitigated | analyzing} lifecycle and keeps the
// aggregate defense counters derived from it.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/telhawk-systems/threatlens/common/logging"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

var (
	ErrRunning     = errors.New("simulation already running")
	ErrStopped     = errors.New("simulation not running")
	ErrStopTimeout = errors.New("simulation tick loop did not stop in time")
)

// Hooks are invoked from the tick loop after the state lock is released.
// They must not call Start or Stop.
type Hooks struct {
	OnSpawn   func(models.SimulatedAttack)
	OnResolve func(models.SimulatedAttack)
}

// Snapshot is a consistent copy of the simulator state.
type Snapshot struct {
	Attacks []models.SimulatedAttack `json:"attacks"`
	Metrics models.DefenseMetrics    `json:"metrics"`
	Running bool                     `json:"running"`
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces time.Now for creation, resolution and eviction times.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

func WithHooks(h Hooks) Option {
	return func(s *Simulator) { s.hooks = h }
}

// Simulator owns the live attack set and the defense metrics.
type Simulator struct {
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
	hooks  Hooks

	mu      sync.Mutex
	faker   *gofakeit.Faker
	attacks []*models.SimulatedAttack // oldest first
	metrics models.DefenseMetrics

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped simulator with default metrics.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{
		cfg:    cfg,
		logger: logging.Default(),
		now:    time.Now,
		faker:  gofakeit.New(seed),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = s.defaultMetrics()
	return s, nil
}

// Validate checks the config for values the simulator cannot run with.
func (c Config) Validate() error {
	switch {
	case c.GenerateInterval <= 0 || c.ProgressInterval <= 0:
		return fmt.Errorf("simulation intervals must be positive")
	case c.ProgressStepMin <= 0 || c.ProgressStepMax <= c.ProgressStepMin:
		return fmt.Errorf("invalid progress step range [%v, %v)", c.ProgressStepMin, c.ProgressStepMax)
	case c.MaxLive <= 0:
		return fmt.Errorf("max_live must be positive")
	case len(c.Catalog) == 0:
		return fmt.Errorf("attack catalog is empty")
	case len(c.TargetRoles) == 0:
		return fmt.Errorf("target roles are empty")
	case c.ThreatLevelMin > c.ThreatLevelMax:
		return fmt.Errorf("threat level bounds are inverted")
	}
	return nil
}

func (s *Simulator) defaultMetrics() models.DefenseMetrics {
	return models.DefenseMetrics{
		ThreatLevel:     s.cfg.DefaultThreatLevel,
		ActiveNodeCount: s.cfg.DefaultActiveNodes,
		UptimeFraction:  s.cfg.DefaultUptime,
	}
}

// Start launches the generation and progress tickers. It returns ErrRunning
// if the tick loop is already active. The loop also ends when ctx is done.
func (s *Simulator) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.loopActive() {
		return ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go s.run(runCtx, done)

	s.logger.Info("Simulation started",
		slog.Duration("generate_interval", s.cfg.GenerateInterval),
		slog.Duration("progress_interval", s.cfg.ProgressInterval),
	)
	return nil
}

// Stop pauses the tick loop without touching the attack set or counters.
// ErrStopTimeout means the loop goroutine did not exit; the simulator should
// be discarded.
func (s *Simulator) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.loopActive() {
		return ErrStopped
	}

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(s.cfg.StopTimeout):
		return ErrStopTimeout
	}
	s.cancel, s.done = nil, nil

	s.logger.Info("Simulation stopped")
	return nil
}

// Running reports whether the tick loop is active.
func (s *Simulator) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.loopActive()
}

// loopActive must be called with runMu held.
func (s *Simulator) loopActive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// run is the tick loop. time.Ticker drops ticks the loop was too busy to
// receive, so a stalled host never replays a backlog.
func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	generate := time.NewTicker(s.cfg.GenerateInterval)
	defer generate.Stop()
	progress := time.NewTicker(s.cfg.ProgressInterval)
	defer progress.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-generate.C:
			s.generate()
		case <-progress.C:
			s.advance()
		}
	}
}

// Reset clears the live set and restores default metrics. Cadence and
// running state are unchanged.
func (s *Simulator) Reset() {
	s.mu.Lock()
	s.attacks = nil
	s.metrics = s.defaultMetrics()
	s.mu.Unlock()

	s.logger.Info("Simulation reset")
}

// Snapshot returns a copy of the live attacks (newest first) and metrics.
func (s *Simulator) Snapshot() Snapshot {
	running := s.Running()

	s.mu.Lock()
	defer s.mu.Unlock()

	attacks := make([]models.SimulatedAttack, 0, len(s.attacks))
	for i := len(s.attacks) - 1; i >= 0; i-- {
		attacks = append(attacks, *s.attacks[i])
	}
	return Snapshot{Attacks: attacks, Metrics: s.metrics, Running: running}
}

// Metrics returns a copy of the defense metrics.
func (s *Simulator) Metrics() models.DefenseMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// generate runs one generation tick.
func (s *Simulator) generate() {
	s.mu.Lock()
	if s.faker.Rand.Float64() <= s.cfg.SpawnAbove {
		s.mu.Unlock()
		return
	}

	attack := s.newAttack()
	s.attacks = append(s.attacks, attack)
	if over := len(s.attacks) - s.cfg.MaxLive; over > 0 {
		s.attacks = append([]*models.SimulatedAttack(nil), s.attacks[over:]...)
	}
	spawned := *attack
	s.mu.Unlock()

	s.logger.Debug("Attack spawned",
		logging.AttackID(spawned.ID),
		slog.String("attack_type", spawned.AttackType),
		slog.String("source", spawned.SourceAddress),
	)
	if s.hooks.OnSpawn != nil {
		s.hooks.OnSpawn(spawned)
	}
}

// newAttack must be called with mu held.
func (s *Simulator) newAttack() *models.SimulatedAttack {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &models.SimulatedAttack{
		ID:            id.String(),
		AttackType:    s.cfg.Catalog[s.faker.Rand.Intn(len(s.cfg.Catalog))],
		SourceAddress: s.faker.IPv4Address(),
		TargetLabel:   fmt.Sprintf("%s-%02d", s.faker.RandomString(s.cfg.TargetRoles), s.faker.Number(1, 16)),
		Severity:      models.Severities[s.faker.Rand.Intn(len(models.Severities))],
		Status:        models.AttackStatusIncoming,
		Progress:      0,
		CreatedAt:     s.now(),
	}
}

// advance runs one progress tick: step every unresolved attack, resolve the
// ones reaching 100, walk the threat level and evict expired attacks.
func (s *Simulator) advance() {
	s.mu.Lock()
	now := s.now()

	var resolved []models.SimulatedAttack
	for _, a := range s.attacks {
		if a.Status.Terminal() {
			continue
		}

		prev := a.Status
		a.Progress += s.cfg.ProgressStepMin + s.faker.Rand.Float64()*(s.cfg.ProgressStepMax-s.cfg.ProgressStepMin)
		if a.Progress >= 100 {
			a.Progress = 100
			a.Status = s.resolveStatus(s.faker.Rand.Float64())
			resolvedAt := now
			a.ResolvedAt = &resolvedAt
		}

		if a.Status == prev {
			continue
		}
		switch a.Status {
		case models.AttackStatusBlocked:
			s.metrics.BlockedCount++
		case models.AttackStatusMitigated:
			s.metrics.MitigatedCount++
		}
		resolved = append(resolved, *a)
	}

	if len(resolved) > 0 {
		s.walkThreatLevel()
	}
	s.evict(now)
	s.mu.Unlock()

	for _, a := range resolved {
		s.logger.Debug("Attack resolved",
			logging.AttackID(a.ID),
			slog.String("status", string(a.Status)),
		)
		if s.hooks.OnResolve != nil {
			s.hooks.OnResolve(a)
		}
	}
}

// resolveStatus maps a uniform draw in [0,1) to a terminal status.
func (s *Simulator) resolveStatus(r float64) models.AttackStatus {
	switch {
	case r > s.cfg.BlockedAbove:
		return models.AttackStatusBlocked
	case r > s.cfg.MitigatedAbove:
		return models.AttackStatusMitigated
	default:
		return models.AttackStatusAnalyzing
	}
}

// walkThreatLevel must be called with mu held.
func (s *Simulator) walkThreatLevel() {
	delta := (s.faker.Rand.Float64()*2 - 1) * s.cfg.ThreatLevelStep
	level := s.metrics.ThreatLevel + delta
	s.metrics.ThreatLevel = math.Max(s.cfg.ThreatLevelMin, math.Min(s.cfg.ThreatLevelMax, level))
}

// evict drops attacks resolved more than Retention ago. Must be called with mu held.
func (s *Simulator) evict(now time.Time) {
	kept := s.attacks[:0]
	for _, a := range s.attacks {
		if a.ResolvedAt != nil && now.Sub(*a.ResolvedAt) > s.cfg.Retention {
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(s.attacks); i++ {
		s.attacks[i] = nil
	}
	s.attacks = kept
}
