// Package aggregator folds the correlation result and the simulator state
// into the summary served to dashboards and alerting consumers.
package aggregator

import (
	"math"
	"time"

	"github.com/telhawk-systems/threatlens/correlator/internal/metrics"
	"github.com/telhawk-systems/threatlens/correlator/internal/models"
	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
	"github.com/telhawk-systems/threatlens/correlator/internal/simulator"
)

// ThreatSource exposes the latest correlation result.
type ThreatSource interface {
	Current() *refresher.Result
}

// DefenseSource exposes the simulator state.
type DefenseSource interface {
	Snapshot() simulator.Snapshot
}

// Summary is a read-only roll-up of the current state.
type Summary struct {
	TotalCorrelations       int                         `json:"total_correlations"`
	ActivePatternCount      int                         `json:"active_pattern_count"`
	AverageCorrelationScore int                         `json:"average_correlation_score"`
	EventsProcessedCount    int                         `json:"events_processed_count"`
	ThreatsByStatus         map[models.ThreatStatus]int `json:"threats_by_status"`
	RecentDetectionCount    int                         `json:"recent_detection_count"`
	CorrelationState        refresher.State             `json:"correlation_state"`
	CorrelationMessage      string                      `json:"correlation_message,omitempty"`
	LastRefreshedAt         *time.Time                  `json:"last_refreshed_at,omitempty"`

	models.DefenseMetrics
	LiveAttackCount   int  `json:"live_attack_count"`
	SimulationRunning bool `json:"simulation_running"`
}

// Aggregator computes summaries on demand.
type Aggregator struct {
	threats ThreatSource
	defense DefenseSource
}

// New creates an Aggregator. defense may be nil when simulation is disabled.
func New(threats ThreatSource, defense DefenseSource) *Aggregator {
	return &Aggregator{threats: threats, defense: defense}
}

// Summary computes the current summary and mirrors it into Prometheus gauges.
func (a *Aggregator) Summary() Summary {
	var snap simulator.Snapshot
	if a.defense != nil {
		snap = a.defense.Snapshot()
	}
	s := Summarize(a.threats.Current(), snap)
	record(s)
	return s
}

// Summarize builds a Summary from a result and a simulator snapshot.
func Summarize(result *refresher.Result, snap simulator.Snapshot) Summary {
	s := Summary{
		ThreatsByStatus: map[models.ThreatStatus]int{
			models.ThreatStatusActive:        0,
			models.ThreatStatusInvestigating: 0,
			models.ThreatStatusMitigated:     0,
		},
		DefenseMetrics:    snap.Metrics,
		LiveAttackCount:   len(snap.Attacks),
		SimulationRunning: snap.Running,
	}
	if result == nil {
		s.CorrelationState = refresher.StatePending
		s.CorrelationMessage = refresher.MessagePending
		return s
	}

	s.TotalCorrelations = len(result.Threats)
	s.ActivePatternCount = len(result.Patterns)
	s.EventsProcessedCount = result.EventsProcessed
	s.RecentDetectionCount = result.RecentDetections
	s.CorrelationState = result.State
	s.CorrelationMessage = result.Message
	if !result.RefreshedAt.IsZero() {
		at := result.RefreshedAt
		s.LastRefreshedAt = &at
	}

	total := 0
	for _, t := range result.Threats {
		total += t.CorrelationScore
		s.ThreatsByStatus[t.Status]++
	}
	if len(result.Threats) > 0 {
		s.AverageCorrelationScore = int(math.Round(float64(total) / float64(len(result.Threats))))
	}
	return s
}

func record(s Summary) {
	for status, n := range s.ThreatsByStatus {
		metrics.CorrelatedThreats.WithLabelValues(string(status)).Set(float64(n))
	}
	metrics.ActivePatterns.Set(float64(s.ActivePatternCount))
	metrics.AverageCorrelationScore.Set(float64(s.AverageCorrelationScore))
	metrics.EventsProcessed.Set(float64(s.EventsProcessedCount))
	metrics.LiveAttacks.Set(float64(s.LiveAttackCount))
	metrics.ThreatLevel.Set(s.ThreatLevel)
}
