// Package models defines the domain types shared across the correlator.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent is wrapped by SecurityEvent.Validate failures.
var ErrInvalidEvent = errors.New("invalid security event")

// Severity is an ordered severity label: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns 1..4 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity accepts any letter case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// SecurityEvent is a single reported event. It is owned by the event store
// and never modified by the correlator.
type SecurityEvent struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	Severity     Severity  `json:"severity"`
	SourceOrigin string    `json:"source_origin,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Validate checks the fields the correlator relies on. The source origin is optional.
func (e SecurityEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	case strings.TrimSpace(e.EventType) == "":
		return fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	case e.Severity.Rank() == 0:
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	case e.DetectedAt.IsZero():
		return fmt.Errorf("%w: detected_at is required", ErrInvalidEvent)
	}
	return nil
}

// ThreatStatus is derived from a correlation score.
type ThreatStatus string

const (
	ThreatStatusActive        ThreatStatus = "active"
	ThreatStatusInvestigating ThreatStatus = "investigating"
	ThreatStatusMitigated     ThreatStatus = "mitigated"
)

// PrimaryEvent summarises the events behind a CorrelatedThreat.
type PrimaryEvent struct {
	Origin     string    `json:"origin"`
	Severity   Severity  `json:"severity"`
	EventType  string    `json:"event_type"`
	DetectedAt time.Time `json:"detected_at"`
}

// CorrelatedThreat groups two or more events that share an origin.
type CorrelatedThreat struct {
	ID                string       `json:"id"`
	PrimaryEvent      PrimaryEvent `json:"primary_event"`
	RelatedEventCount int          `json:"related_event_count"`
	CorrelationScore  int          `json:"correlation_score"`
	Pattern           string       `json:"pattern"`
	Indicators        []string     `json:"indicators"`
	Status            ThreatStatus `json:"status"`
}

// Trend describes how often an event type is being seen.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// ThreatPattern is the per-event-type tally over a snapshot.
type ThreatPattern struct {
	Name             string   `json:"name"`
	OccurrenceCount  int      `json:"occurrence_count"`
	DominantSeverity Severity `json:"dominant_severity"`
	Trend            Trend    `json:"trend"`
}

// Detection is a previously recorded CorrelatedThreat.
type Detection struct {
	ID                string       `json:"id"`
	ThreatID          string       `json:"threat_id"`
	Origin            string       `json:"origin"`
	Pattern           string       `json:"pattern"`
	Severity          Severity     `json:"severity"`
	CorrelationScore  int          `json:"correlation_score"`
	RelatedEventCount int          `json:"related_event_count"`
	Indicators        []string     `json:"indicators"`
	Status            ThreatStatus `json:"status"`
	DetectedAt        time.Time    `json:"detected_at"`
}

// AttackStatus is a SimulatedAttack lifecycle state.
type AttackStatus string

const (
	AttackStatusIncoming  AttackStatus = "incoming"
	AttackStatusBlocked   AttackStatus = "blocked"
	AttackStatusMitigated AttackStatus = "mitigated"
	AttackStatusAnalyzing AttackStatus = "analyzing"
)

// Terminal reports whether progress no longer advances in this state.
func (s AttackStatus) Terminal() bool {
	return s == AttackStatusBlocked || s == AttackStatusMitigated || s == AttackStatusAnalyzing
}

// SimulatedAttack is one synthetic in-flight attack.
type SimulatedAttack struct {
	ID            string       `json:"id"`
	AttackType    string       `json:"attack_type"`
	SourceAddress string       `json:"source_address"`
	TargetLabel   string       `json:"target_label"`
	Severity      Severity     `json:"severity"`
	Status        AttackStatus `json:"status"`
	Progress      float64      `json:"progress"`
	CreatedAt     time.Time    `json:"created_at"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
}

// DefenseMetrics are the simulator's aggregate counters.
type DefenseMetrics struct {
	BlockedCount    int64   `json:"blocked_count"`
	MitigatedCount  int64   `json:"mitigated_count"`
	ThreatLevel     float64 `json:"threat_level"`
	ActiveNodeCount int     `json:"active_node_count"`
	UptimeFraction  float64 `json:"uptime_fraction"`
}

// ThreatAlert is published for each active CorrelatedThreat that is not
// currently suppressed.
type ThreatAlert struct {
	ThreatID          string       `json:"threat_id"`
	Origin            string       `json:"origin"`
	Pattern           string       `json:"pattern"`
	Severity          Severity     `json:"severity"`
	CorrelationScore  int          `json:"correlation_score"`
	RelatedEventCount int          `json:"related_event_count"`
	Indicators        []string     `json:"indicators"`
	Status            ThreatStatus `json:"status"`
	RaisedAt          time.Time    `json:"raised_at"`
}

// NewThreatAlert builds the alert for a threat raised at the given time.
func NewThreatAlert(t CorrelatedThreat, at time.Time) ThreatAlert {
	return ThreatAlert{
		ThreatID:          t.ID,
		Origin:            t.PrimaryEvent.Origin,
		Pattern:           t.Pattern,
		Severity:          t.PrimaryEvent.Severity,
		CorrelationScore:  t.CorrelationScore,
		RelatedEventCount: t.RelatedEventCount,
		Indicators:        t.Indicators,
		Status:            t.Status,
		RaisedAt:          at,
	}
}

// Detection converts the alert into the record kept for later passes.
func (a ThreatAlert) Detection() Detection {
	return Detection{
		ThreatID:          a.ThreatID,
		Origin:            a.Origin,
		Pattern:           a.Pattern,
		Severity:          a.Severity,
		CorrelationScore:  a.CorrelationScore,
		RelatedEventCount: a.RelatedEventCount,
		Indicators:        a.Indicators,
		Status:            a.Status,
		DetectedAt:        a.RaisedAt,
	}
}
