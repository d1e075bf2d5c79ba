// Package correlation turns a snapshot of security events into ranked
// correlated threats and per-type threat patterns. It is a pure function
// of its input: no clocks, no randomness, no I/O.
package correlation

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

// threatNamespace seeds name-based threat IDs so an origin maps to the same ID on every pass.
var threatNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("threatlens:correlated-threat"))

// Result is the output of one correlation pass.
type Result struct {
	Threats  []models.CorrelatedThreat
	Patterns []models.ThreatPattern

	// EventsConsidered counts events that carried an event type.
	EventsConsidered int
	// Malformed counts events dropped for missing an event type.
	Malformed int
}

// Engine runs correlation passes with a fixed Tuning.
type Engine struct {
	tuning Tuning
}

// NewEngine creates an engine with the given tuning.
func NewEngine(tuning Tuning) *Engine {
	return &Engine{tuning: tuning}
}

// Tuning returns the engine's tuning.
func (e *Engine) Tuning() Tuning {
	return e.tuning
}

// Correlate runs one pass over events. An empty input yields an empty Result.
func (e *Engine) Correlate(events []models.SecurityEvent) Result {
	valid := make([]models.SecurityEvent, 0, len(events))
	for _, ev := range events {
		if ev.EventType == "" {
			continue
		}
		valid = append(valid, ev)
	}

	return Result{
		Threats:          e.CorrelateThreats(valid),
		Patterns:         e.DetectPatterns(valid),
		EventsConsidered: len(valid),
		Malformed:        len(events) - len(valid),
	}
}

// group is the set of events sharing one origin, in input order.
type group struct {
	origin string
	events []models.SecurityEvent
}

// groupByOrigin partitions events by origin, keeping first-seen group order.
// Events without an origin are skipped.
func groupByOrigin(events []models.SecurityEvent) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, ev := range events {
		if ev.SourceOrigin == "" {
			continue
		}
		g, ok := index[ev.SourceOrigin]
		if !ok {
			g = &group{origin: ev.SourceOrigin}
			index[ev.SourceOrigin] = g
			groups = append(groups, g)
		}
		g.events = append(g.events, ev)
	}
	return groups
}

// CorrelateThreats groups events by origin and returns the highest scoring
// groups, best first. Equal scores keep first-seen order.
func (e *Engine) CorrelateThreats(events []models.SecurityEvent) []models.CorrelatedThreat {
	threats := make([]models.CorrelatedThreat, 0)
	for _, g := range groupByOrigin(events) {
		if len(g.events) < e.tuning.MinGroupSize {
			continue
		}
		threats = append(threats, e.buildThreat(g))
	}

	sort.SliceStable(threats, func(i, j int) bool {
		return threats[i].CorrelationScore > threats[j].CorrelationScore
	})

	if e.tuning.MaxThreats > 0 && len(threats) > e.tuning.MaxThreats {
		threats = threats[:e.tuning.MaxThreats]
	}
	return threats
}

func (e *Engine) buildThreat(g *group) models.CorrelatedThreat {
	types := distinctTypes(g.events)
	score := e.Score(g.events)

	indicators := types
	if e.tuning.MaxIndicators > 0 && len(indicators) > e.tuning.MaxIndicators {
		indicators = indicators[:e.tuning.MaxIndicators]
	}

	return models.CorrelatedThreat{
		ID:                uuid.NewSHA1(threatNamespace, []byte(g.origin)).String(),
		PrimaryEvent:      primaryEvent(g),
		RelatedEventCount: len(g.events),
		CorrelationScore:  score,
		Pattern:           e.Classify(types),
		Indicators:        append([]string(nil), indicators...),
		Status:            e.Status(score),
	}
}

// Score is the mean severity weight of events plus FrequencyBonus per
// event, clamped to [MinScore, MaxScore] and rounded.
func (e *Engine) Score(events []models.SecurityEvent) int {
	if len(events) == 0 {
		return int(e.tuning.MinScore)
	}

	var sum float64
	for _, ev := range events {
		sum += e.tuning.weight(ev.Severity)
	}
	raw := sum/float64(len(events)) + e.tuning.FrequencyBonus*float64(len(events))

	clamped := math.Max(e.tuning.MinScore, math.Min(e.tuning.MaxScore, raw))
	return int(math.Round(clamped))
}

// Classify labels a group from its distinct event types.
func (e *Engine) Classify(types []string) string {
	lowered := make([]string, len(types))
	for i, t := range types {
		lowered[i] = strings.ToLower(t)
	}

	for _, rule := range e.tuning.PatternRules {
		for _, t := range lowered {
			if strings.Contains(t, rule.Contains) {
				return rule.Label
			}
		}
	}
	if len(types) > e.tuning.MultiVectorAbove {
		return e.tuning.MultiVectorLabel
	}
	return e.tuning.DefaultLabel
}

// Status derives the threat status from a score.
func (e *Engine) Status(score int) models.ThreatStatus {
	switch {
	case score > e.tuning.ActiveAbove:
		return models.ThreatStatusActive
	case score > e.tuning.InvestigatingAbove:
		return models.ThreatStatusInvestigating
	default:
		return models.ThreatStatusMitigated
	}
}

// primaryEvent reports the group's highest severity together with the type
// and time of its earliest event. Detection-time ties keep input order.
func primaryEvent(g *group) models.PrimaryEvent {
	earliest := g.events[0]
	severity := earliest.Severity
	for _, ev := range g.events[1:] {
		if ev.DetectedAt.Before(earliest.DetectedAt) {
			earliest = ev
		}
		if ev.Severity.Rank() > severity.Rank() {
			severity = ev.Severity
		}
	}
	return models.PrimaryEvent{
		Origin:     g.origin,
		Severity:   severity,
		EventType:  earliest.EventType,
		DetectedAt: earliest.DetectedAt,
	}
}

func distinctTypes(events []models.SecurityEvent) []string {
	seen := make(map[string]struct{}, len(events))
	types := make([]string, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.EventType]; ok {
			continue
		}
		seen[ev.EventType] = struct{}{}
		types = append(types, ev.EventType)
	}
	return types
}
