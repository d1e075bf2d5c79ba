package correlation

import (
	"sort"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

type typeTally struct {
	name  string
	count int
	// severities and order track the severity multiset in first-seen order.
	severities map[models.Severity]int
	order      []models.Severity
}

func (t *typeTally) add(s models.Severity) {
	if _, ok := t.severities[s]; !ok {
		t.order = append(t.order, s)
	}
	t.severities[s]++
	t.count++
}

// dominant returns the most frequent severity; ties go to the one seen first.
func (t *typeTally) dominant() models.Severity {
	var best models.Severity
	bestCount := 0
	for _, s := range t.order {
		if c := t.severities[s]; c > bestCount {
			best, bestCount = s, c
		}
	}
	return best
}

// DetectPatterns tallies events per event type regardless of origin and
// returns the most frequent types first. Equal counts keep first-seen order.
func (e *Engine) DetectPatterns(events []models.SecurityEvent) []models.ThreatPattern {
	index := make(map[string]*typeTally)
	var tallies []*typeTally
	for _, ev := range events {
		if ev.EventType == "" {
			continue
		}
		t, ok := index[ev.EventType]
		if !ok {
			t = &typeTally{name: ev.EventType, severities: make(map[models.Severity]int)}
			index[ev.EventType] = t
			tallies = append(tallies, t)
		}
		t.add(ev.Severity)
	}

	sort.SliceStable(tallies, func(i, j int) bool {
		return tallies[i].count > tallies[j].count
	})
	if e.tuning.MaxPatterns > 0 && len(tallies) > e.tuning.MaxPatterns {
		tallies = tallies[:e.tuning.MaxPatterns]
	}

	patterns := make([]models.ThreatPattern, 0, len(tallies))
	for _, t := range tallies {
		patterns = append(patterns, models.ThreatPattern{
			Name:             t.name,
			OccurrenceCount:  t.count,
			DominantSeverity: t.dominant(),
			Trend:            e.Trend(t.count),
		})
	}
	return patterns
}

// Trend derives a trend label from an occurrence count.
func (e *Engine) Trend(count int) models.Trend {
	switch {
	case count > e.tuning.IncreasingAbove:
		return models.TrendIncreasing
	case count > e.tuning.StableAbove:
		return models.TrendStable
	default:
		return models.TrendDecreasing
	}
}
