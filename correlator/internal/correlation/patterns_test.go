package correlation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/threatlens/correlator/internal/models"
)

func TestEngine_Trend(t *testing.T) {
	engine := NewEngine(DefaultTuning())

	tests := []struct {
		count int
		want  models.Trend
	}{
		{6, models.TrendIncreasing},
		{5, models.TrendStable},
		{3, models.TrendStable},
		{2, models.TrendDecreasing},
		{1, models.TrendDecreasing},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count_%d", tt.count), func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Trend(tt.count))
		})
	}
}

func TestEngine_DetectPatterns(t *testing.T) {
	engine := NewEngine(DefaultTuning())

	var events []models.SecurityEvent
	for i := 0; i < 6; i++ {
		events = append(events, ev("10.0.0.1", "brute_force_login", models.SeverityHigh, i))
	}
	events = append(events,
		ev("", "scan_port", models.SeverityLow, 10),
		ev("10.0.0.2", "scan_port", models.SeverityMedium, 11),
		ev("10.0.0.3", "scan_port", models.SeverityMedium, 12),
		ev("10.0.0.4", "sql_injection", models.SeverityCritical, 13),
	)

	patterns := engine.DetectPatterns(events)
	require.Len(t, patterns, 3)

	assert.Equal(t, models.ThreatPattern{
		Name: "brute_force_login", OccurrenceCount: 6, DominantSeverity: models.SeverityHigh, Trend: models.TrendIncreasing,
	}, patterns[0])
	assert.Equal(t, models.ThreatPattern{
		Name: "scan_port", OccurrenceCount: 3, DominantSeverity: models.SeverityMedium, Trend: models.TrendStable,
	}, patterns[1], "origin-less events still count toward patterns")
	assert.Equal(t, models.ThreatPattern{
		Name: "sql_injection", OccurrenceCount: 1, DominantSeverity: models.SeverityCritical, Trend: models.TrendDecreasing,
	}, patterns[2])
}

func TestEngine_DetectPatterns_SeverityTieGoesToFirstSeen(t *testing.T) {
	engine := NewEngine(DefaultTuning())

	patterns := engine.DetectPatterns([]models.SecurityEvent{
		ev("a", "anomalous_login", models.SeverityMedium, 0),
		ev("a", "anomalous_login", models.SeverityCritical, 1),
		ev("a", "anomalous_login", models.SeverityCritical, 2),
		ev("a", "anomalous_login", models.SeverityMedium, 3),
	})

	require.Len(t, patterns, 1)
	assert.Equal(t, models.SeverityMedium, patterns[0].DominantSeverity)
}

func TestEngine_DetectPatterns_TopSix(t *testing.T) {
	engine := NewEngine(DefaultTuning())

	var events []models.SecurityEvent
	for i := 0; i < 9; i++ {
		for j := 0; j <= i; j++ {
			events = append(events, ev("a", fmt.Sprintf("type_%d", i), models.SeverityLow, j))
		}
	}

	patterns := engine.DetectPatterns(events)
	require.Len(t, patterns, 6)
	assert.Equal(t, "type_8", patterns[0].Name)
	assert.Equal(t, 9, patterns[0].OccurrenceCount)
	assert.Equal(t, "type_3", patterns[5].Name)
}

func TestEngine_Correlate_BruteForceOutranksScan(t *testing.T) {
	engine := NewEngine(DefaultTuning())

	events := []models.SecurityEvent{
		ev("203.0.113.5", "brute_force_login", models.SeverityHigh, 0),
		ev("203.0.113.5", "brute_force_login", models.SeverityHigh, 1),
		ev("203.0.113.5", "scan_port", models.SeverityLow, 2),
	}

	result := engine.Correlate(events)
	require.Len(t, result.Threats, 1)
	assert.Equal(t, "Credential Stuffing Campaign", result.Threats[0].Pattern)
	require.Len(t, result.Patterns, 2)
	assert.Equal(t, "brute_force_login", result.Patterns[0].Name)
}
