package correlation

import "github.com/telhawk-systems/threatlens/correlator/internal/models"

// PatternRule labels a group when any of its event types contains Contains.
type PatternRule struct {
	Contains string
	Label    string
}

// Tuning holds every weight, threshold and limit the engine uses.
type Tuning struct {
	// SeverityWeights maps a severity to its score contribution.
	// Severities missing from the map weigh DefaultWeight.
	SeverityWeights map[models.Severity]float64
	DefaultWeight   float64

	// FrequencyBonus is added once per event in the group.
	FrequencyBonus float64
	MinGroupSize   int
	MinScore       float64
	MaxScore       float64

	// Status thresholds are exclusive lower bounds.
	ActiveAbove        int
	InvestigatingAbove int

	MaxThreats    int
	MaxIndicators int

	// PatternRules are checked in order; the first match wins.
	PatternRules     []PatternRule
	MultiVectorAbove int
	MultiVectorLabel string
	DefaultLabel     string

	MaxPatterns int

	// Trend thresholds are exclusive lower bounds on occurrence count.
	IncreasingAbove int
	StableAbove     int
}

// DefaultTuning returns the stock scoring model.
func DefaultTuning() Tuning {
	return Tuning{
		SeverityWeights: map[models.Severity]float64{
			models.SeverityCritical: 40,
			models.SeverityHigh:     30,
			models.SeverityMedium:   20,
		},
		DefaultWeight:      10,
		FrequencyBonus:     5,
		MinGroupSize:       2,
		MinScore:           0,
		MaxScore:           100,
		ActiveAbove:        70,
		InvestigatingAbove: 40,
		MaxThreats:         10,
		MaxIndicators:      4,
		PatternRules: []PatternRule{
			{Contains: "brute_force", Label: "Credential Stuffing Campaign"},
			{Contains: "scan", Label: "Reconnaissance Activity"},
			{Contains: "injection", Label: "Injection Attack Chain"},
			{Contains: "malware", Label: "Malware Distribution"},
			{Contains: "ddos", Label: "DDoS Attack Pattern"},
		},
		MultiVectorAbove: 3,
		MultiVectorLabel: "Multi-Vector Attack",
		DefaultLabel:     "Correlated Threat Activity",
		MaxPatterns:      6,
		IncreasingAbove:  5,
		StableAbove:      2,
	}
}

func (t Tuning) weight(s models.Severity) float64 {
	if w, ok := t.SeverityWeights[s]; ok {
		return w
	}
	return t.DefaultWeight
}
