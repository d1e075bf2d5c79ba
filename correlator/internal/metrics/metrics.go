// Package metrics holds the correlator's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Correlation pass metrics
	CorrelationPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_correlator_passes_total",
			Help: "Total number of correlation passes by result",
		},
		[]string{"result"}, // success, failure
	)

	CorrelationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatlens_correlator_pass_duration_seconds",
			Help:    "Duration of correlation passes including the snapshot fetch",
			Buckets: prometheus.DefBuckets,
		},
	)

	RefreshTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_correlator_refresh_triggers_total",
			Help: "Refresh triggers by source and whether they queued a pass or coalesced",
		},
		[]string{"source", "outcome"},
	)

	MalformedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_correlator_malformed_events_total",
			Help: "Events dropped from correlation for missing an event type",
		},
	)

	// Summary gauges, set by the aggregator
	CorrelatedThreats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threatlens_correlator_threats",
			Help: "Correlated threats in the current result by status",
		},
		[]string{"status"},
	)

	ActivePatterns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_correlator_patterns",
			Help: "Threat patterns in the current result",
		},
	)

	AverageCorrelationScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_correlator_average_score",
			Help: "Mean correlation score of the current threats",
		},
	)

	EventsProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_correlator_events_processed",
			Help: "Events in the snapshot behind the current result",
		},
	)

	// Simulation metrics
	AttacksSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_simulation_attacks_spawned_total",
			Help: "Simulated attacks created by attack type",
		},
		[]string{"attack_type"},
	)

	AttacksResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_simulation_attacks_resolved_total",
			Help: "Simulated attacks resolved by terminal status",
		},
		[]string{"status"},
	)

	LiveAttacks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_simulation_live_attacks",
			Help: "Attacks currently in the live set",
		},
	)

	ThreatLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_simulation_threat_level",
			Help: "Current simulated threat level (5-95)",
		},
	)

	// Alerting metrics
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_correlator_alerts_total",
			Help: "Active threat alerts by outcome",
		},
		[]string{"outcome"}, // published, suppressed, failed
	)

	// Intake metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_correlator_events_ingested_total",
			Help: "Events received on the intake endpoint by outcome",
		},
		[]string{"outcome"}, // accepted, rejected
	)
)
