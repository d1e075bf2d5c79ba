// Package seeder generates synthetic security events shaped like attack
// campaigns so the correlator has something to correlate.
package seeder

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/threatlens/cli/internal/client"
)

// Scenario is a campaign an origin runs: a sequence of event types and the
// severities they are reported at.
type Scenario struct {
	Name       string
	EventTypes []string
	Severities []string
}

// DefaultScenarios cover each built-in classification rule.
var DefaultScenarios = []Scenario{
	{
		Name:       "credential_stuffing",
		EventTypes: []string{"brute_force_login", "brute_force_ssh"},
		Severities: []string{"high", "critical"},
	},
	{
		Name:       "reconnaissance",
		EventTypes: []string{"port_scan", "service_scan", "vuln_scan"},
		Severities: []string{"low", "medium"},
	},
	{
		Name:       "injection",
		EventTypes: []string{"sql_injection", "command_injection"},
		Severities: []string{"high", "critical"},
	},
	{
		Name:       "malware",
		EventTypes: []string{"malware_download", "malware_beacon"},
		Severities: []string{"medium", "high", "critical"},
	},
	{
		Name:       "ddos",
		EventTypes: []string{"ddos_syn_flood", "ddos_http_flood"},
		Severities: []string{"high"},
	},
	{
		Name:       "multi_vector",
		EventTypes: []string{"port_scan", "brute_force_login", "sql_injection", "privilege_escalation", "data_exfiltration"},
		Severities: []string{"medium", "high", "critical"},
	},
}

var noiseTypes = []string{"policy_violation", "failed_login", "dns_anomaly", "certificate_expired"}

// Config controls a generation run.
type Config struct {
	// Origins is the number of attacking origins.
	Origins int
	// Min and MaxEventsPerOrigin bound the events each origin emits.
	MinEventsPerOrigin int
	MaxEventsPerOrigin int
	// Noise is the number of unrelated single events.
	Noise int
	// Spread places events between now-Spread and now.
	Spread time.Duration
	// Seed makes runs reproducible; 0 picks a random seed.
	Seed int64
	// Scenarios restricts generation; empty means DefaultScenarios.
	Scenarios []Scenario
}

// DefaultConfig returns a small mixed campaign.
func DefaultConfig() Config {
	return Config{
		Origins:            5,
		MinEventsPerOrigin: 2,
		MaxEventsPerOrigin: 8,
		Noise:              5,
		Spread:             10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.Origins < 0 || c.Noise < 0 {
		return fmt.Errorf("origins and noise must not be negative")
	}
	if c.MinEventsPerOrigin < 1 || c.MaxEventsPerOrigin < c.MinEventsPerOrigin {
		return fmt.Errorf("events per origin must satisfy 1 <= min (%d) <= max (%d)", c.MinEventsPerOrigin, c.MaxEventsPerOrigin)
	}
	if c.Spread < 0 {
		return fmt.Errorf("spread must not be negative")
	}
	return nil
}

// Generator produces events from a seeded faker.
type Generator struct {
	cfg   Config
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator validates cfg and creates a Generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Scenarios) == 0 {
		cfg.Scenarios = DefaultScenarios
	}
	return &Generator{
		cfg:   cfg,
		faker: gofakeit.New(cfg.Seed),
		now:   time.Now,
	}, nil
}

// Generate returns campaign events for every origin followed by noise.
func (g *Generator) Generate() []client.SecurityEvent {
	now := g.now().UTC()
	var events []client.SecurityEvent

	for i := 0; i < g.cfg.Origins; i++ {
		origin := g.faker.IPv4Address()
		scenario := g.cfg.Scenarios[g.faker.Number(0, len(g.cfg.Scenarios)-1)]
		n := g.faker.Number(g.cfg.MinEventsPerOrigin, g.cfg.MaxEventsPerOrigin)
		for j := 0; j < n; j++ {
			events = append(events, client.SecurityEvent{
				ID:           g.faker.UUID(),
				EventType:    scenario.EventTypes[j%len(scenario.EventTypes)],
				Severity:     g.faker.RandomString(scenario.Severities),
				SourceOrigin: origin,
				DetectedAt:   g.timestamp(now),
			})
		}
	}

	for i := 0; i < g.cfg.Noise; i++ {
		ev := client.SecurityEvent{
			ID:         g.faker.UUID(),
			EventType:  g.faker.RandomString(noiseTypes),
			Severity:   g.faker.RandomString([]string{"low", "medium"}),
			DetectedAt: g.timestamp(now),
		}
		// Half the noise has no origin at all.
		if g.faker.Bool() {
			ev.SourceOrigin = g.faker.IPv4Address()
		}
		events = append(events, ev)
	}

	return events
}

func (g *Generator) timestamp(now time.Time) time.Time {
	if g.cfg.Spread <= 0 {
		return now
	}
	offset := time.Duration(g.faker.Int64()%int64(g.cfg.Spread))
	if offset < 0 {
		offset = -offset
	}
	return now.Add(-offset).Truncate(time.Millisecond)
}

// Batches splits events into chunks of at most size.
func Batches(events []client.SecurityEvent, size int) [][]client.SecurityEvent {
	if size <= 0 {
		size = len(events)
	}
	var out [][]client.SecurityEvent
	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		out = append(out, events[start:end])
	}
	return out
}
