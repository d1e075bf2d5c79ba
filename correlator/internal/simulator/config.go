package simulator

import "time"

// Config holds the simulator cadence, probabilities and bounds.
type Config struct {
	GenerateInterval time.Duration `mapstructure:"generate_interval"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`

	// A generation tick emits an attack when its draw r in [0,1) is
	// strictly above SpawnAbove. The default 0.6 spawns on 40% of ticks.
	SpawnAbove float64 `mapstructure:"spawn_above"`

	// Each progress tick adds a uniform step in [ProgressStepMin, ProgressStepMax).
	ProgressStepMin float64 `mapstructure:"progress_step_min"`
	ProgressStepMax float64 `mapstructure:"progress_step_max"`

	// Retention is how long a resolved attack stays in the live set.
	Retention time.Duration `mapstructure:"retention"`
	MaxLive   int           `mapstructure:"max_live"`

	// A resolution draw r in [0,1) maps to blocked when r > BlockedAbove,
	// mitigated when r > MitigatedAbove, and analyzing otherwise.
	BlockedAbove   float64 `mapstructure:"blocked_above"`
	MitigatedAbove float64 `mapstructure:"mitigated_above"`

	ThreatLevelStep float64 `mapstructure:"threat_level_step"`
	ThreatLevelMin  float64 `mapstructure:"threat_level_min"`
	ThreatLevelMax  float64 `mapstructure:"threat_level_max"`

	DefaultThreatLevel float64 `mapstructure:"default_threat_level"`
	DefaultActiveNodes int     `mapstructure:"default_active_nodes"`
	DefaultUptime      float64 `mapstructure:"default_uptime"`

	Catalog     []string `mapstructure:"catalog"`
	TargetRoles []string `mapstructure:"target_roles"`

	// StopTimeout bounds how long Stop waits for the tick loop to exit.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// Seed fixes the random sequence; zero seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

// DefaultCatalog is the stock set of attack techniques.
var DefaultCatalog = []string{
	"SYN Flood",
	"HTTP Flood",
	"DNS Amplification",
	"UDP Flood",
	"Slowloris",
	"SQL Injection",
	"Cross-Site Scripting",
	"Credential Stuffing",
	"Port Scan",
	"Ransomware Beacon",
}

// DefaultTargetRoles name the synthetic assets attacks are aimed at.
var DefaultTargetRoles = []string{
	"web-frontend",
	"api-gateway",
	"auth-service",
	"db-primary",
	"mail-relay",
	"vpn-edge",
}

// DefaultConfig returns the stock simulation settings.
func DefaultConfig() Config {
	return Config{
		GenerateInterval:   2 * time.Second,
		ProgressInterval:   300 * time.Millisecond,
		SpawnAbove:         0.6,
		ProgressStepMin:    5,
		ProgressStepMax:    20,
		Retention:          5 * time.Second,
		MaxLive:            10,
		BlockedAbove:       0.3,
		MitigatedAbove:     0.1,
		ThreatLevelStep:    5,
		ThreatLevelMin:     5,
		ThreatLevelMax:     95,
		DefaultThreatLevel: 35,
		DefaultActiveNodes: 12,
		DefaultUptime:      0.9997,
		Catalog:            append([]string(nil), DefaultCatalog...),
		TargetRoles:        append([]string(nil), DefaultTargetRoles...),
		StopTimeout:        5 * time.Second,
	}
}
