// Package config provides configuration loading for the correlator service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/threatlens/correlator/internal/refresher"
	"github.com/telhawk-systems/threatlens/correlator/internal/simulator"
)

// Event store backends for CorrelationConfig.Source.
const (
	SourcePostgres   = "postgres"
	SourceOpenSearch = "opensearch"
	SourceMemory     = "memory"
)

// Config holds all configuration for the correlator service
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	// MigrationsPath is a golang-migrate source URL.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection URL.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// OpenSearchConfig holds OpenSearch connection and index settings
type OpenSearchConfig struct {
	URL             string `mapstructure:"url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Insecure        bool   `mapstructure:"insecure"`
	EventIndex      string `mapstructure:"event_index"`
	DetectionIndex  string `mapstructure:"detection_index"`
	RefreshOnInsert bool   `mapstructure:"refresh_on_insert"`
}

// RedisConfig holds Redis configuration for alert suppression
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CorrelationConfig selects the event store and bounds each snapshot.
type CorrelationConfig struct {
	Source           string `mapstructure:"source"`
	refresher.Config `mapstructure:",squash"`
}

// SimulationConfig controls the attack lifecycle simulator.
type SimulationConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	Autostart        bool `mapstructure:"autostart"`
	simulator.Config `mapstructure:",squash"`
}

// AlertsConfig controls threat alert publication.
type AlertsConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	SuppressionWindow time.Duration `mapstructure:"suppression_window"`
	RecordDetections  bool          `mapstructure:"record_detections"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/threatlens/correlator")
	}

	// Environment variables override (CORRELATOR_SERVER_PORT, etc.)
	v.SetEnvPrefix("CORRELATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Correlation.Source {
	case SourcePostgres, SourceOpenSearch, SourceMemory:
	default:
		return fmt.Errorf("invalid correlation.source %q: must be one of postgres, opensearch, memory", c.Correlation.Source)
	}
	if c.Correlation.EventLimit <= 0 {
		return fmt.Errorf("correlation.event_limit must be positive, got %d", c.Correlation.EventLimit)
	}
	if c.Correlation.PollInterval <= 0 {
		return fmt.Errorf("correlation.poll_interval must be positive, got %s", c.Correlation.PollInterval)
	}
	if c.Simulation.Enabled {
		if err := c.Simulation.Config.Validate(); err != nil {
			return fmt.Errorf("invalid simulation config: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "threatlens")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "threatlens_correlator")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.migrations_path", "file://migrations")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.event_index", "threatlens-events")
	v.SetDefault("opensearch.detection_index", "threatlens-detections")
	v.SetDefault("opensearch.refresh_on_insert", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	rc := refresher.DefaultConfig()
	v.SetDefault("correlation.source", SourcePostgres)
	v.SetDefault("correlation.event_limit", rc.EventLimit)
	v.SetDefault("correlation.detection_limit", rc.DetectionLimit)
	v.SetDefault("correlation.poll_interval", rc.PollInterval)
	v.SetDefault("correlation.fetch_timeout", rc.FetchTimeout)

	sc := simulator.DefaultConfig()
	v.SetDefault("simulation.enabled", true)
	v.SetDefault("simulation.autostart", true)
	v.SetDefault("simulation.generate_interval", sc.GenerateInterval)
	v.SetDefault("simulation.progress_interval", sc.ProgressInterval)
	v.SetDefault("simulation.spawn_above", sc.SpawnAbove)
	v.SetDefault("simulation.progress_step_min", sc.ProgressStepMin)
	v.SetDefault("simulation.progress_step_max", sc.ProgressStepMax)
	v.SetDefault("simulation.retention", sc.Retention)
	v.SetDefault("simulation.max_live", sc.MaxLive)
	v.SetDefault("simulation.blocked_above", sc.BlockedAbove)
	v.SetDefault("simulation.mitigated_above", sc.MitigatedAbove)
	v.SetDefault("simulation.threat_level_step", sc.ThreatLevelStep)
	v.SetDefault("simulation.threat_level_min", sc.ThreatLevelMin)
	v.SetDefault("simulation.threat_level_max", sc.ThreatLevelMax)
	v.SetDefault("simulation.default_threat_level", sc.DefaultThreatLevel)
	v.SetDefault("simulation.default_active_nodes", sc.DefaultActiveNodes)
	v.SetDefault("simulation.default_uptime", sc.DefaultUptime)
	v.SetDefault("simulation.catalog", sc.Catalog)
	v.SetDefault("simulation.target_roles", sc.TargetRoles)
	v.SetDefault("simulation.stop_timeout", sc.StopTimeout)
	v.SetDefault("simulation.seed", sc.Seed)

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.suppression_window", "15m")
	v.SetDefault("alerts.record_detections", true)
}
