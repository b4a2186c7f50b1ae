package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Engine         EngineConfig         `yaml:"engine"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// ServerConfig holds HTTP server settings. The bid/admin API and the
// health endpoints listen on separate ports so operational probes stay
// reachable while the API is leader-gated.
type ServerConfig struct {
	APIPort         int           `yaml:"api_port"`
	OpsPort         int           `yaml:"ops_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "ent"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// EngineConfig holds auction engine settings.
type EngineConfig struct {
	// QueueSize bounds each auction machine's command queue; a full
	// queue surfaces as a retryable busy rejection.
	QueueSize int `yaml:"queue_size"`
	// EventBufferSize bounds the outbound event channel consumed by
	// settlement and notification collaborators.
	EventBufferSize int `yaml:"event_buffer_size"`
	// AdminExtendDuration is how far a manual admin extension pushes
	// the closing time.
	AdminExtendDuration time.Duration `yaml:"admin_extend_duration"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			APIPort:         8080,
			OpsPort:         8081,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Engine: EngineConfig{
			QueueSize:           256,
			EventBufferSize:     1024,
			AdminExtendDuration: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "ent":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"ent\"", c.Database.Driver)
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine queue_size must be positive, got %d", c.Engine.QueueSize)
	}
	if c.Engine.EventBufferSize <= 0 {
		return fmt.Errorf("engine event_buffer_size must be positive, got %d", c.Engine.EventBufferSize)
	}
	if c.Engine.AdminExtendDuration <= 0 {
		return fmt.Errorf("engine admin_extend_duration must be positive, got %v", c.Engine.AdminExtendDuration)
	}
	return nil
}
