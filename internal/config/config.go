package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the query host configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    *BackendConfig   `yaml:"backend"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig contains settings for the local query API
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BridgeConfig contains settings for the background bridge
type BridgeConfig struct {
	// Login is exchanged for a bearer token before the backend is built.
	// Ignored when the backend already has credentials.
	Login               *Credentials  `yaml:"login"`
	HealthCheckOnStart  bool          `yaml:"health_check_on_start"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// MonitoringConfig contains monitoring and observability settings
type MonitoringConfig struct {
	MetricsPort     int     `yaml:"metrics_port"`
	MetricsPath     string  `yaml:"metrics_path"`
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	HealthCheckPath string  `yaml:"health_check_path"`
	ReadyCheckPath  string  `yaml:"ready_check_path"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Monitoring.TraceSampleRate < 0 || c.Monitoring.TraceSampleRate > 1 {
		return fmt.Errorf("trace sample rate must be between 0 and 1")
	}
	if c.Bridge.HealthCheckInterval < 0 {
		return fmt.Errorf("health check interval cannot be negative")
	}
	if c.Bridge.Login != nil && (c.Bridge.Login.Email == "" || c.Bridge.Login.Password == "") {
		return fmt.Errorf("bridge login requires both email and password")
	}
	if c.Backend != nil {
		switch c.Backend.Kind {
		case BackendSigNoz:
			if c.Backend.SigNoz == nil || c.Backend.SigNoz.BaseURL == "" {
				return fmt.Errorf("signoz base_url cannot be empty")
			}
		case BackendClickHouse:
			if c.Backend.ClickHouse == nil || len(c.Backend.ClickHouse.Addresses) == 0 {
				return fmt.Errorf("clickhouse addresses cannot be empty")
			}
		default:
			return fmt.Errorf("unknown backend %q", c.Backend.Kind)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	if val := os.Getenv("QUERY_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &config.Server.Port)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Monitoring.LogLevel = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		config.Monitoring.TracingEndpoint = val
	}
}

// SlogLevel maps LogLevel to an slog.Level.
func (m MonitoringConfig) SlogLevel() slog.Level {
	switch strings.ToLower(m.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8686,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Bridge: BridgeConfig{
			HealthCheckOnStart:  true,
			HealthCheckInterval: 30 * time.Second,
		},
		Monitoring: MonitoringConfig{
			MetricsPort:     9090,
			MetricsPath:     "/metrics",
			LogLevel:        "info",
			LogFormat:       "json",
			HealthCheckPath: "/health",
			ReadyCheckPath:  "/ready",
			TraceSampleRate: 0.1,
		},
	}
}
