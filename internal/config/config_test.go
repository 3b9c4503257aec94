package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test server defaults
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8686 {
		t.Errorf("Expected default port 8686, got %d", cfg.Server.Port)
	}

	// Backend comes from the environment unless the file sets one
	if cfg.Backend != nil {
		t.Errorf("Expected no backend by default, got %v", cfg.Backend.Kind)
	}

	// Test bridge defaults
	if !cfg.Bridge.HealthCheckOnStart {
		t.Error("Expected health check on start by default")
	}
	if cfg.Bridge.HealthCheckInterval != 30*time.Second {
		t.Errorf("Expected health check interval 30s, got %v", cfg.Bridge.HealthCheckInterval)
	}

	// Test monitoring defaults
	if cfg.Monitoring.MetricsPort != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Monitoring.MetricsPort)
	}
	if cfg.Monitoring.TracingEndpoint != "" {
		t.Errorf("Expected tracing disabled by default, got %s", cfg.Monitoring.TracingEndpoint)
	}
}

func TestValidateConfig(t *testing.T) {
	signoz := NewSigNozBackend(SigNozConfig{BaseURL: "http://localhost:3301", Auth: NoAuth(), TimeoutSecs: 30})
	emptySigNoz := NewSigNozBackend(SigNozConfig{Auth: NoAuth()})
	emptyClickHouse := NewClickHouseBackend(ClickHouseConfig{Database: "otel"})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "valid signoz backend",
			mutate:  func(c *Config) { c.Backend = &signoz },
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid sample rate",
			mutate:  func(c *Config) { c.Monitoring.TraceSampleRate = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative health check interval",
			mutate:  func(c *Config) { c.Bridge.HealthCheckInterval = -time.Second },
			wantErr: true,
		},
		{
			name:    "login without password",
			mutate:  func(c *Config) { c.Bridge.Login = &Credentials{Email: "a@b.c"} },
			wantErr: true,
		},
		{
			name:    "empty signoz base url",
			mutate:  func(c *Config) { c.Backend = &emptySigNoz },
			wantErr: true,
		},
		{
			name:    "missing clickhouse addresses",
			mutate:  func(c *Config) { c.Backend = &emptyClickHouse },
			wantErr: true,
		},
		{
			name:    "unknown backend kind",
			mutate:  func(c *Config) { c.Backend = &BackendConfig{Kind: "jaeger"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	configContent := `
server:
  host: "0.0.0.0"
  port: 9999
  read_timeout: 60s
  write_timeout: 60s
  shutdown_timeout: 60s

backend:
  backend: signoz
  base_url: "http://signoz.internal:3301"
  auth:
    type: api_key
    header_name: SIGNOZ-API-KEY
    key: secret

bridge:
  health_check_on_start: false
  health_check_interval: 5s

monitoring:
  metrics_port: 9999
  metrics_path: "/prometheus"
  log_level: "debug"
  log_format: "text"
  health_check_path: "/healthz"
  ready_check_path: "/readyz"
  trace_sample_rate: 0.5
`

	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// Verify loaded values
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Backend == nil || cfg.Backend.Kind != BackendSigNoz {
		t.Fatalf("Expected signoz backend, got %+v", cfg.Backend)
	}
	if cfg.Backend.SigNoz.BaseURL != "http://signoz.internal:3301" {
		t.Errorf("Expected base url http://signoz.internal:3301, got %s", cfg.Backend.SigNoz.BaseURL)
	}
	if cfg.Backend.SigNoz.TimeoutSecs != DefaultTimeoutSecs {
		t.Errorf("Expected default timeout %d, got %d", DefaultTimeoutSecs, cfg.Backend.SigNoz.TimeoutSecs)
	}
	if cfg.Backend.SigNoz.Auth != APIKeyAuth("SIGNOZ-API-KEY", "secret") {
		t.Errorf("Expected api key auth, got %+v", cfg.Backend.SigNoz.Auth)
	}
	if cfg.Bridge.HealthCheckOnStart {
		t.Error("Expected health_check_on_start false")
	}
	if cfg.Bridge.HealthCheckInterval != 5*time.Second {
		t.Errorf("Expected health check interval 5s, got %v", cfg.Bridge.HealthCheckInterval)
	}
	if cfg.Monitoring.LogFormat != "text" {
		t.Errorf("Expected log format text, got %s", cfg.Monitoring.LogFormat)
	}
}

func TestLoadConfigKeepsDefaultsForMissingSections(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte("server:\n  port: 7000\n")); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Monitoring.MetricsPath != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", cfg.Monitoring.MetricsPath)
	}
}

func TestLoadConfigWithInvalidFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error loading nonexistent config file")
	}
}

func TestLoadConfigWithUnknownBackend(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte("backend:\n  backend: tempo\n")); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()

	if _, err := LoadConfig(tmpfile.Name()); err == nil {
		t.Error("Expected error for unknown backend kind")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("QUERY_PORT", "7777")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 7777 {
		t.Errorf("Expected 7777, got %d", cfg.Server.Port)
	}
	if cfg.Monitoring.LogLevel != "debug" {
		t.Errorf("Expected debug, got %s", cfg.Monitoring.LogLevel)
	}
	if cfg.Monitoring.TracingEndpoint != "localhost:4317" {
		t.Errorf("Expected localhost:4317, got %s", cfg.Monitoring.TracingEndpoint)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			m := MonitoringConfig{LogLevel: tt.level}
			if got := m.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigTimeouts(t *testing.T) {
	cfg := DefaultConfig()

	expectedReadTimeout := 30 * time.Second
	expectedWriteTimeout := 30 * time.Second
	expectedShutdownTimeout := 30 * time.Second

	if cfg.Server.ReadTimeout != expectedReadTimeout {
		t.Errorf("Expected read timeout %v, got %v", expectedReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != expectedWriteTimeout {
		t.Errorf("Expected write timeout %v, got %v", expectedWriteTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != expectedShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", expectedShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
}

func TestLoadSampleConfig(t *testing.T) {
	config, err := LoadConfig("../../configs/query.yaml")
	if err != nil {
		t.Fatalf("Failed to load sample config: %v", err)
	}

	if config.Server.Port != 8686 {
		t.Errorf("Expected port 8686, got %d", config.Server.Port)
	}
	if config.Backend == nil || config.Backend.Kind != BackendSigNoz {
		t.Fatalf("Expected signoz backend, got %+v", config.Backend)
	}
	if config.Backend.SigNoz.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected base URL http://localhost:8080, got %s", config.Backend.SigNoz.BaseURL)
	}
	if !config.Backend.Auth().IsNone() {
		t.Errorf("Expected no auth, got %+v", config.Backend.Auth())
	}
	if config.Bridge.Login != nil {
		t.Errorf("Expected login to be commented out, got %+v", config.Bridge.Login)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Sample config should validate: %v", err)
	}
}
