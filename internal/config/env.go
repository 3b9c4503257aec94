package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultSigNozBaseURL is used when SIGNOZ_BASE_URL is unset or empty.
	DefaultSigNozBaseURL = "http://localhost:8080"
	// SigNozAPIKeyHeader carries SIGNOZ_API_KEY.
	SigNozAPIKeyHeader = "SIGNOZ-API-KEY"
)

// EnvConfig holds the SigNoz connection parameters read from the environment.
type EnvConfig struct {
	BaseURL     string `env:"SIGNOZ_BASE_URL" envDefault:"http://localhost:8080"`
	APIKey      string `env:"SIGNOZ_API_KEY"`
	Email       string `env:"SIGNOZ_EMAIL"`
	Password    string `env:"SIGNOZ_PASSWORD"`
	TimeoutSecs uint64 `env:"SIGNOZ_TIMEOUT_SECS" envDefault:"30"`
}

// LoadEnv reads SIGNOZ_* variables.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSigNozBaseURL
	}
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = DefaultTimeoutSecs
	}
	return cfg, nil
}

// BackendConfig maps the environment onto a SigNoz backend. An API key wins;
// otherwise auth starts as none and may be upgraded after a login.
func (e EnvConfig) BackendConfig() BackendConfig {
	auth := NoAuth()
	if e.APIKey != "" {
		auth = APIKeyAuth(SigNozAPIKeyHeader, e.APIKey)
	}
	return NewSigNozBackend(SigNozConfig{
		BaseURL:     e.BaseURL,
		Auth:        auth,
		TimeoutSecs: e.TimeoutSecs,
	})
}

// LoginCredentials reports the email/password pair when both are set.
func (e EnvConfig) LoginCredentials() (Credentials, bool) {
	if e.Email == "" || e.Password == "" {
		return Credentials{}, false
	}
	return Credentials{Email: e.Email, Password: e.Password}, true
}
