package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
	"gopkg.in/yaml.v3"

	"otelbridge/internal/telemetry"
)

// AuthType tags the AuthMethod variant.
type AuthType string

const (
	AuthNone        AuthType = "none"
	AuthAPIKey      AuthType = "api_key"
	AuthBearerToken AuthType = "bearer_token"
)

// AuthMethod is how requests authenticate against a backend. Only the fields
// of the tagged variant are meaningful.
type AuthMethod struct {
	Type       AuthType `json:"type" yaml:"type"`
	HeaderName string   `json:"header_name,omitempty" yaml:"header_name,omitempty"`
	Key        string   `json:"key,omitempty" yaml:"key,omitempty"`
	Token      string   `json:"token,omitempty" yaml:"token,omitempty"`
}

func NoAuth() AuthMethod {
	return AuthMethod{Type: AuthNone}
}

func APIKeyAuth(headerName, key string) AuthMethod {
	return AuthMethod{Type: AuthAPIKey, HeaderName: headerName, Key: key}
}

func BearerTokenAuth(token string) AuthMethod {
	return AuthMethod{Type: AuthBearerToken, Token: token}
}

// IsNone reports whether no credentials are configured.
func (a AuthMethod) IsNone() bool {
	return a.Type == AuthNone || a.Type == ""
}

// HeaderField returns the header this method adds to every request. An empty
// name means no header. Values that cannot be encoded as HTTP header bytes
// fail with a ConnectionFailed error.
func (a AuthMethod) HeaderField() (name, value string, err error) {
	switch a.Type {
	case AuthNone, "":
		return "", "", nil
	case AuthAPIKey:
		if !httpguts.ValidHeaderFieldName(a.HeaderName) {
			return "", "", telemetry.ConnectionFailed("invalid auth header name: %q", a.HeaderName)
		}
		if !httpguts.ValidHeaderFieldValue(a.Key) {
			return "", "", telemetry.ConnectionFailed("invalid auth header value")
		}
		return a.HeaderName, a.Key, nil
	case AuthBearerToken:
		v := "Bearer " + a.Token
		if !httpguts.ValidHeaderFieldValue(v) {
			return "", "", telemetry.ConnectionFailed("invalid bearer token")
		}
		return "Authorization", v, nil
	default:
		return "", "", telemetry.ConnectionFailed("unsupported auth type %q", a.Type)
	}
}

func (a *AuthMethod) normalize() error {
	switch a.Type {
	case "":
		a.Type = AuthNone
	case AuthNone, AuthAPIKey, AuthBearerToken:
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

func (a *AuthMethod) UnmarshalJSON(data []byte) error {
	type plain AuthMethod
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AuthMethod(p)
	return a.normalize()
}

func (a *AuthMethod) UnmarshalYAML(value *yaml.Node) error {
	type plain AuthMethod
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = AuthMethod(p)
	return a.normalize()
}

// DefaultTimeoutSecs applies when a backend config omits timeout_secs.
const DefaultTimeoutSecs = 30

// SigNozConfig contains SigNoz connection settings
type SigNozConfig struct {
	BaseURL     string     `json:"base_url" yaml:"base_url"`
	Auth        AuthMethod `json:"auth" yaml:"auth"`
	TimeoutSecs uint64     `json:"timeout_secs" yaml:"timeout_secs"`
}

func (c *SigNozConfig) UnmarshalJSON(data []byte) error {
	type plain SigNozConfig
	p := plain{Auth: NoAuth(), TimeoutSecs: DefaultTimeoutSecs}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = SigNozConfig(p)
	return nil
}

func (c *SigNozConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain SigNozConfig
	p := plain{Auth: NoAuth(), TimeoutSecs: DefaultTimeoutSecs}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = SigNozConfig(p)
	return nil
}

// ClickHouseConfig contains ClickHouse connection settings for read-only queries
type ClickHouseConfig struct {
	Addresses     []string      `json:"addresses" yaml:"addresses"`
	Database      string        `json:"database" yaml:"database"`
	Username      string        `json:"username" yaml:"username"`
	Password      string        `json:"password" yaml:"password"`
	TimeoutSecs   uint64        `json:"timeout_secs" yaml:"timeout_secs"`
	DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	MaxOpenConns  int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns  int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	Compression   string        `json:"compression" yaml:"compression"`
	TLSEnabled    bool          `json:"tls_enabled" yaml:"tls_enabled"`
	TLSSkipVerify bool          `json:"tls_skip_verify" yaml:"tls_skip_verify"`
}

// DefaultClickHouseConfig mirrors a local single-node deployment.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Addresses:    []string{"localhost:9000"},
		Database:     "otel",
		Username:     "default",
		TimeoutSecs:  DefaultTimeoutSecs,
		DialTimeout:  10 * time.Second,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		Compression:  "zstd",
	}
}

func (c *ClickHouseConfig) UnmarshalJSON(data []byte) error {
	type plain ClickHouseConfig
	p := plain(DefaultClickHouseConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ClickHouseConfig(p)
	return nil
}

func (c *ClickHouseConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ClickHouseConfig
	p := plain(DefaultClickHouseConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ClickHouseConfig(p)
	return nil
}

// BackendKind tags the BackendConfig variant.
type BackendKind string

const (
	BackendSigNoz     BackendKind = "signoz"
	BackendClickHouse BackendKind = "clickhouse"
)

// BackendConfig selects one backend kind and carries its settings. Exactly
// the field matching Kind is set. On the wire the variant's fields sit next
// to the "backend" tag.
type BackendConfig struct {
	Kind       BackendKind
	SigNoz     *SigNozConfig
	ClickHouse *ClickHouseConfig
}

func NewSigNozBackend(cfg SigNozConfig) BackendConfig {
	return BackendConfig{Kind: BackendSigNoz, SigNoz: &cfg}
}

func NewClickHouseBackend(cfg ClickHouseConfig) BackendConfig {
	return BackendConfig{Kind: BackendClickHouse, ClickHouse: &cfg}
}

// Auth returns the configured auth method; backends without HTTP auth report none.
func (c BackendConfig) Auth() AuthMethod {
	if c.Kind == BackendSigNoz && c.SigNoz != nil {
		return c.SigNoz.Auth
	}
	return NoAuth()
}

// WithAuth returns a copy whose SigNoz auth is replaced. Other kinds are
// returned unchanged.
func (c BackendConfig) WithAuth(auth AuthMethod) BackendConfig {
	if c.Kind != BackendSigNoz || c.SigNoz == nil {
		return c
	}
	sig := *c.SigNoz
	sig.Auth = auth
	c.SigNoz = &sig
	return c
}

// Endpoint is the base URL or address list, for logs.
func (c BackendConfig) Endpoint() string {
	switch c.Kind {
	case BackendSigNoz:
		if c.SigNoz != nil {
			return c.SigNoz.BaseURL
		}
	case BackendClickHouse:
		if c.ClickHouse != nil {
			return strings.Join(c.ClickHouse.Addresses, ",")
		}
	}
	return ""
}

type backendTag struct {
	Backend BackendKind `json:"backend" yaml:"backend"`
}

func (c BackendConfig) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case BackendSigNoz:
		if c.SigNoz == nil {
			return nil, fmt.Errorf("signoz backend config is missing settings")
		}
		return json.Marshal(struct {
			backendTag
			*SigNozConfig
		}{backendTag{c.Kind}, c.SigNoz})
	case BackendClickHouse:
		if c.ClickHouse == nil {
			return nil, fmt.Errorf("clickhouse backend config is missing settings")
		}
		return json.Marshal(struct {
			backendTag
			*ClickHouseConfig
		}{backendTag{c.Kind}, c.ClickHouse})
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Kind)
	}
}

func (c *BackendConfig) UnmarshalJSON(data []byte) error {
	var tag backendTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Backend {
	case BackendSigNoz:
		var sig SigNozConfig
		if err := json.Unmarshal(data, &sig); err != nil {
			return err
		}
		*c = NewSigNozBackend(sig)
	case BackendClickHouse:
		var ch ClickHouseConfig
		if err := json.Unmarshal(data, &ch); err != nil {
			return err
		}
		*c = NewClickHouseBackend(ch)
	default:
		return fmt.Errorf("unknown backend %q", tag.Backend)
	}
	return nil
}

// yaml.v3 does not inline types that implement yaml.Unmarshaler, so the
// variants are inlined through these method-less copies.
type (
	signozFields     SigNozConfig
	clickhouseFields ClickHouseConfig
)

func (c BackendConfig) MarshalYAML() (interface{}, error) {
	switch c.Kind {
	case BackendSigNoz:
		if c.SigNoz == nil {
			return nil, fmt.Errorf("signoz backend config is missing settings")
		}
		return struct {
			Backend      BackendKind `yaml:"backend"`
			signozFields `yaml:",inline"`
		}{c.Kind, signozFields(*c.SigNoz)}, nil
	case BackendClickHouse:
		if c.ClickHouse == nil {
			return nil, fmt.Errorf("clickhouse backend config is missing settings")
		}
		return struct {
			Backend          BackendKind `yaml:"backend"`
			clickhouseFields `yaml:",inline"`
		}{c.Kind, clickhouseFields(*c.ClickHouse)}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Kind)
	}
}

func (c *BackendConfig) UnmarshalYAML(value *yaml.Node) error {
	var tag backendTag
	if err := value.Decode(&tag); err != nil {
		return err
	}
	switch tag.Backend {
	case BackendSigNoz:
		var sig SigNozConfig
		if err := value.Decode(&sig); err != nil {
			return err
		}
		*c = NewSigNozBackend(sig)
	case BackendClickHouse:
		var ch ClickHouseConfig
		if err := value.Decode(&ch); err != nil {
			return err
		}
		*c = NewClickHouseBackend(ch)
	default:
		return fmt.Errorf("unknown backend %q", tag.Backend)
	}
	return nil
}

// Credentials are an email/password pair exchanged for a token at startup.
type Credentials struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}
