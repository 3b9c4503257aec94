// Package backend holds the closed set of telemetry backends and forwards
// each contract call to the active one.
package backend

import (
	"context"
	"log/slog"
	"time"

	"otelbridge/internal/clickhouse"
	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/signoz"
	"otelbridge/internal/telemetry"
)

// Client is exactly one concrete backend, selected by Kind.
type Client struct {
	kind       config.BackendKind
	signoz     *signoz.Backend
	clickhouse *clickhouse.Backend
}

var _ telemetry.Backend = (*Client)(nil)

// New builds the backend named by cfg.Kind.
func New(cfg config.BackendConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case config.BackendSigNoz:
		if cfg.SigNoz == nil {
			return nil, telemetry.ConnectionFailed("signoz backend config is missing settings")
		}
		b, err := signoz.New(*cfg.SigNoz, signoz.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Client{kind: cfg.Kind, signoz: b}, nil
	case config.BackendClickHouse:
		if cfg.ClickHouse == nil {
			return nil, telemetry.ConnectionFailed("clickhouse backend config is missing settings")
		}
		b, err := clickhouse.New(*cfg.ClickHouse, clickhouse.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Client{kind: cfg.Kind, clickhouse: b}, nil
	default:
		return nil, telemetry.ConnectionFailed("unknown backend %q", cfg.Kind)
	}
}

// FromSigNoz wraps an already constructed SigNoz backend.
func FromSigNoz(b *signoz.Backend) *Client {
	return &Client{kind: config.BackendSigNoz, signoz: b}
}

// FromClickHouse wraps an already constructed ClickHouse backend.
func FromClickHouse(b *clickhouse.Backend) *Client {
	return &Client{kind: config.BackendClickHouse, clickhouse: b}
}

// Kind reports the active variant.
func (c *Client) Kind() config.BackendKind {
	return c.kind
}

// Login exchanges credentials for a bearer token and returns cfg with its
// auth upgraded. Backends without a login flow return cfg unchanged.
func Login(ctx context.Context, cfg config.BackendConfig, creds config.Credentials, logger *slog.Logger) (config.BackendConfig, error) {
	switch cfg.Kind {
	case config.BackendSigNoz:
		if cfg.SigNoz == nil {
			return cfg, telemetry.ConnectionFailed("signoz backend config is missing settings")
		}
		token, err := signoz.Login(ctx, cfg.SigNoz.BaseURL, creds.Email, creds.Password,
			signoz.WithLogger(logger),
			signoz.WithTimeout(time.Duration(cfg.SigNoz.TimeoutSecs)*time.Second))
		if err != nil {
			return cfg, err
		}
		return cfg.WithAuth(config.BearerTokenAuth(token)), nil
	default:
		return cfg, nil
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.HealthCheck(ctx)
	default:
		return c.signoz.HealthCheck(ctx)
	}
}

func (c *Client) ListServices(ctx context.Context) ([]models.ServiceInfo, error) {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.ListServices(ctx)
	default:
		return c.signoz.ListServices(ctx)
	}
}

func (c *Client) QueryTraces(ctx context.Context, q *models.TraceQuery) (models.QueryResult[models.Span], error) {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.QueryTraces(ctx, q)
	default:
		return c.signoz.QueryTraces(ctx, q)
	}
}

func (c *Client) QueryMetrics(ctx context.Context, q *models.MetricQuery) (models.QueryResult[models.MetricSeries], error) {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.QueryMetrics(ctx, q)
	default:
		return c.signoz.QueryMetrics(ctx, q)
	}
}

func (c *Client) QueryLogs(ctx context.Context, q *models.LogQuery) (models.QueryResult[models.LogEntry], error) {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.QueryLogs(ctx, q)
	default:
		return c.signoz.QueryLogs(ctx, q)
	}
}

func (c *Client) DisplayName() string {
	switch c.kind {
	case config.BackendClickHouse:
		return c.clickhouse.DisplayName()
	default:
		return c.signoz.DisplayName()
	}
}

// Close releases connections held by the backend.
func (c *Client) Close() error {
	if c.kind == config.BackendClickHouse {
		return c.clickhouse.Close()
	}
	return nil
}
