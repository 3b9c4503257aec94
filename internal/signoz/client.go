package signoz

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/telemetry"
)

const (
	healthPath     = "/api/v1/health"
	servicesPath   = "/api/v1/services"
	queryRangePath = "/api/v3/query_range"
	loginPath      = "/api/v1/login"

	// maxErrorBody caps how much of a failed response is kept in APIError.
	maxErrorBody = 64 << 10
)

// Backend queries a SigNoz instance over its HTTP API.
type Backend struct {
	cfg    config.SigNozConfig
	client *http.Client
	logger *slog.Logger
}

var _ telemetry.Backend = (*Backend)(nil)

type options struct {
	logger    *slog.Logger
	transport http.RoundTripper
	timeout   time.Duration
}

// Option configures a Backend or a Login call.
type Option func(*options)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransport replaces the underlying round tripper. The otelhttp
// wrapper is still applied on top.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithTimeout overrides the request timeout; New uses TimeoutSecs by default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func buildOptions(defaultTimeout time.Duration, opts []Option) options {
	o := options{
		logger:    slog.Default(),
		transport: http.DefaultTransport,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New validates cfg and builds a client whose every request carries
// Content-Type: application/json and the configured auth header.
func New(cfg config.SigNozConfig, opts ...Option) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, telemetry.ConnectionFailed("base_url must not be empty")
	}
	name, value, err := cfg.Auth.HeaderField()
	if err != nil {
		return nil, err
	}

	o := buildOptions(time.Duration(cfg.TimeoutSecs)*time.Second, opts)

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if name != "" {
		headers.Set(name, value)
	}

	return &Backend{
		cfg:    cfg,
		client: newHTTPClient(o, headers),
		logger: o.logger,
	}, nil
}

func newHTTPClient(o options, headers http.Header) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			headers: headers,
			next:    otelhttp.NewTransport(o.transport),
		},
		Timeout: o.timeout,
	}
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	headers http.Header
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header[k] = v
	}
	return t.next.RoundTrip(req)
}

// DisplayName returns "SigNoz @ <base_url>".
func (b *Backend) DisplayName() string {
	return "SigNoz @ " + b.cfg.BaseURL
}

func (b *Backend) url(path string) string {
	return joinURL(b.cfg.BaseURL, path)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// do sends a request and returns the body of a 2xx response.
func do(ctx context.Context, client *http.Client, method, url string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, telemetry.DeserializationError(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, telemetry.HTTPError(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, telemetry.HTTPError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// The body is kept for callers that report it; Error() shows only the status.
			authErr := telemetry.AuthenticationFailed(resp.StatusCode)
			authErr.Message = string(text)
			return nil, authErr
		}
		return nil, telemetry.APIError(resp.StatusCode, string(text))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, telemetry.HTTPError(err)
	}
	return data, nil
}

// HealthCheck succeeds on any 2xx from the health endpoint.
func (b *Backend) HealthCheck(ctx context.Context) error {
	_, err := do(ctx, b.client, http.MethodGet, b.url(healthPath), nil)
	return err
}

// ListServices returns the services SigNoz has seen spans from.
func (b *Backend) ListServices(ctx context.Context) ([]models.ServiceInfo, error) {
	data, err := do(ctx, b.client, http.MethodGet, b.url(servicesPath), nil)
	if err != nil {
		return nil, err
	}

	var resp ServicesResponse
	if err := decodeJSON(bytes.NewReader(data), &resp); err != nil {
		return nil, err
	}

	services := make([]models.ServiceInfo, 0, len(resp.Data))
	for _, s := range resp.Data {
		services = append(services, models.ServiceInfo{Name: s.ServiceName, NumOperations: s.NumOperations})
	}
	return services, nil
}

func (b *Backend) sendQuery(ctx context.Context, payload QueryRangeRequest) (*QueryRangeResponse, error) {
	data, err := do(ctx, b.client, http.MethodPost, b.url(queryRangePath), payload)
	if err != nil {
		return nil, err
	}
	return DecodeQueryRange(bytes.NewReader(data))
}

func (b *Backend) QueryTraces(ctx context.Context, q *models.TraceQuery) (models.QueryResult[models.Span], error) {
	if err := telemetry.ValidateTraceQuery(q); err != nil {
		return models.QueryResult[models.Span]{}, err
	}
	resp, err := b.sendQuery(ctx, BuildTraceQuery(q))
	if err != nil {
		return models.QueryResult[models.Span]{}, err
	}
	spans := ParseSpans(resp)
	b.logger.Debug("signoz trace query", "base_url", b.cfg.BaseURL, "spans", len(spans))
	return models.NewPage(spans), nil
}

func (b *Backend) QueryMetrics(ctx context.Context, q *models.MetricQuery) (models.QueryResult[models.MetricSeries], error) {
	resp, err := b.sendQuery(ctx, BuildMetricQuery(q))
	if err != nil {
		return models.QueryResult[models.MetricSeries]{}, err
	}
	series := ParseSeries(resp)
	b.logger.Debug("signoz metric query", "base_url", b.cfg.BaseURL, "series", len(series))
	return models.NewPage(series), nil
}

func (b *Backend) QueryLogs(ctx context.Context, q *models.LogQuery) (models.QueryResult[models.LogEntry], error) {
	resp, err := b.sendQuery(ctx, BuildLogQuery(q))
	if err != nil {
		return models.QueryResult[models.LogEntry]{}, err
	}
	logs := ParseLogs(resp)
	b.logger.Debug("signoz log query", "base_url", b.cfg.BaseURL, "logs", len(logs))
	return models.NewPage(logs), nil
}
