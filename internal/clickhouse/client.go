package clickhouse

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"
	"time"

	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/telemetry"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Backend reads spans, logs and metrics straight from the otel_* tables
type Backend struct {
	conn   driver.Conn
	cfg    config.ClickHouseConfig
	logger *slog.Logger
	now    func() time.Time
}

var _ telemetry.Backend = (*Backend)(nil)

// Option configures a Backend
type Option func(*Backend)

// WithLogger sets the logger used for scan diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithConn replaces the driver connection, mainly for tests
func WithConn(conn driver.Conn) Option {
	return func(b *Backend) {
		b.conn = conn
	}
}

func compressionMethod(name string) clickhouse.CompressionMethod {
	switch strings.ToLower(name) {
	case "lz4":
		return clickhouse.CompressionLZ4
	case "none", "":
		return clickhouse.CompressionNone
	default:
		return clickhouse.CompressionZSTD
	}
}

// New validates cfg and opens a connection pool. No connection is dialed
// until the first query.
func New(cfg config.ClickHouseConfig, opts ...Option) (*Backend, error) {
	if len(cfg.Addresses) == 0 {
		return nil, telemetry.ConnectionFailed("clickhouse addresses must not be empty")
	}

	b := &Backend{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.conn != nil {
		return b, nil
	}

	chOpts := &clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: compressionMethod(cfg.Compression),
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.TimeoutSecs),
		},
	}

	// Only configure TLS if explicitly needed
	if cfg.TLSEnabled {
		chOpts.TLS = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, telemetry.ConnectionFailed("failed to open ClickHouse connection: %v", err)
	}
	b.conn = conn
	return b, nil
}

// Close closes the ClickHouse connection
func (b *Backend) Close() error {
	return b.conn.Close()
}

// DisplayName returns "ClickHouse @ <addr1,addr2>".
func (b *Backend) DisplayName() string {
	return "ClickHouse @ " + strings.Join(b.cfg.Addresses, ",")
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.TimeoutSecs == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(b.cfg.TimeoutSecs)*time.Second)
}

// HealthCheck pings the server
func (b *Backend) HealthCheck(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.conn.Ping(ctx); err != nil {
		return telemetry.HTTPError(err)
	}
	return nil
}

// ListServices returns every service with spans and its distinct operation count
func (b *Backend) ListServices(ctx context.Context) ([]models.ServiceInfo, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	rows, err := b.conn.Query(ctx, servicesSQL)
	if err != nil {
		return nil, telemetry.HTTPError(err)
	}
	defer rows.Close()

	services := []models.ServiceInfo{}
	for rows.Next() {
		var s models.ServiceInfo
		if err := rows.Scan(&s.Name, &s.NumOperations); err != nil {
			b.logger.Warn("error scanning service", "error", err)
			continue
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, telemetry.HTTPError(err)
	}
	return services, nil
}

// QueryTraces reads spans newest first
func (b *Backend) QueryTraces(ctx context.Context, q *models.TraceQuery) (models.QueryResult[models.Span], error) {
	if err := telemetry.ValidateTraceQuery(q); err != nil {
		return models.QueryResult[models.Span]{}, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	query := buildTraceSQL(q, b.now())
	rows, err := b.conn.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return models.QueryResult[models.Span]{}, telemetry.HTTPError(err)
	}
	defer rows.Close()

	spans := []models.Span{}
	for rows.Next() {
		var (
			ts         time.Time
			span       models.Span
			parent     string
			durationNs uint64
			status     string
			attrs      map[string]string
		)
		if err := rows.Scan(
			&ts, &span.TraceID, &span.SpanID, &parent, &span.OperationName,
			&durationNs, &status, &span.ServiceName, &attrs,
		); err != nil {
			b.logger.Warn("error scanning span", "error", err)
			continue
		}
		span.StartTimeMs = uint64(ts.UnixMilli())
		span.DurationMs = durationNs / 1_000_000
		span.StatusCode, span.HasError = statusCode(status)
		if parent != "" {
			span.ParentSpanID = &parent
		}
		if attrs == nil {
			attrs = map[string]string{}
		}
		span.Attributes = attrs
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return models.QueryResult[models.Span]{}, telemetry.HTTPError(err)
	}
	return models.NewPage(spans), nil
}

// QueryLogs reads log records newest first
func (b *Backend) QueryLogs(ctx context.Context, q *models.LogQuery) (models.QueryResult[models.LogEntry], error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	query := buildLogSQL(q, b.now())
	rows, err := b.conn.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return models.QueryResult[models.LogEntry]{}, telemetry.HTTPError(err)
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var (
			ts    time.Time
			entry models.LogEntry
			attrs map[string]string
		)
		if err := rows.Scan(&ts, &entry.Severity, &entry.Body, &entry.ServiceName, &attrs); err != nil {
			b.logger.Warn("error scanning log", "error", err)
			continue
		}
		entry.TimestampMs = uint64(ts.UnixMilli())
		if attrs == nil {
			attrs = map[string]string{}
		}
		entry.Attributes = attrs
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return models.QueryResult[models.LogEntry]{}, telemetry.HTTPError(err)
	}
	return models.NewPage(logs), nil
}

// QueryMetrics buckets samples into step-sized intervals, one series per
// metric, service and group-by value combination
func (b *Backend) QueryMetrics(ctx context.Context, q *models.MetricQuery) (models.QueryResult[models.MetricSeries], error) {
	query, err := buildMetricSQL(q, b.now())
	if err != nil {
		return models.QueryResult[models.MetricSeries]{}, err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	rows, err := b.conn.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return models.QueryResult[models.MetricSeries]{}, telemetry.HTTPError(err)
	}
	defer rows.Close()

	acc := newSeriesAccumulator(q.GroupBy)
	for rows.Next() {
		var (
			ts          time.Time
			metricName  string
			serviceName string
			value       float64
		)
		groups := make([]string, len(q.GroupBy))
		dest := []interface{}{&ts, &metricName, &serviceName}
		for i := range groups {
			dest = append(dest, &groups[i])
		}
		dest = append(dest, &value)

		if err := rows.Scan(dest...); err != nil {
			b.logger.Warn("error scanning metric", "error", err)
			continue
		}
		acc.add(metricName, serviceName, groups, models.MetricPoint{
			TimestampMs: uint64(ts.UnixMilli()),
			Value:       value,
		})
	}
	if err := rows.Err(); err != nil {
		return models.QueryResult[models.MetricSeries]{}, telemetry.HTTPError(err)
	}
	return models.NewPage(acc.series), nil
}

// seriesAccumulator groups rows into series in first-seen order.
type seriesAccumulator struct {
	groupBy []string
	index   map[string]int
	series  []models.MetricSeries
}

func newSeriesAccumulator(groupBy []string) *seriesAccumulator {
	return &seriesAccumulator{groupBy: groupBy, index: map[string]int{}}
}

func (a *seriesAccumulator) add(metricName, serviceName string, groups []string, p models.MetricPoint) {
	key := metricName + "\x00" + serviceName + "\x00" + strings.Join(groups, "\x00")
	i, ok := a.index[key]
	if !ok {
		labels := map[string]string{
			"__name__":     metricName,
			"service_name": serviceName,
		}
		for j, g := range a.groupBy {
			labels[g] = groups[j]
		}
		a.series = append(a.series, models.MetricSeries{
			MetricName:  metricName,
			ServiceName: serviceName,
			Labels:      labels,
		})
		i = len(a.series) - 1
		a.index[key] = i
	}
	a.series[i].Points = append(a.series[i].Points, p)
}
