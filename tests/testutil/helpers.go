package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"otelbridge/internal/clickhouse"
	"otelbridge/internal/config"
	"otelbridge/internal/models"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// CreateTestConfig returns a host configuration pointing at a local ClickHouse
func CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	chCfg := config.DefaultClickHouseConfig()
	// Use 127.0.0.1 instead of localhost to force IPv4
	chCfg.Addresses = []string{"127.0.0.1:9000"}
	chCfg.Database = "otel"
	chCfg.TimeoutSecs = 10
	backend := config.NewClickHouseBackend(chCfg)
	cfg.Backend = &backend
	return cfg
}

// CreateTestClickHouseBackend creates a ClickHouse backend for testing.
// Skips the test if ClickHouse is not reachable.
func CreateTestClickHouseBackend(t testing.TB) *clickhouse.Backend {
	t.Helper()

	cfg := CreateTestConfig()
	b, err := clickhouse.New(*cfg.Backend.ClickHouse)
	if err != nil {
		t.Fatalf("Failed to create ClickHouse backend: %v", err)
	}
	if err := b.HealthCheck(context.Background()); err != nil {
		b.Close()
		t.Skipf("ClickHouse not available: %v", err)
	}
	return b
}

// OpenClickHouse opens a raw driver connection for seeding tables.
// Skips the test if ClickHouse is not reachable.
func OpenClickHouse(t testing.TB) driver.Conn {
	t.Helper()

	cfg := CreateTestConfig().Backend.ClickHouse
	conn, err := ch.Open(&ch.Options{
		Addr: cfg.Addresses,
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		t.Skipf("ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS otel_traces (
		timestamp DateTime64(9),
		trace_id String,
		span_id String,
		parent_span_id String,
		span_name LowCardinality(String),
		duration_ns UInt64,
		status_code LowCardinality(String),
		service_name LowCardinality(String),
		attributes Map(String, String)
	) ENGINE = MergeTree ORDER BY (service_name, timestamp)`,
	`CREATE TABLE IF NOT EXISTS otel_logs (
		timestamp DateTime64(9),
		severity_text LowCardinality(String),
		body String,
		service_name LowCardinality(String),
		attributes Map(String, String)
	) ENGINE = MergeTree ORDER BY (service_name, timestamp)`,
	`CREATE TABLE IF NOT EXISTS otel_metrics (
		timestamp DateTime64(9),
		metric_name LowCardinality(String),
		service_name LowCardinality(String),
		value Float64,
		attributes Map(String, String)
	) ENGINE = MergeTree ORDER BY (metric_name, service_name, timestamp)`,
}

// CreateSchema creates the tables the ClickHouse backend reads
func CreateSchema(t testing.TB, conn driver.Conn) {
	t.Helper()
	for _, stmt := range schema {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("Failed to create schema: %v", err)
		}
	}
}

// InsertSpans writes spans into otel_traces
func InsertSpans(t testing.TB, conn driver.Conn, spans ...models.Span) {
	t.Helper()

	ctx := context.Background()
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO otel_traces")
	if err != nil {
		t.Fatalf("Failed to prepare span batch: %v", err)
	}
	for _, s := range spans {
		parent := ""
		if s.ParentSpanID != nil {
			parent = *s.ParentSpanID
		}
		status := "STATUS_CODE_UNSET"
		switch s.StatusCode {
		case 1:
			status = "STATUS_CODE_OK"
		case 2:
			status = "STATUS_CODE_ERROR"
		}
		if err := batch.Append(
			time.UnixMilli(int64(s.StartTimeMs)).UTC(), s.TraceID, s.SpanID, parent, s.OperationName,
			s.DurationMs*1_000_000, status, s.ServiceName, s.Attributes,
		); err != nil {
			t.Fatalf("Failed to append span: %v", err)
		}
	}
	if err := batch.Send(); err != nil {
		t.Fatalf("Failed to insert spans: %v", err)
	}
}

// InsertLogs writes log entries into otel_logs
func InsertLogs(t testing.TB, conn driver.Conn, logs ...models.LogEntry) {
	t.Helper()

	ctx := context.Background()
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO otel_logs")
	if err != nil {
		t.Fatalf("Failed to prepare log batch: %v", err)
	}
	for _, l := range logs {
		if err := batch.Append(
			time.UnixMilli(int64(l.TimestampMs)).UTC(), l.Severity, l.Body, l.ServiceName, l.Attributes,
		); err != nil {
			t.Fatalf("Failed to append log: %v", err)
		}
	}
	if err := batch.Send(); err != nil {
		t.Fatalf("Failed to insert logs: %v", err)
	}
}

// InsertMetricSeries writes every point of every series into otel_metrics
func InsertMetricSeries(t testing.TB, conn driver.Conn, series ...models.MetricSeries) {
	t.Helper()

	ctx := context.Background()
	batch, err := conn.PrepareBatch(ctx, "INSERT INTO otel_metrics")
	if err != nil {
		t.Fatalf("Failed to prepare metric batch: %v", err)
	}
	for _, s := range series {
		attrs := map[string]string{}
		for k, v := range s.Labels {
			attrs[k] = v
		}
		for _, p := range s.Points {
			if err := batch.Append(
				time.UnixMilli(int64(p.TimestampMs)).UTC(), s.MetricName, s.ServiceName, p.Value, attrs,
			); err != nil {
				t.Fatalf("Failed to append metric: %v", err)
			}
		}
	}
	if err := batch.Send(); err != nil {
		t.Fatalf("Failed to insert metrics: %v", err)
	}
}

// CleanupTestData truncates the otel_* tables
func CleanupTestData(t testing.TB, conn driver.Conn) {
	t.Helper()

	ctx := context.Background()
	queries := []string{
		"TRUNCATE TABLE IF EXISTS otel_metrics",
		"TRUNCATE TABLE IF EXISTS otel_logs",
		"TRUNCATE TABLE IF EXISTS otel_traces",
	}

	for _, query := range queries {
		if err := conn.Exec(ctx, query); err != nil {
			t.Logf("Cleanup warning: %v", err)
		}
	}
}

// CreateTestSpan creates a span that started ageMs before now
func CreateTestSpan(serviceName, operation string, durationMs uint64, ageMs uint64) models.Span {
	return models.Span{
		TraceID:       generateTraceID(),
		SpanID:        generateSpanID(),
		ServiceName:   serviceName,
		OperationName: operation,
		StartTimeMs:   NowMs() - ageMs,
		DurationMs:    durationMs,
		StatusCode:    1,
		Attributes:    map[string]string{"test": "true"},
	}
}

// CreateTestSpanWithError creates a span with error status
func CreateTestSpanWithError(serviceName, operation string) models.Span {
	span := CreateTestSpan(serviceName, operation, 100, 1000)
	span.StatusCode = 2
	span.HasError = true
	return span
}

// CreateTestLog creates a log entry stamped ageMs before now
func CreateTestLog(serviceName, body, severity string, ageMs uint64) models.LogEntry {
	return models.LogEntry{
		TimestampMs: NowMs() - ageMs,
		Severity:    severity,
		Body:        body,
		ServiceName: serviceName,
		Attributes:  map[string]string{"test": "true"},
	}
}

// CreateTestSeries creates a series with one point per value, one step apart,
// ending at the start of the current minute
func CreateTestSeries(serviceName, metricName string, step time.Duration, values ...float64) models.MetricSeries {
	end := time.Now().Truncate(time.Minute)
	points := make([]models.MetricPoint, 0, len(values))
	for i, v := range values {
		ts := end.Add(-time.Duration(len(values)-1-i) * step)
		points = append(points, models.MetricPoint{TimestampMs: uint64(ts.UnixMilli()), Value: v})
	}
	return models.MetricSeries{
		MetricName:  metricName,
		ServiceName: serviceName,
		Labels:      map[string]string{},
		Points:      points,
	}
}

// NowMs is the current time in epoch milliseconds
func NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t testing.TB, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for condition: %s", message)
		}

		<-ticker.C
	}
}

var idCounter atomic.Uint64

// Helper functions for ID generation
func generateTraceID() string {
	return fmt.Sprintf("%032x", idCounter.Add(1)+uint64(time.Now().UnixNano()))
}

func generateSpanID() string {
	return fmt.Sprintf("%016x", idCounter.Add(1)+uint64(time.Now().UnixNano()))
}

// ISO8601 formats epoch milliseconds the way SigNoz renders row timestamps
func ISO8601(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02T15:04:05.000Z")
}

// AssertSpansEqual checks the identifying fields of two spans
func AssertSpansEqual(t testing.TB, expected, actual models.Span) {
	t.Helper()

	if expected.TraceID != actual.TraceID {
		t.Errorf("TraceID: expected %s, got %s", expected.TraceID, actual.TraceID)
	}
	if expected.OperationName != actual.OperationName {
		t.Errorf("OperationName: expected %s, got %s", expected.OperationName, actual.OperationName)
	}
	if expected.ServiceName != actual.ServiceName {
		t.Errorf("ServiceName: expected %s, got %s", expected.ServiceName, actual.ServiceName)
	}
	if expected.StartTimeMs != actual.StartTimeMs {
		t.Errorf("StartTimeMs: expected %d, got %d", expected.StartTimeMs, actual.StartTimeMs)
	}
	if expected.DurationMs != actual.DurationMs {
		t.Errorf("DurationMs: expected %d, got %d", expected.DurationMs, actual.DurationMs)
	}
	if expected.HasError != actual.HasError {
		t.Errorf("HasError: expected %v, got %v", expected.HasError, actual.HasError)
	}
}

// AssertLogsEqual checks the content fields of two log entries
func AssertLogsEqual(t testing.TB, expected, actual models.LogEntry) {
	t.Helper()

	if expected.Body != actual.Body {
		t.Errorf("Body: expected %s, got %s", expected.Body, actual.Body)
	}
	if expected.Severity != actual.Severity {
		t.Errorf("Severity: expected %s, got %s", expected.Severity, actual.Severity)
	}
	if expected.ServiceName != actual.ServiceName {
		t.Errorf("ServiceName: expected %s, got %s", expected.ServiceName, actual.ServiceName)
	}
	if expected.TimestampMs != actual.TimestampMs {
		t.Errorf("TimestampMs: expected %d, got %d", expected.TimestampMs, actual.TimestampMs)
	}
}

// AssertSeriesEqual checks names and points of two metric series
func AssertSeriesEqual(t testing.TB, expected, actual models.MetricSeries) {
	t.Helper()

	if expected.MetricName != actual.MetricName {
		t.Errorf("MetricName: expected %s, got %s", expected.MetricName, actual.MetricName)
	}
	if expected.ServiceName != actual.ServiceName {
		t.Errorf("ServiceName: expected %s, got %s", expected.ServiceName, actual.ServiceName)
	}
	if len(expected.Points) != len(actual.Points) {
		t.Fatalf("Points: expected %d, got %d", len(expected.Points), len(actual.Points))
	}
	for i := range expected.Points {
		if expected.Points[i] != actual.Points[i] {
			t.Errorf("Point %d: expected %+v, got %+v", i, expected.Points[i], actual.Points[i])
		}
	}
}
