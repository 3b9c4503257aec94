package clickhouse

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"otelbridge/internal/models"
	"otelbridge/internal/telemetry"
)

// Query defaults, matching the HTTP backend.
const (
	defaultLimit       uint32 = 100
	defaultStepSeconds uint64 = 60
	defaultAggregation        = "avg"
)

// Rollup tables hold pre-aggregated metrics for older ranges.
const (
	metricsTable    = "otel_metrics"
	metricsTable5m  = "otel_metrics_5m"
	metricsTable1h  = "otel_metrics_1h"
	rollup5mHorizon = 30 * 24 * time.Hour
	rollup1hHorizon = 90 * 24 * time.Hour
)

var attributeKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-/]*$`)

// sqlQuery is a statement with positional arguments.
type sqlQuery struct {
	SQL  string
	Args []interface{}
}

func resolveRange(tr *models.TimeRange, now time.Time) (time.Time, time.Time) {
	r := models.LastHour(now)
	if tr != nil {
		r = *tr
	}
	return time.UnixMilli(int64(r.StartMs)).UTC(), time.UnixMilli(int64(r.EndMs)).UTC()
}

func page(limit, offset *uint32) (uint32, uint32) {
	l, o := defaultLimit, uint32(0)
	if limit != nil {
		l = *limit
	}
	if offset != nil {
		o = *offset
	}
	return l, o
}

// attributeFilters adds one attributes[key] = value clause per entry in key order.
func attributeFilters(m map[string]string, where []string, args []interface{}) ([]string, []interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		where = append(where, "attributes[?] = ?")
		args = append(args, k, m[k])
	}
	return where, args
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildTraceSQL expects durations already checked by telemetry.ValidateTraceQuery.
func buildTraceSQL(q *models.TraceQuery, now time.Time) sqlQuery {
	start, end := resolveRange(q.TimeRange, now)
	where := []string{"timestamp >= ?", "timestamp <= ?"}
	args := []interface{}{start, end}

	if q.ServiceName != nil {
		where = append(where, "service_name = ?")
		args = append(args, *q.ServiceName)
	}
	if q.OperationName != nil {
		where = append(where, "span_name = ?")
		args = append(args, *q.OperationName)
	}
	if q.MinDurationMs != nil {
		where = append(where, "duration_ns >= ?")
		args = append(args, *q.MinDurationMs*1_000_000)
	}
	if q.MaxDurationMs != nil {
		where = append(where, "duration_ns <= ?")
		args = append(args, *q.MaxDurationMs*1_000_000)
	}
	where, args = attributeFilters(q.Tags, where, args)

	limit, offset := page(q.Limit, q.Offset)
	sql := fmt.Sprintf(`
		SELECT
			timestamp, trace_id, span_id, parent_span_id, span_name,
			duration_ns, status_code, service_name, attributes
		FROM otel_traces
		WHERE %s
		ORDER BY timestamp DESC LIMIT %d OFFSET %d`,
		strings.Join(where, " AND "), limit, offset)

	return sqlQuery{SQL: sql, Args: args}
}

func buildLogSQL(q *models.LogQuery, now time.Time) sqlQuery {
	start, end := resolveRange(q.TimeRange, now)
	where := []string{"timestamp >= ?", "timestamp <= ?"}
	args := []interface{}{start, end}

	if q.ServiceName != nil {
		where = append(where, "service_name = ?")
		args = append(args, *q.ServiceName)
	}
	if q.Severity != nil {
		where = append(where, "severity_text = ?")
		args = append(args, *q.Severity)
	}
	if q.BodyContains != nil {
		where = append(where, "body LIKE ?")
		args = append(args, "%"+escapeLike(*q.BodyContains)+"%")
	}
	where, args = attributeFilters(q.Attributes, where, args)

	limit, offset := page(q.Limit, q.Offset)
	sql := fmt.Sprintf(`
		SELECT
			timestamp, severity_text, body, service_name, attributes
		FROM otel_logs
		WHERE %s
		ORDER BY timestamp DESC LIMIT %d OFFSET %d`,
		strings.Join(where, " AND "), limit, offset)

	return sqlQuery{SQL: sql, Args: args}
}

// metricsSource picks the raw table or a rollup based on how old the range
// start is, and the aggregate expression that fits that table.
func metricsSource(aggregation string, start, now time.Time) (table, expr string) {
	age := now.Sub(start)
	switch {
	case age > rollup1hHorizon:
		table = metricsTable1h
	case age > rollup5mHorizon:
		table = metricsTable5m
	default:
		return metricsTable, aggregation + "(value)"
	}

	switch aggregation {
	case "avg":
		expr = "avg(value_avg)"
	case "min":
		expr = "min(value_min)"
	case "max":
		expr = "max(value_max)"
	case "sum":
		expr = "sum(value_sum)"
	case "count":
		expr = "sum(value_count)"
	}
	return table, expr
}

func buildMetricSQL(q *models.MetricQuery, now time.Time) (sqlQuery, error) {
	if q.MetricName == nil || *q.MetricName == "" {
		return sqlQuery{}, telemetry.InvalidQuery("metric_name is required")
	}
	aggregation := defaultAggregation
	if q.Aggregation != nil {
		aggregation = strings.ToLower(*q.Aggregation)
	}
	switch aggregation {
	case "avg", "min", "max", "sum", "count":
	default:
		return sqlQuery{}, telemetry.InvalidQuery("unsupported aggregation %q", aggregation)
	}
	step := defaultStepSeconds
	if q.StepSeconds != nil {
		step = *q.StepSeconds
	}
	if step == 0 {
		return sqlQuery{}, telemetry.InvalidQuery("step_seconds must be positive")
	}

	start, end := resolveRange(q.TimeRange, now)
	table, expr := metricsSource(aggregation, start, now)

	// Group-by columns come first in SELECT, so their args lead.
	var args []interface{}
	groupCols := make([]string, 0, len(q.GroupBy))
	for i, key := range q.GroupBy {
		if !attributeKeyPattern.MatchString(key) {
			return sqlQuery{}, telemetry.InvalidQuery("invalid group_by key %q", key)
		}
		groupCols = append(groupCols, fmt.Sprintf("attributes[?] AS g%d", i))
		args = append(args, key)
	}

	where := []string{"metric_name = ?", "timestamp >= ?", "timestamp <= ?"}
	args = append(args, *q.MetricName, start, end)
	if q.ServiceName != nil {
		where = append(where, "service_name = ?")
		args = append(args, *q.ServiceName)
	}
	where, args = attributeFilters(q.Filters, where, args)

	keys := []string{"metric_name", "service_name"}
	for i := range q.GroupBy {
		keys = append(keys, fmt.Sprintf("g%d", i))
	}

	selectCols := append([]string{
		fmt.Sprintf("toStartOfInterval(timestamp, INTERVAL %d SECOND) AS ts", step),
		"metric_name",
		"service_name",
	}, groupCols...)
	selectCols = append(selectCols, expr+" AS value")

	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		GROUP BY %s, ts
		ORDER BY %s, ts`,
		strings.Join(selectCols, ", "), table,
		strings.Join(where, " AND "),
		strings.Join(keys, ", "), strings.Join(keys, ", "))

	return sqlQuery{SQL: sql, Args: args}, nil
}

const servicesSQL = `
		SELECT service_name, uniqExact(span_name) AS num_operations
		FROM otel_traces
		GROUP BY service_name
		ORDER BY service_name`

// statusCode maps the stored status string onto the numeric OTLP code.
func statusCode(s string) (int32, bool) {
	switch strings.TrimPrefix(strings.ToUpper(s), "STATUS_CODE_") {
	case "OK":
		return 1, false
	case "ERROR":
		return 2, true
	default:
		return 0, false
	}
}
