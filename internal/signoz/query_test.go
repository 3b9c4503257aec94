package signoz

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otelbridge/internal/models"
)

var fixedRange = &models.TimeRange{StartMs: 1000, EndMs: 2000}

// payloadMap marshals a request the way the client sends it.
func payloadMap(t *testing.T, req QueryRangeRequest) map[string]any {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func builderA(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	cq := m["compositeQuery"].(map[string]any)
	return cq["builderQueries"].(map[string]any)["A"].(map[string]any)
}

func filterItems(t *testing.T, m map[string]any) []any {
	t.Helper()
	return builderA(t, m)["filters"].(map[string]any)["items"].([]any)
}

func TestBuildTraceQueryMinimal(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	m := payloadMap(t, BuildTraceQueryAt(&models.TraceQuery{}, now))

	cq := m["compositeQuery"].(map[string]any)
	assert.Equal(t, "builder", cq["queryType"])
	assert.Equal(t, "list", cq["panelType"])

	a := builderA(t, m)
	assert.Equal(t, "traces", a["dataSource"])
	assert.Equal(t, "noop", a["aggregateOperator"])
	assert.Equal(t, map[string]any{}, a["aggregateAttribute"])
	assert.EqualValues(t, 100, a["limit"])
	assert.EqualValues(t, 0, a["offset"])
	assert.Empty(t, filterItems(t, m))
	assert.Len(t, a["selectColumns"], 8)
	assert.NotContains(t, m, "step")

	req := BuildTraceQueryAt(&models.TraceQuery{}, now)
	assert.Equal(t, uint64(1_700_000_000_000)*1_000_000, req.End)
	assert.Equal(t, uint64(1_700_000_000_000-3_600_000)*1_000_000, req.Start)
}

func TestBuildTraceQueryWithFilters(t *testing.T) {
	q := &models.TraceQuery{
		ServiceName:   models.Ptr("my-service"),
		OperationName: models.Ptr("GET /api"),
		MinDurationMs: models.Ptr(uint64(100)),
		TimeRange:     fixedRange,
		Limit:         models.Ptr(uint32(50)),
	}

	req := BuildTraceQuery(q)
	assert.Equal(t, uint64(1000*1_000_000), req.Start)
	assert.Equal(t, uint64(2000*1_000_000), req.End)

	items := req.CompositeQuery.BuilderQueries["A"].Filters.Items
	require.Len(t, items, 3)
	assert.Equal(t, "serviceName", items[0].Key.Key)
	assert.Equal(t, "name", items[1].Key.Key)
	assert.Equal(t, "durationNano", items[2].Key.Key)
	assert.Equal(t, ">=", items[2].Op)
	assert.Equal(t, uint64(100_000_000), items[2].Value)
	assert.Equal(t, uint32(50), *req.CompositeQuery.BuilderQueries["A"].Limit)
}

func TestBuildTraceQueryFilterCount(t *testing.T) {
	q := &models.TraceQuery{
		ServiceName:   models.Ptr("svc"),
		MaxDurationMs: models.Ptr(uint64(5)),
		TimeRange:     fixedRange,
		Tags:          map[string]string{"z.key": "1", "http.method": "POST", "a.key": "2"},
	}

	items := BuildTraceQuery(q).CompositeQuery.BuilderQueries["A"].Filters.Items
	require.Len(t, items, 2+3)

	assert.Equal(t, "<=", items[1].Op)
	assert.Equal(t, uint64(5_000_000), items[1].Value)

	var tagKeys []string
	for _, f := range items[2:] {
		assert.False(t, f.Key.IsColumn)
		assert.Equal(t, "=", f.Op)
		tagKeys = append(tagKeys, f.Key.Key)
	}
	assert.Equal(t, []string{"a.key", "http.method", "z.key"}, tagKeys)
}

func TestBuildTraceQueryDoesNotMutate(t *testing.T) {
	q := &models.TraceQuery{Tags: map[string]string{"k": "v"}}
	BuildTraceQuery(q)

	assert.Nil(t, q.TimeRange)
	assert.Nil(t, q.Limit)
	assert.Equal(t, map[string]string{"k": "v"}, q.Tags)
}

func TestBuildLogQueryMinimal(t *testing.T) {
	m := payloadMap(t, BuildLogQueryAt(&models.LogQuery{}, time.UnixMilli(1_700_000_000_000)))

	a := builderA(t, m)
	assert.Equal(t, "logs", a["dataSource"])
	assert.EqualValues(t, 100, a["limit"])
	assert.Equal(t, []any{map[string]any{"columnName": "timestamp", "order": "desc"}}, a["orderBy"])
	assert.Len(t, a["selectColumns"], 3)
}

func TestBuildLogQueryWithFilters(t *testing.T) {
	q := &models.LogQuery{
		ServiceName:  models.Ptr("web-app"),
		Severity:     models.Ptr("ERROR"),
		BodyContains: models.Ptr("timeout"),
		TimeRange:    fixedRange,
		Offset:       models.Ptr(uint32(20)),
		Attributes:   map[string]string{"k8s.pod": "web-1"},
	}

	req := BuildLogQuery(q)
	items := req.CompositeQuery.BuilderQueries["A"].Filters.Items
	require.Len(t, items, 4)

	assert.Equal(t, "service_name", items[0].Key.Key)
	assert.Equal(t, "resource", items[0].Key.Type)
	assert.True(t, items[0].Key.IsColumn)
	assert.Equal(t, "severity_text", items[1].Key.Key)
	assert.Equal(t, "contains", items[2].Op)
	assert.Equal(t, "timeout", items[2].Value)
	assert.False(t, items[3].Key.IsColumn)
	assert.Equal(t, uint32(20), *req.CompositeQuery.BuilderQueries["A"].Offset)
	assert.Equal(t, uint64(2000*1_000_000), req.End)
}

func TestBuildMetricQueryMinimal(t *testing.T) {
	m := payloadMap(t, BuildMetricQueryAt(&models.MetricQuery{}, time.UnixMilli(1_700_000_000_000)))

	cq := m["compositeQuery"].(map[string]any)
	assert.Equal(t, "time_series", cq["panelType"])
	assert.EqualValues(t, 60, m["step"])

	a := builderA(t, m)
	assert.Equal(t, "metrics", a["dataSource"])
	assert.Equal(t, "avg", a["aggregateOperator"])
	assert.Equal(t, []any{}, a["orderBy"])
	assert.NotContains(t, a, "limit")

	attr := a["aggregateAttribute"].(map[string]any)
	assert.Equal(t, "signoz_calls_total", attr["key"])
	assert.Equal(t, "Sum", attr["type"])
	assert.Equal(t, true, attr["isMonotonic"])
}

func TestBuildMetricQueryWithOptions(t *testing.T) {
	q := &models.MetricQuery{
		MetricName:  models.Ptr("http_requests_total"),
		ServiceName: models.Ptr("gateway"),
		StepSeconds: models.Ptr(uint64(300)),
		Aggregation: models.Ptr("sum"),
		GroupBy:     []string{"status_code"},
		Filters:     map[string]string{"region": "eu", "env": "prod"},
		TimeRange:   fixedRange,
	}

	req := BuildMetricQuery(q)
	require.NotNil(t, req.Step)
	assert.Equal(t, uint64(300), *req.Step)
	assert.Equal(t, uint64(1000*1_000_000), req.Start)

	a := req.CompositeQuery.BuilderQueries["A"]
	assert.Equal(t, "sum", a.AggregateOperator)
	assert.Equal(t, "http_requests_total", a.AggregateAttribute.Key)

	require.Len(t, a.GroupBy, 1)
	assert.Equal(t, "status_code", a.GroupBy[0].Key)
	assert.False(t, a.GroupBy[0].IsColumn)

	require.Len(t, a.Filters.Items, 3)
	assert.Equal(t, "service_name", a.Filters.Items[0].Key.Key)
	assert.False(t, a.Filters.Items[0].Key.IsColumn)
	assert.Equal(t, "env", a.Filters.Items[1].Key.Key)
	assert.Equal(t, "region", a.Filters.Items[2].Key.Key)
}
