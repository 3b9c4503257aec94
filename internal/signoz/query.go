package signoz

import (
	"sort"
	"time"

	"otelbridge/internal/models"
)

// Query defaults applied when a field is left unset.
const (
	DefaultLimit       uint32 = 100
	DefaultStepSeconds uint64 = 60
	DefaultAggregation        = "avg"
	DefaultMetricName         = "signoz_calls_total"
)

// QueryRangeRequest is the body of POST /api/v3/query_range.
type QueryRangeRequest struct {
	Start          uint64         `json:"start"`
	End            uint64         `json:"end"`
	Step           *uint64        `json:"step,omitempty"`
	CompositeQuery CompositeQuery `json:"compositeQuery"`
}

type CompositeQuery struct {
	QueryType      string                  `json:"queryType"`
	PanelType      string                  `json:"panelType"`
	BuilderQueries map[string]BuilderQuery `json:"builderQueries"`
}

type BuilderQuery struct {
	DataSource         string             `json:"dataSource"`
	QueryName          string             `json:"queryName"`
	Expression         string             `json:"expression"`
	AggregateOperator  string             `json:"aggregateOperator"`
	AggregateAttribute AggregateAttribute `json:"aggregateAttribute"`
	Filters            FilterSet          `json:"filters"`
	Limit              *uint32            `json:"limit,omitempty"`
	Offset             *uint32            `json:"offset,omitempty"`
	OrderBy            []OrderBy          `json:"orderBy"`
	SelectColumns      []AttributeKey     `json:"selectColumns,omitempty"`
	GroupBy            []AttributeKey     `json:"groupBy,omitempty"`
}

// AttributeKey names a column or attribute in filters, select lists and
// group-by clauses.
type AttributeKey struct {
	Key      string `json:"key"`
	DataType string `json:"dataType"`
	Type     string `json:"type"`
	IsColumn bool   `json:"isColumn"`
}

// AggregateAttribute is the metric being aggregated; list queries send {}.
type AggregateAttribute struct {
	Key         string `json:"key,omitempty"`
	DataType    string `json:"dataType,omitempty"`
	Type        string `json:"type,omitempty"`
	IsColumn    bool   `json:"isColumn,omitempty"`
	IsMonotonic bool   `json:"isMonotonic,omitempty"`
}

type FilterSet struct {
	Op    string   `json:"op"`
	Items []Filter `json:"items"`
}

type Filter struct {
	Key   AttributeKey `json:"key"`
	Op    string       `json:"op"`
	Value any          `json:"value"`
}

type OrderBy struct {
	ColumnName string `json:"columnName"`
	Order      string `json:"order"`
}

var (
	traceColumns = []AttributeKey{
		column("serviceName", "string", "tag"),
		column("name", "string", "tag"),
		column("durationNano", "float64", "tag"),
		column("traceID", "string", "tag"),
		column("spanID", "string", "tag"),
		column("parentSpanID", "string", "tag"),
		column("statusCode", "int64", "tag"),
		column("hasError", "bool", "tag"),
	}
	logColumns = []AttributeKey{
		column("service_name", "string", "resource"),
		column("severity_text", "string", "tag"),
		column("body", "string", "tag"),
	}
)

func column(key, dataType, typ string) AttributeKey {
	return AttributeKey{Key: key, DataType: dataType, Type: typ, IsColumn: true}
}

func tagKey(key string) AttributeKey {
	return AttributeKey{Key: key, DataType: "string", Type: "tag", IsColumn: false}
}

// tagFilters emits one equality filter per entry, sorted by key so payloads
// are deterministic.
func tagFilters(m map[string]string) []Filter {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, k := range keys {
		filters = append(filters, Filter{Key: tagKey(k), Op: "=", Value: m[k]})
	}
	return filters
}

func resolveRange(tr *models.TimeRange, now time.Time) models.TimeRange {
	if tr != nil {
		return *tr
	}
	return models.LastHour(now)
}

func listPage(limit, offset *uint32) (*uint32, *uint32) {
	l, o := DefaultLimit, uint32(0)
	if limit != nil {
		l = *limit
	}
	if offset != nil {
		o = *offset
	}
	return &l, &o
}

func listRequest(source string, tr models.TimeRange, filters []Filter, limit, offset *uint32, columns []AttributeKey) QueryRangeRequest {
	l, o := listPage(limit, offset)
	if filters == nil {
		filters = []Filter{}
	}
	return QueryRangeRequest{
		Start: tr.StartMs * 1_000_000,
		End:   tr.EndMs * 1_000_000,
		CompositeQuery: CompositeQuery{
			QueryType: "builder",
			PanelType: "list",
			BuilderQueries: map[string]BuilderQuery{
				"A": {
					DataSource:        source,
					QueryName:         "A",
					Expression:        "A",
					AggregateOperator: "noop",
					Filters:           FilterSet{Op: "AND", Items: filters},
					Limit:             l,
					Offset:            o,
					OrderBy:           []OrderBy{{ColumnName: "timestamp", Order: "desc"}},
					SelectColumns:     columns,
				},
			},
		},
	}
}

// BuildTraceQuery translates a TraceQuery into a list-panel payload over the
// last hour unless a range is given.
func BuildTraceQuery(q *models.TraceQuery) QueryRangeRequest {
	return BuildTraceQueryAt(q, time.Now())
}

// BuildTraceQueryAt is BuildTraceQuery with the default range anchored at now.
// Duration filters must not exceed telemetry.MaxDurationMs.
func BuildTraceQueryAt(q *models.TraceQuery, now time.Time) QueryRangeRequest {
	var filters []Filter
	if q.ServiceName != nil {
		filters = append(filters, Filter{Key: column("serviceName", "string", "tag"), Op: "=", Value: *q.ServiceName})
	}
	if q.OperationName != nil {
		filters = append(filters, Filter{Key: column("name", "string", "tag"), Op: "=", Value: *q.OperationName})
	}
	if q.MinDurationMs != nil {
		filters = append(filters, Filter{Key: column("durationNano", "float64", "tag"), Op: ">=", Value: *q.MinDurationMs * 1_000_000})
	}
	if q.MaxDurationMs != nil {
		filters = append(filters, Filter{Key: column("durationNano", "float64", "tag"), Op: "<=", Value: *q.MaxDurationMs * 1_000_000})
	}
	filters = append(filters, tagFilters(q.Tags)...)

	return listRequest("traces", resolveRange(q.TimeRange, now), filters, q.Limit, q.Offset, traceColumns)
}

// BuildLogQuery translates a LogQuery into a list-panel payload.
func BuildLogQuery(q *models.LogQuery) QueryRangeRequest {
	return BuildLogQueryAt(q, time.Now())
}

func BuildLogQueryAt(q *models.LogQuery, now time.Time) QueryRangeRequest {
	var filters []Filter
	if q.ServiceName != nil {
		filters = append(filters, Filter{Key: column("service_name", "string", "resource"), Op: "=", Value: *q.ServiceName})
	}
	if q.Severity != nil {
		filters = append(filters, Filter{Key: column("severity_text", "string", "tag"), Op: "=", Value: *q.Severity})
	}
	if q.BodyContains != nil {
		filters = append(filters, Filter{Key: column("body", "string", "tag"), Op: "contains", Value: *q.BodyContains})
	}
	filters = append(filters, tagFilters(q.Attributes)...)

	return listRequest("logs", resolveRange(q.TimeRange, now), filters, q.Limit, q.Offset, logColumns)
}

// BuildMetricQuery translates a MetricQuery into a time-series payload.
func BuildMetricQuery(q *models.MetricQuery) QueryRangeRequest {
	return BuildMetricQueryAt(q, time.Now())
}

func BuildMetricQueryAt(q *models.MetricQuery, now time.Time) QueryRangeRequest {
	tr := resolveRange(q.TimeRange, now)
	step := DefaultStepSeconds
	if q.StepSeconds != nil {
		step = *q.StepSeconds
	}
	aggregation := DefaultAggregation
	if q.Aggregation != nil {
		aggregation = *q.Aggregation
	}
	metricName := DefaultMetricName
	if q.MetricName != nil {
		metricName = *q.MetricName
	}

	filters := []Filter{}
	if q.ServiceName != nil {
		filters = append(filters, Filter{
			Key:   AttributeKey{Key: "service_name", DataType: "string", Type: "resource", IsColumn: false},
			Op:    "=",
			Value: *q.ServiceName,
		})
	}
	filters = append(filters, tagFilters(q.Filters)...)

	groupBy := make([]AttributeKey, 0, len(q.GroupBy))
	for _, g := range q.GroupBy {
		groupBy = append(groupBy, tagKey(g))
	}

	return QueryRangeRequest{
		Start: tr.StartMs * 1_000_000,
		End:   tr.EndMs * 1_000_000,
		Step:  &step,
		CompositeQuery: CompositeQuery{
			QueryType: "builder",
			PanelType: "time_series",
			BuilderQueries: map[string]BuilderQuery{
				"A": {
					DataSource:        "metrics",
					QueryName:         "A",
					Expression:        "A",
					AggregateOperator: aggregation,
					AggregateAttribute: AggregateAttribute{
						Key:         metricName,
						DataType:    "float64",
						Type:        "Sum",
						IsColumn:    true,
						IsMonotonic: true,
					},
					Filters: FilterSet{Op: "AND", Items: filters},
					OrderBy: []OrderBy{},
					GroupBy: groupBy,
				},
			},
		},
	}
}
