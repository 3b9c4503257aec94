package models

import (
	"maps"
	"slices"
	"time"
)

// TimeRange is an inclusive window in milliseconds since the Unix epoch.
// StartMs <= EndMs is the caller's responsibility.
type TimeRange struct {
	StartMs uint64 `json:"start_ms" yaml:"start_ms"`
	EndMs   uint64 `json:"end_ms" yaml:"end_ms"`
}

const hourMs = 3_600_000

// LastHour returns the hour ending at now.
func LastHour(now time.Time) TimeRange {
	end := uint64(0)
	if ms := now.UnixMilli(); ms > 0 {
		end = uint64(ms)
	}
	start := uint64(0)
	if end > hourMs {
		start = end - hourMs
	}
	return TimeRange{StartMs: start, EndMs: end}
}

// TraceQuery selects spans. Nil fields are unfiltered.
type TraceQuery struct {
	ServiceName   *string           `json:"service_name,omitempty"`
	OperationName *string           `json:"operation_name,omitempty"`
	MinDurationMs *uint64           `json:"min_duration_ms,omitempty"`
	MaxDurationMs *uint64           `json:"max_duration_ms,omitempty"`
	TimeRange     *TimeRange        `json:"time_range,omitempty"`
	Limit         *uint32           `json:"limit,omitempty"`
	Offset        *uint32           `json:"offset,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// MetricQuery selects metric time series.
type MetricQuery struct {
	MetricName  *string           `json:"metric_name,omitempty"`
	ServiceName *string           `json:"service_name,omitempty"`
	TimeRange   *TimeRange        `json:"time_range,omitempty"`
	StepSeconds *uint64           `json:"step_seconds,omitempty"`
	Aggregation *string           `json:"aggregation,omitempty"` // avg, min, max, sum
	GroupBy     []string          `json:"group_by,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// LogQuery selects log entries.
type LogQuery struct {
	ServiceName  *string           `json:"service_name,omitempty"`
	Severity     *string           `json:"severity,omitempty"`
	BodyContains *string           `json:"body_contains,omitempty"`
	TimeRange    *TimeRange        `json:"time_range,omitempty"`
	Limit        *uint32           `json:"limit,omitempty"`
	Offset       *uint32           `json:"offset,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Span represents one operation within a distributed trace
type Span struct {
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentSpanID  *string           `json:"parent_span_id,omitempty"`
	ServiceName   string            `json:"service_name"`
	OperationName string            `json:"operation_name"`
	StartTimeMs   uint64            `json:"start_time_ms"`
	DurationMs    uint64            `json:"duration_ms"`
	StatusCode    int32             `json:"status_code"`
	HasError      bool              `json:"has_error"`
	Attributes    map[string]string `json:"attributes"`
}

// LogEntry represents a single log record
type LogEntry struct {
	TimestampMs uint64            `json:"timestamp_ms"`
	Severity    string            `json:"severity"`
	Body        string            `json:"body"`
	ServiceName string            `json:"service_name"`
	Attributes  map[string]string `json:"attributes"`
}

// MetricPoint is a single sample in a series.
type MetricPoint struct {
	TimestampMs uint64  `json:"timestamp_ms"`
	Value       float64 `json:"value"`
}

// MetricSeries is one labelled time series. Points keep the order the
// backend returned them in, which is not guaranteed to be monotonic.
type MetricSeries struct {
	MetricName  string            `json:"metric_name"`
	ServiceName string            `json:"service_name"`
	Labels      map[string]string `json:"labels"`
	Points      []MetricPoint     `json:"points"`
}

// ServiceInfo describes a service discovered in the backend
type ServiceInfo struct {
	Name          string `json:"name"`
	NumOperations uint64 `json:"num_operations"`
}

// QueryResult is one page of results. Total is best effort; backends may
// only know the size of the returned page.
type QueryResult[T any] struct {
	Items []T     `json:"items"`
	Total *uint64 `json:"total,omitempty"`
}

// NewPage builds a result whose total is the page size.
func NewPage[T any](items []T) QueryResult[T] {
	if items == nil {
		items = []T{}
	}
	total := uint64(len(items))
	return QueryResult[T]{Items: items, Total: &total}
}

// clonePtr copies the value behind p so the copy shares no memory with p.
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy of q.
func (q *TraceQuery) Clone() TraceQuery {
	if q == nil {
		return TraceQuery{}
	}
	return TraceQuery{
		ServiceName:   clonePtr(q.ServiceName),
		OperationName: clonePtr(q.OperationName),
		MinDurationMs: clonePtr(q.MinDurationMs),
		MaxDurationMs: clonePtr(q.MaxDurationMs),
		TimeRange:     clonePtr(q.TimeRange),
		Limit:         clonePtr(q.Limit),
		Offset:        clonePtr(q.Offset),
		Tags:          maps.Clone(q.Tags),
	}
}

// Clone returns a deep copy of q.
func (q *LogQuery) Clone() LogQuery {
	if q == nil {
		return LogQuery{}
	}
	return LogQuery{
		ServiceName:  clonePtr(q.ServiceName),
		Severity:     clonePtr(q.Severity),
		BodyContains: clonePtr(q.BodyContains),
		TimeRange:    clonePtr(q.TimeRange),
		Limit:        clonePtr(q.Limit),
		Offset:       clonePtr(q.Offset),
		Attributes:   maps.Clone(q.Attributes),
	}
}

// Clone returns a deep copy of q.
func (q *MetricQuery) Clone() MetricQuery {
	if q == nil {
		return MetricQuery{}
	}
	return MetricQuery{
		MetricName:  clonePtr(q.MetricName),
		ServiceName: clonePtr(q.ServiceName),
		TimeRange:   clonePtr(q.TimeRange),
		StepSeconds: clonePtr(q.StepSeconds),
		Aggregation: clonePtr(q.Aggregation),
		GroupBy:     slices.Clone(q.GroupBy),
		Filters:     maps.Clone(q.Filters),
	}
}

// Ptr returns a pointer to v, for populating optional query fields.
func Ptr[T any](v T) *T {
	return &v
}
