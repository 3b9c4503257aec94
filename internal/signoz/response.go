package signoz

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"otelbridge/internal/models"
	"otelbridge/internal/telemetry"
)

// QueryRangeResponse is the envelope returned by /api/v3/query_range.
type QueryRangeResponse struct {
	Status string        `json:"status"`
	Data   *ResponseData `json:"data"`
	Error  ErrorMessage  `json:"error"`
}

// ResponseData carries results in either the flat or the nested shape,
// depending on the server version.
type ResponseData struct {
	Result    []ResultEntry `json:"result"`
	NewResult *NewResult    `json:"newResult"`
}

type NewResult struct {
	Data struct {
		Result []ResultEntry `json:"result"`
	} `json:"data"`
}

type ResultEntry struct {
	QueryName string       `json:"queryName"`
	Series    []TimeSeries `json:"series"`
	List      []ListRow    `json:"list"`
}

type TimeSeries struct {
	Labels map[string]string `json:"labels"`
	Values []SeriesValue     `json:"values"`
}

type SeriesValue struct {
	Timestamp any `json:"timestamp"`
	Value     any `json:"value"`
}

// ListRow is one trace or log row. Timestamp is usually an ISO-8601 string.
type ListRow struct {
	Timestamp any            `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ErrorMessage accepts either a plain string or an object with a message.
type ErrorMessage string

func (e *ErrorMessage) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ErrorMessage(s)
		return nil
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Message != "" {
		*e = ErrorMessage(obj.Message)
	} else {
		*e = ErrorMessage(obj.Error)
	}
	return nil
}

// Entries returns the result entries, preferring the nested newResult shape.
func (r *QueryRangeResponse) Entries() []ResultEntry {
	if r.Data == nil {
		return nil
	}
	if r.Data.NewResult != nil {
		return r.Data.NewResult.Data.Result
	}
	return r.Data.Result
}

// ServicesResponse is the body of GET /api/v1/services.
type ServicesResponse struct {
	Status string         `json:"status"`
	Data   []ServiceEntry `json:"data"`
}

type ServiceEntry struct {
	ServiceName   string `json:"serviceName"`
	NumOperations uint64 `json:"numOperations"`
}

// decodeJSON decodes exactly one JSON value with UseNumber so nanosecond
// values keep full precision. Anything but whitespace after it is an error.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return telemetry.DeserializationError(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data after JSON value")
		}
		return telemetry.DeserializationError(err)
	}
	return nil
}

// DecodeQueryRange decodes an envelope and turns status "error" into a
// Backend error.
func DecodeQueryRange(r io.Reader) (*QueryRangeResponse, error) {
	var resp QueryRangeResponse
	if err := decodeJSON(r, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		msg := string(resp.Error)
		if msg == "" {
			msg = "unknown error"
		}
		return nil, telemetry.BackendError(msg)
	}
	return &resp, nil
}

// ParseSpans maps list rows onto spans.
func ParseSpans(resp *QueryRangeResponse) []models.Span {
	spans := []models.Span{}
	for _, entry := range resp.Entries() {
		for _, row := range entry.List {
			d := row.Data
			span := models.Span{
				TraceID:       stringField(d, "traceID"),
				SpanID:        stringField(d, "spanID"),
				ServiceName:   stringField(d, "serviceName"),
				OperationName: stringField(d, "name"),
				StartTimeMs:   rowTimestamp(d, row.Timestamp),
				DurationMs:    durationMs(d["durationNano"]),
				StatusCode:    int32(intField(d, "statusCode")),
				HasError:      boolField(d, "hasError"),
				Attributes:    stringMap(d),
			}
			if parent := stringField(d, "parentSpanID"); parent != "" {
				span.ParentSpanID = &parent
			}
			spans = append(spans, span)
		}
	}
	return spans
}

// ParseLogs maps list rows onto log entries.
func ParseLogs(resp *QueryRangeResponse) []models.LogEntry {
	logs := []models.LogEntry{}
	for _, entry := range resp.Entries() {
		for _, row := range entry.List {
			d := row.Data
			logs = append(logs, models.LogEntry{
				TimestampMs: rowTimestamp(d, row.Timestamp),
				Severity:    stringField(d, "severity_text"),
				Body:        stringField(d, "body"),
				ServiceName: stringField(d, "service_name"),
				Attributes:  stringMap(d),
			})
		}
	}
	return logs
}

// ParseSeries maps time series onto metric series. Point timestamps are
// passed through as sent.
func ParseSeries(resp *QueryRangeResponse) []models.MetricSeries {
	out := []models.MetricSeries{}
	for _, entry := range resp.Entries() {
		for _, ts := range entry.Series {
			labels := ts.Labels
			if labels == nil {
				labels = map[string]string{}
			}
			points := make([]models.MetricPoint, 0, len(ts.Values))
			for _, v := range ts.Values {
				points = append(points, models.MetricPoint{
					TimestampMs: uintValue(v.Timestamp),
					Value:       floatValue(v.Value),
				})
			}
			out = append(out, models.MetricSeries{
				MetricName:  labels["__name__"],
				ServiceName: labels["service_name"],
				Labels:      labels,
				Points:      points,
			})
		}
	}
	return out
}

func stringField(d map[string]any, key string) string {
	s, _ := d[key].(string)
	return s
}

func boolField(d map[string]any, key string) bool {
	b, _ := d[key].(bool)
	return b
}

func intField(d map[string]any, key string) int64 {
	n, ok := d[key].(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		return 0
	}
	return i
}

func durationMs(v any) uint64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	f, err := n.Float64()
	if err != nil || f < 0 {
		return 0
	}
	return uint64(f / 1_000_000)
}

func uintValue(v any) uint64 {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil && f >= 0 {
			return uint64(f)
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// floatValue coerces a point value; numeric strings are accepted because
// query_range v3 serializes values as strings.
func floatValue(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err == nil {
			return f
		}
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// stringMap keeps every string-valued entry; other types are dropped.
func stringMap(d map[string]any) map[string]string {
	out := make(map[string]string, len(d))
	for k, v := range d {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
