package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"otelbridge/internal/models"
)

// RecordedRequest is one call received by SigNozServer
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	APIKey        string
	Body          map[string]interface{}
}

// DataSource returns builderQueries.A.dataSource of a query_range payload
func (r RecordedRequest) DataSource() string {
	cq, _ := r.Body["compositeQuery"].(map[string]interface{})
	bq, _ := cq["builderQueries"].(map[string]interface{})
	a, _ := bq["A"].(map[string]interface{})
	ds, _ := a["dataSource"].(string)
	return ds
}

// SigNozServer is an in-process stand-in for the SigNoz query service.
// It answers query_range from the fixture matching the payload's dataSource.
type SigNozServer struct {
	*httptest.Server

	// Email and Password are the only accepted login; the issued token is
	// then required on every other endpoint.
	Email    string
	Password string
	Token    string

	mu       sync.Mutex
	spans    []models.Span
	logs     []models.LogEntry
	series   []models.MetricSeries
	services []models.ServiceInfo
	requests []RecordedRequest
}

// NewSigNozServer starts a server with no data and no login
func NewSigNozServer(t testing.TB) *SigNozServer {
	return NewSigNozServerWithLogin(t, "", "", "")
}

// NewSigNozServerWithLogin starts a server that issues token for
// email/password and rejects data requests without it
func NewSigNozServerWithLogin(t testing.TB, email, password, token string) *SigNozServer {
	s := &SigNozServer{Email: email, Password: password, Token: token}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetSpans replaces the trace fixture
func (s *SigNozServer) SetSpans(spans ...models.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = spans
}

// SetLogs replaces the log fixture
func (s *SigNozServer) SetLogs(logs ...models.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = logs
}

// SetSeries replaces the metric fixture
func (s *SigNozServer) SetSeries(series ...models.MetricSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = series
}

// SetServices replaces the services fixture
func (s *SigNozServer) SetServices(services ...models.ServiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
}

// Requests returns a copy of every request received so far
func (s *SigNozServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *SigNozServer) handle(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		APIKey:        r.Header.Get("SIGNOZ-API-KEY"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &rec.Body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()

	if r.URL.Path == "/api/v1/login" {
		s.login(w, rec)
		return
	}
	if s.Token != "" && rec.Authorization != "Bearer "+s.Token {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/api/v1/health":
		w.WriteHeader(http.StatusOK)
	case "/api/v1/services":
		s.writeServices(w)
	case "/api/v3/query_range":
		s.writeQueryRange(w, rec.DataSource())
	default:
		http.NotFound(w, r)
	}
}

func (s *SigNozServer) login(w http.ResponseWriter, rec RecordedRequest) {
	email, _ := rec.Body["email"].(string)
	password, _ := rec.Body["password"].(string)
	if s.Token == "" || email != s.Email || password != s.Password {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	writeFixture(w, map[string]interface{}{
		"accessJwt":  s.Token,
		"refreshJwt": "refresh-" + s.Token,
		"userId":     "user-1",
	})
}

func (s *SigNozServer) writeServices(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]map[string]interface{}, 0, len(s.services))
	for _, svc := range s.services {
		data = append(data, map[string]interface{}{
			"serviceName":   svc.Name,
			"numOperations": svc.NumOperations,
		})
	}
	writeFixture(w, map[string]interface{}{"status": "success", "data": data})
}

func (s *SigNozServer) writeQueryRange(w http.ResponseWriter, dataSource string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := map[string]interface{}{"queryName": "A"}
	switch dataSource {
	case "traces":
		rows := make([]map[string]interface{}, 0, len(s.spans))
		for _, span := range s.spans {
			rows = append(rows, SpanRow(span))
		}
		entry["list"] = rows
	case "logs":
		rows := make([]map[string]interface{}, 0, len(s.logs))
		for _, l := range s.logs {
			rows = append(rows, LogRow(l))
		}
		entry["list"] = rows
	case "metrics":
		series := make([]map[string]interface{}, 0, len(s.series))
		for _, ms := range s.series {
			series = append(series, SeriesEntry(ms))
		}
		entry["series"] = series
	default:
		writeFixture(w, map[string]interface{}{"status": "error", "error": "unknown dataSource " + dataSource})
		return
	}

	// Newer SigNoz versions nest results under newResult.
	writeFixture(w, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"newResult": map[string]interface{}{
				"data": map[string]interface{}{"result": []interface{}{entry}},
			},
		},
	})
}

// SpanRow renders a span the way SigNoz lists trace rows
func SpanRow(span models.Span) map[string]interface{} {
	data := map[string]interface{}{
		"traceID":      span.TraceID,
		"spanID":       span.SpanID,
		"serviceName":  span.ServiceName,
		"name":         span.OperationName,
		"durationNano": span.DurationMs * 1_000_000,
		"statusCode":   span.StatusCode,
		"hasError":     span.HasError,
		"timestamp":    span.StartTimeMs,
	}
	if span.ParentSpanID != nil {
		data["parentSpanID"] = *span.ParentSpanID
	} else {
		data["parentSpanID"] = ""
	}
	for k, v := range span.Attributes {
		data[k] = v
	}
	return map[string]interface{}{"data": data}
}

// LogRow renders a log entry the way SigNoz lists log rows, with the
// timestamp only at row level in ISO-8601 form
func LogRow(l models.LogEntry) map[string]interface{} {
	data := map[string]interface{}{
		"severity_text": l.Severity,
		"body":          l.Body,
		"service_name":  l.ServiceName,
	}
	for k, v := range l.Attributes {
		data[k] = v
	}
	return map[string]interface{}{
		"timestamp": ISO8601(l.TimestampMs),
		"data":      data,
	}
}

// SeriesEntry renders a metric series with string values, as SigNoz v3 does
func SeriesEntry(ms models.MetricSeries) map[string]interface{} {
	labels := map[string]string{"__name__": ms.MetricName, "service_name": ms.ServiceName}
	for k, v := range ms.Labels {
		labels[k] = v
	}
	values := make([]map[string]interface{}, 0, len(ms.Points))
	for _, p := range ms.Points {
		values = append(values, map[string]interface{}{
			"timestamp": p.TimestampMs,
			"value":     strconv.FormatFloat(p.Value, 'f', -1, 64),
		})
	}
	return map[string]interface{}{"labels": labels, "values": values}
}

func writeFixture(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
