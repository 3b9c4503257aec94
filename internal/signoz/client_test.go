package signoz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder captures requests seen by a fake SigNoz server.
type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

func (r *recorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.bodies = append(r.bodies, body)
}

func (r *recorder) last() (*http.Request, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.requests)
	return r.requests[n-1], r.bodies[n-1]
}

func newServer(t *testing.T, rec *recorder, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBackend(t *testing.T, baseURL string, auth config.AuthMethod) *Backend {
	t.Helper()
	b, err := New(config.SigNozConfig{BaseURL: baseURL, Auth: auth, TimeoutSecs: 5}, WithLogger(testLogger()))
	require.NoError(t, err)
	return b
}

func TestNewEmptyBaseURL(t *testing.T) {
	_, err := New(config.SigNozConfig{Auth: config.NoAuth(), TimeoutSecs: 30})
	require.Error(t, err)
	assert.True(t, errors.Is(err, telemetry.ErrConnectionFailed))
}

func TestNewInvalidHeader(t *testing.T) {
	_, err := New(config.SigNozConfig{
		BaseURL: "http://localhost:3301",
		Auth:    config.APIKeyAuth("bad header", "k"),
	})
	require.Error(t, err)
	assert.Equal(t, telemetry.KindConnectionFailed, telemetry.KindOf(err))
}

func TestNewDisplayName(t *testing.T) {
	b := newBackend(t, "http://localhost:3301", config.NoAuth())
	assert.Equal(t, "SigNoz @ http://localhost:3301", b.DisplayName())
}

func TestURLTrimsTrailingSlash(t *testing.T) {
	b := newBackend(t, "http://localhost:3301/", config.NoAuth())
	assert.Equal(t, "http://localhost:3301/api/v1/health", b.url(healthPath))
}

func TestHealthCheckSendsHeaders(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	b := newBackend(t, srv.URL, config.APIKeyAuth("SIGNOZ-API-KEY", "test-key-123"))
	require.NoError(t, b.HealthCheck(context.Background()))

	req, _ := rec.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, healthPath, req.URL.Path)
	assert.Equal(t, "test-key-123", req.Header.Get("SIGNOZ-API-KEY"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestBearerTokenHeader(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {})

	b := newBackend(t, srv.URL, config.BearerTokenAuth("my-token"))
	require.NoError(t, b.HealthCheck(context.Background()))

	req, _ := rec.last()
	assert.Equal(t, "Bearer my-token", req.Header.Get("Authorization"))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind telemetry.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"status":"error","error":"nope"}`, telemetry.KindAuthenticationFailed},
		{"forbidden", http.StatusForbidden, ``, telemetry.KindAuthenticationFailed},
		{"server error", http.StatusInternalServerError, `boom`, telemetry.KindAPI},
		{"not found", http.StatusNotFound, `missing`, telemetry.KindAPI},
		{"bad json", http.StatusOK, `{not json`, telemetry.KindDeserialization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			b := newBackend(t, srv.URL, config.NoAuth())
			_, err := b.QueryTraces(context.Background(), &models.TraceQuery{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, telemetry.KindOf(err))

			var te *telemetry.Error
			require.True(t, errors.As(err, &te))
			if tt.wantKind != telemetry.KindDeserialization {
				assert.Equal(t, tt.status, te.Status)
			}
			if tt.wantKind == telemetry.KindAPI {
				assert.Equal(t, tt.body, te.Message)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	b := newBackend(t, url, config.NoAuth())
	err := b.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, telemetry.ErrHTTP))
}

func TestTimeoutIsHTTPError(t *testing.T) {
	srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	b, err := New(config.SigNozConfig{BaseURL: srv.URL, Auth: config.NoAuth(), TimeoutSecs: 30},
		WithLogger(testLogger()), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	err = b.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, telemetry.KindHTTP, telemetry.KindOf(err))
}

func TestListServices(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":[{"serviceName":"frontend","numOperations":12},{"serviceName":"backend","numOperations":35}]}`)
	})

	b := newBackend(t, srv.URL, config.NoAuth())
	services, err := b.ListServices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.ServiceInfo{
		{Name: "frontend", NumOperations: 12},
		{Name: "backend", NumOperations: 35},
	}, services)

	req, _ := rec.last()
	assert.Equal(t, servicesPath, req.URL.Path)
}

func TestQueryTracesPostsPayload(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":{"result":[{"queryName":"A","list":[
			{"timestamp":"2026-02-02T19:40:37Z","data":{"traceID":"t1","spanID":"s1","serviceName":"web","name":"GET /","durationNano":2000000}}
		]}]}}`)
	})

	b := newBackend(t, srv.URL, config.NoAuth())
	result, err := b.QueryTraces(context.Background(), &models.TraceQuery{
		ServiceName: models.Ptr("web"),
		TimeRange:   &models.TimeRange{StartMs: 1000, EndMs: 2000},
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "t1", result.Items[0].TraceID)
	assert.Equal(t, uint64(2), result.Items[0].DurationMs)
	require.NotNil(t, result.Total)
	assert.Equal(t, uint64(1), *result.Total)

	req, body := rec.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, queryRangePath, req.URL.Path)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.EqualValues(t, 1_000_000_000, payload["start"])
	assert.EqualValues(t, 2_000_000_000, payload["end"])
}

func TestQueryTracesBackendError(t *testing.T) {
	srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error","error":"x"}`)
	})

	b := newBackend(t, srv.URL, config.NoAuth())
	_, err := b.QueryTraces(context.Background(), &models.TraceQuery{})
	require.Error(t, err)
	assert.Equal(t, "backend error: x", err.Error())
}

func TestQueryLogsAndMetricsEmpty(t *testing.T) {
	srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":{"result":[]}}`)
	})

	b := newBackend(t, srv.URL, config.NoAuth())

	logs, err := b.QueryLogs(context.Background(), &models.LogQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs.Items)
	require.NotNil(t, logs.Total)
	assert.Equal(t, uint64(0), *logs.Total)

	metrics, err := b.QueryMetrics(context.Background(), &models.MetricQuery{})
	require.NoError(t, err)
	assert.Empty(t, metrics.Items)
	assert.Equal(t, uint64(0), *metrics.Total)
}

func TestLogin(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"accessJwt":"jwt-abc","refreshJwt":"r","userId":"u1"}`)
	})

	token, err := Login(context.Background(), srv.URL+"/", "admin@example.com", "secret", WithLogger(testLogger()))
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", token)

	req, body := rec.last()
	assert.Equal(t, loginPath, req.URL.Path)
	assert.Equal(t, "", req.Header.Get("Authorization"))
	assert.JSONEq(t, `{"email":"admin@example.com","password":"secret"}`, string(body))
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind telemetry.Kind
		wantMsg  string
	}{
		{"rejected", http.StatusUnauthorized, `{"error":"bad password"}`, telemetry.KindAPI, `API error (status 401): {"error":"bad password"}`},
		{"rejected without body", http.StatusForbidden, ``, telemetry.KindAPI, "API error (status 403): invalid credentials"},
		{"server error", http.StatusInternalServerError, `boom`, telemetry.KindAPI, "API error (status 500): boom"},
		{"missing token", http.StatusOK, `{"userId":"u1"}`, telemetry.KindBackend, "backend error: login response missing accessJwt field"},
		{"bad json", http.StatusOK, `<html>`, telemetry.KindDeserialization, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := Login(context.Background(), srv.URL, "a@b.c", "pw", WithLogger(testLogger()))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, telemetry.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestLoginErrorUnwrapsAuthenticationFailure(t *testing.T) {
	auth := telemetry.AuthenticationFailed(http.StatusUnauthorized)
	auth.Message = "user disabled"

	err := loginError(fmt.Errorf("post login: %w", auth))
	assert.Equal(t, telemetry.KindAPI, telemetry.KindOf(err))
	assert.Equal(t, "API error (status 401): user disabled", err.Error())

	other := telemetry.HTTPError(errors.New("connection refused"))
	assert.Same(t, other, loginError(other))
}

func TestAuthenticationFailureKeepsBody(t *testing.T) {
	srv := newServer(t, &recorder{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "token expired")
	})
	b, err := New(config.SigNozConfig{BaseURL: srv.URL, TimeoutSecs: 5}, WithLogger(testLogger()))
	require.NoError(t, err)

	err = b.HealthCheck(context.Background())
	assert.Equal(t, "authentication failed: HTTP 401", err.Error())
	var te *telemetry.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "token expired", te.Message)
}

func TestQueryTracesRejectsOverflowingDuration(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":{"result":[]}}`)
	})
	b := newBackend(t, srv.URL, config.NoAuth())

	_, err := b.QueryTraces(context.Background(), &models.TraceQuery{MaxDurationMs: models.Ptr(telemetry.MaxDurationMs + 1)})
	require.Error(t, err)
	assert.Equal(t, telemetry.KindInvalidQuery, telemetry.KindOf(err))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.requests, "no request is sent for an invalid query")
}
