package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// stubHost mimics the bridge host API: enqueue returns an id, responses
// drains everything answered so far
type stubHost struct {
	mu      sync.Mutex
	next    int
	queued  []queuedResponse
	bodies  map[string][]byte
	failKey string
}

func newStubHost(t *testing.T) (*stubHost, *httptest.Server) {
	h := &stubHost{bodies: make(map[string][]byte)}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *stubHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.URL.Path == "/api/v1/responses" {
		json.NewEncoder(w).Encode(map[string]interface{}{"responses": h.queued})
		h.queued = nil
		return
	}
	if r.URL.Path == h.failKey {
		http.Error(w, `{"error":"bridge is not running"}`, http.StatusServiceUnavailable)
		return
	}

	h.next++
	id := fmt.Sprintf("req-%d", h.next)
	var raw json.RawMessage
	json.NewDecoder(r.Body).Decode(&raw)
	h.bodies[r.URL.Path] = raw

	kind := map[string]string{
		"/api/v1/traces":   "traces",
		"/api/v1/logs":     "logs",
		"/api/v1/metrics":  "metrics_error",
		"/api/v1/services": "services",
	}[r.URL.Path]
	resp := queuedResponse{RequestID: id, Kind: kind}
	if kind == "metrics_error" {
		resp.Err = "API error (status 500): boom"
	}
	h.queued = append(h.queued, resp)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"request_id": id})
}

func TestEnqueueAndPoll(t *testing.T) {
	host, srv := newStubHost(t)
	client := newLoadClient(srv.URL+"/", "checkout")
	stats := &Stats{}
	ctx := context.Background()

	for _, kind := range []string{"traces", "logs", "metrics", "services"} {
		client.enqueue(ctx, kind, stats)
	}

	if got := stats.requestsSent.Load(); got != 4 {
		t.Errorf("Expected 4 requests sent, got %d", got)
	}
	if got := client.outstanding(); got != 4 {
		t.Errorf("Expected 4 outstanding, got %d", got)
	}

	client.poll(ctx, stats)

	if got := client.outstanding(); got != 0 {
		t.Errorf("Expected 0 outstanding after poll, got %d", got)
	}
	if got := stats.responsesOK.Load(); got != 3 {
		t.Errorf("Expected 3 ok responses, got %d", got)
	}
	if got := stats.responsesFailed.Load(); got != 1 {
		t.Errorf("Expected 1 failed response, got %d", got)
	}

	var trace map[string]interface{}
	if err := json.Unmarshal(host.bodies["/api/v1/traces"], &trace); err != nil {
		t.Fatalf("Failed to decode traces body: %v", err)
	}
	if trace["service_name"] != "checkout" {
		t.Errorf("Expected service_name checkout, got %v", trace["service_name"])
	}
	if trace["limit"] != float64(50) {
		t.Errorf("Expected limit 50, got %v", trace["limit"])
	}
	if len(host.bodies["/api/v1/services"]) != 0 {
		t.Errorf("Expected empty services body, got %s", host.bodies["/api/v1/services"])
	}
}

func TestEnqueueRejected(t *testing.T) {
	host, srv := newStubHost(t)
	host.failKey = "/api/v1/traces"
	client := newLoadClient(srv.URL, "")
	stats := &Stats{}

	client.enqueue(context.Background(), "traces", stats)

	if got := stats.requestsRejected.Load(); got != 1 {
		t.Errorf("Expected 1 rejected request, got %d", got)
	}
	if got := client.outstanding(); got != 0 {
		t.Errorf("Expected no outstanding requests, got %d", got)
	}
}

func TestAvgTurnaround(t *testing.T) {
	stats := &Stats{}
	if got := stats.avgTurnaroundMs(); got != 0 {
		t.Errorf("Expected 0 with no responses, got %f", got)
	}
	stats.responsesOK.Add(3)
	stats.responsesFailed.Add(1)
	stats.turnaround.Add(40)
	if got := stats.avgTurnaroundMs(); got != 10 {
		t.Errorf("Expected 10ms, got %f", got)
	}
}

func TestEnqueuePathsCoverKinds(t *testing.T) {
	for _, kind := range []string{"health", "traces", "logs", "metrics", "services"} {
		if _, ok := enqueuePaths[kind]; !ok {
			t.Errorf("Missing enqueue path for %s", kind)
		}
	}
}
