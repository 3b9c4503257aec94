package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"otelbridge/internal/models"
)

var (
	endpoint      = flag.String("endpoint", "http://127.0.0.1:8686", "Bridge host base URL")
	duration      = flag.Duration("duration", 60*time.Second, "Test duration")
	ratePerSecond = flag.Int("rate", 200, "Target requests per second")
	numWorkers    = flag.Int("workers", 4, "Number of concurrent workers")
	kinds         = flag.String("kinds", "traces,logs,metrics,services", "Comma separated request kinds to cycle through")
	service       = flag.String("service", "", "Service name filter applied to traces, logs and metrics")
	pollInterval  = flag.Duration("poll", 100*time.Millisecond, "Response drain interval")
)

type Stats struct {
	requestsSent     atomic.Uint64
	requestsRejected atomic.Uint64
	responsesOK      atomic.Uint64
	responsesFailed  atomic.Uint64
	enqueueLatency   atomic.Uint64
	turnaround       atomic.Uint64
}

// queuedResponse is the subset of a bridge response the load test reads
type queuedResponse struct {
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Err       string `json:"error"`
}

// loadClient issues enqueue calls and drains responses from a bridge host
type loadClient struct {
	baseURL string
	http    *http.Client
	service string

	mu      sync.Mutex
	pending map[string]time.Time
}

func newLoadClient(baseURL, service string) *loadClient {
	return &loadClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		service: service,
		pending: make(map[string]time.Time),
	}
}

func main() {
	flag.Parse()

	log.Printf("Starting load test:")
	log.Printf("  Endpoint: %s", *endpoint)
	log.Printf("  Duration: %s", *duration)
	log.Printf("  Target rate: %d requests/sec", *ratePerSecond)
	log.Printf("  Workers: %d", *numWorkers)
	log.Printf("  Kinds: %s", *kinds)

	requestKinds := strings.Split(*kinds, ",")
	for _, k := range requestKinds {
		if _, ok := enqueuePaths[k]; !ok {
			log.Fatalf("Unknown request kind %q", k)
		}
	}
	perWorker := *ratePerSecond / *numWorkers
	if perWorker < 1 {
		log.Fatalf("Rate %d is below one request per second per worker", *ratePerSecond)
	}
	tickInterval := time.Second / time.Duration(perWorker)

	client := newLoadClient(*endpoint, *service)
	stats := &Stats{}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStats(gctx, stats)
		return nil
	})
	g.Go(func() error {
		client.drain(gctx, *pollInterval, stats)
		return nil
	})
	for i := 0; i < *numWorkers; i++ {
		workerID := i
		g.Go(func() error {
			client.runWorker(gctx, workerID, requestKinds, tickInterval, stats)
			return nil
		})
	}
	g.Wait()

	// Give the bridge a moment to answer what is still queued
	final, finalCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer finalCancel()
	for client.outstanding() > 0 && final.Err() == nil {
		client.poll(final, stats)
		time.Sleep(*pollInterval)
	}

	printFinalStats(stats, client.outstanding())
}

var enqueuePaths = map[string]string{
	"health":   "/api/v1/health-check",
	"traces":   "/api/v1/traces",
	"logs":     "/api/v1/logs",
	"metrics":  "/api/v1/metrics",
	"services": "/api/v1/services",
}

func (c *loadClient) runWorker(ctx context.Context, workerID int, requestKinds []string, tickInterval time.Duration, stats *Stats) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	n := workerID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.enqueue(ctx, requestKinds[n%len(requestKinds)], stats)
			n++
		}
	}
}

// body builds the JSON payload for one request kind
func (c *loadClient) body(kind string) interface{} {
	var svc *string
	if c.service != "" {
		svc = models.Ptr(c.service)
	}
	switch kind {
	case "traces":
		return models.TraceQuery{ServiceName: svc, Limit: models.Ptr(uint32(50))}
	case "logs":
		return models.LogQuery{ServiceName: svc, Limit: models.Ptr(uint32(50))}
	case "metrics":
		return models.MetricQuery{ServiceName: svc}
	default:
		return nil
	}
}

func (c *loadClient) enqueue(ctx context.Context, kind string, stats *Stats) {
	var payload io.Reader = http.NoBody
	if b := c.body(kind); b != nil {
		data, err := json.Marshal(b)
		if err != nil {
			stats.requestsRejected.Add(1)
			return
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+enqueuePaths[kind], payload)
	if err != nil {
		stats.requestsRejected.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)

	stats.requestsSent.Add(1)
	stats.enqueueLatency.Add(uint64(latency.Microseconds()))

	if err != nil {
		stats.requestsRejected.Add(1)
		return
	}
	defer resp.Body.Close()

	var accepted struct {
		RequestID string `json:"request_id"`
	}
	if resp.StatusCode != http.StatusAccepted || json.NewDecoder(resp.Body).Decode(&accepted) != nil || accepted.RequestID == "" {
		stats.requestsRejected.Add(1)
		return
	}

	c.mu.Lock()
	c.pending[accepted.RequestID] = start
	c.mu.Unlock()
}

func (c *loadClient) drain(ctx context.Context, interval time.Duration, stats *Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx, stats)
		}
	}
}

// poll takes every buffered response from the host and matches it against
// pending request ids
func (c *loadClient) poll(ctx context.Context, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/responses", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var body struct {
		Responses []queuedResponse `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range body.Responses {
		if r.Err != "" || strings.HasSuffix(r.Kind, "_error") {
			stats.responsesFailed.Add(1)
		} else {
			stats.responsesOK.Add(1)
		}
		if started, ok := c.pending[r.RequestID]; ok {
			stats.turnaround.Add(uint64(now.Sub(started).Milliseconds()))
			delete(c.pending, r.RequestID)
		}
	}
}

func (c *loadClient) outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func reportStats(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	lastAnswered := uint64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			answered := stats.responsesOK.Load() + stats.responsesFailed.Load()
			currentTime := time.Now()
			elapsed := currentTime.Sub(lastTime).Seconds()

			rate := float64(answered-lastAnswered) / elapsed
			log.Printf("Rate: %.0f responses/sec | OK: %d | Failed: %d | Rejected: %d | Avg Turnaround: %.2f ms",
				rate,
				stats.responsesOK.Load(),
				stats.responsesFailed.Load(),
				stats.requestsRejected.Load(),
				stats.avgTurnaroundMs(),
			)

			lastAnswered = answered
			lastTime = currentTime
		}
	}
}

func (s *Stats) avgTurnaroundMs() float64 {
	answered := s.responsesOK.Load() + s.responsesFailed.Load()
	if answered == 0 {
		return 0
	}
	return float64(s.turnaround.Load()) / float64(answered)
}

func printFinalStats(stats *Stats, outstanding int) {
	fmt.Println("\n=== Final Statistics ===")
	fmt.Printf("Requests sent: %d\n", stats.requestsSent.Load())
	fmt.Printf("Requests rejected: %d\n", stats.requestsRejected.Load())
	fmt.Printf("Responses ok: %d\n", stats.responsesOK.Load())
	fmt.Printf("Responses failed: %d\n", stats.responsesFailed.Load())
	fmt.Printf("Unanswered: %d\n", outstanding)

	if req := stats.requestsSent.Load(); req > 0 {
		fmt.Printf("Average enqueue latency: %.2f ms\n", float64(stats.enqueueLatency.Load())/float64(req)/1000)
	}
	fmt.Printf("Average turnaround: %.2f ms\n", stats.avgTurnaroundMs())
}
