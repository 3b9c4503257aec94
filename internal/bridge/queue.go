package bridge

import (
	"sync"

	"otelbridge/internal/models"
	"otelbridge/internal/monitoring"
)

type requestKind int

const (
	requestHealthCheck requestKind = iota
	requestTraces
	requestLogs
	requestMetrics
	requestServices
)

func (k requestKind) String() string {
	switch k {
	case requestHealthCheck:
		return "health_check"
	case requestTraces:
		return "traces"
	case requestLogs:
		return "logs"
	case requestMetrics:
		return "metrics"
	case requestServices:
		return "services"
	default:
		return "unknown"
	}
}

type request struct {
	id      string
	kind    requestKind
	traces  *models.TraceQuery
	logs    *models.LogQuery
	metrics *models.MetricQuery
}

// requestQueue is an unbounded FIFO. push never blocks; wake carries at most
// one pending signal so the worker re-checks the slice after each wakeup.
type requestQueue struct {
	mu     sync.Mutex
	items  []request
	closed bool
	wake   chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{wake: make(chan struct{}, 1)}
}

func (q *requestQueue) push(r request) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, r)
	monitoring.PendingRequests.Set(float64(len(q.items)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *requestQueue) pop() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return request{}, false
	}
	r := q.items[0]
	q.items[0] = request{}
	q.items = q.items[1:]
	monitoring.PendingRequests.Set(float64(len(q.items)))
	return r, true
}

// close rejects further pushes; already queued requests can still be popped.
func (q *requestQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// responseBuffer collects worker output until the foreground drains it.
type responseBuffer struct {
	mu    sync.Mutex
	items []Response
}

func (b *responseBuffer) push(r Response) {
	b.mu.Lock()
	b.items = append(b.items, r)
	monitoring.PendingResponses.Set(float64(len(b.items)))
	b.mu.Unlock()
}

// take swaps the buffer for an empty one.
func (b *responseBuffer) take() []Response {
	b.mu.Lock()
	items := b.items
	b.items = nil
	monitoring.PendingResponses.Set(0)
	b.mu.Unlock()
	if items == nil {
		return []Response{}
	}
	return items
}
