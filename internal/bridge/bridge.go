// Package bridge runs backend calls on a background goroutine so a
// poll-driven foreground can enqueue queries and drain results without
// blocking.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"otelbridge/internal/backend"
	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/monitoring"
	"otelbridge/internal/telemetry"
)

const tracerName = "otelbridge/internal/bridge"

// Bridge owns one worker goroutine, its request queue and the response
// buffer. The zero value is not usable; call New.
type Bridge struct {
	logger *slog.Logger
	tracer trace.Tracer
	newID  func() string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	configured atomic.Bool
	status     atomic.Int32
	name       atomic.Value // string

	queue     atomic.Pointer[requestQueue]
	responses responseBuffer
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger used by the worker
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracerProvider sets where per-request spans are recorded
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bridge) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an idle bridge. Nothing runs until Start or InitFromEnv.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
	}
	b.name.Store("")
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the worker for cfg. creds, when non-nil, are exchanged for
// a bearer token first unless cfg already carries auth. Only the first call
// has an effect; later calls report whether the bridge is configured.
func (b *Bridge) Start(cfg config.BackendConfig, creds *config.Credentials) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return b.configured.Load()
	}
	b.started = true
	b.configured.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.queue.Store(newRequestQueue())

	b.wg.Add(1)
	go b.run(ctx, cfg, creds)

	b.logger.Info("bridge started", "backend", cfg.Kind, "endpoint", cfg.Endpoint())
	return true
}

// InitFromEnv starts the bridge from SIGNOZ_* environment variables.
func (b *Bridge) InitFromEnv() bool {
	env, err := config.LoadEnv()
	if err != nil {
		b.logger.Error("invalid SigNoz environment", "error", err)
		return b.Configured()
	}
	var creds *config.Credentials
	if c, ok := env.LoginCredentials(); ok {
		creds = &c
	}
	return b.Start(env.BackendConfig(), creds)
}

// Configured reports whether Start has been accepted.
func (b *Bridge) Configured() bool {
	return b.configured.Load()
}

// Status returns the last known connection status.
func (b *Bridge) Status() ConnectionStatus {
	return ConnectionStatus(b.status.Load())
}

// BackendName is the display name of the constructed backend, or "" before
// construction.
func (b *Bridge) BackendName() string {
	return b.name.Load().(string)
}

func (b *Bridge) setStatus(s ConnectionStatus) {
	b.status.Store(int32(s))
	monitoring.ConnectionStatus.Set(float64(s))
}

// TakeResponses returns every pending response and leaves the buffer empty.
func (b *Bridge) TakeResponses() []Response {
	return b.responses.take()
}

func (b *Bridge) enqueue(r request) string {
	q := b.queue.Load()
	if q == nil {
		return ""
	}
	r.id = b.newID()
	if !q.push(r) {
		return ""
	}
	return r.id
}

// RequestHealthCheck queues a health check and returns its request ID, or ""
// when the bridge is not running.
func (b *Bridge) RequestHealthCheck() string {
	return b.enqueue(request{kind: requestHealthCheck})
}

// RequestTraces queues a trace query. The query is deep-copied, so the caller may reuse it.
func (b *Bridge) RequestTraces(q *models.TraceQuery) string {
	c := q.Clone()
	return b.enqueue(request{kind: requestTraces, traces: &c})
}

// RequestLogs queues a log query. The query is deep-copied, so the caller may reuse it.
func (b *Bridge) RequestLogs(q *models.LogQuery) string {
	c := q.Clone()
	return b.enqueue(request{kind: requestLogs, logs: &c})
}

// RequestMetrics queues a metric query. The query is deep-copied, so the caller may reuse it.
func (b *Bridge) RequestMetrics(q *models.MetricQuery) string {
	c := q.Clone()
	return b.enqueue(request{kind: requestMetrics, metrics: &c})
}

// RequestServices queues a service listing.
func (b *Bridge) RequestServices() string {
	return b.enqueue(request{kind: requestServices})
}

// Shutdown stops accepting requests, cancels in-flight calls and waits for
// the worker. Requests already queued are still answered, with errors if
// their calls observe the cancellation.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}

	if q := b.queue.Load(); q != nil {
		q.close()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.setStatus(StatusDisconnected)
		b.logger.Info("bridge stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) run(ctx context.Context, cfg config.BackendConfig, creds *config.Credentials) {
	defer b.wg.Done()

	if creds != nil && cfg.Auth().IsNone() {
		b.logger.Info("logging in", "email", creds.Email, "endpoint", cfg.Endpoint())
		upgraded, err := backend.Login(ctx, cfg, *creds, b.logger)
		if err != nil {
			// Keep going unauthenticated; the foreground sees why.
			b.logger.Error("login failed", "error", err)
			b.responses.push(Response{Kind: HealthError, Err: "Login failed: " + err.Error()})
			b.setStatus(StatusError)
		} else {
			b.logger.Info("login succeeded, using bearer token")
			cfg = upgraded
		}
	}

	client, err := backend.New(cfg, b.logger)
	if err != nil {
		b.logger.Error("failed to create backend", "error", err)
		b.responses.push(Response{Kind: HealthError, Err: err.Error()})
		b.setStatus(StatusError)
		return
	}
	defer client.Close()
	b.name.Store(client.DisplayName())

	queue := b.queue.Load()
	b.logger.Info("bridge worker ready", "backend", client.DisplayName())
	for {
		req, ok := queue.pop()
		if !ok {
			select {
			case <-queue.wake:
				continue
			case <-ctx.Done():
				// The queue is closed before cancel, so this drains what is left.
				if req, ok = queue.pop(); !ok {
					return
				}
			}
		}
		b.responses.push(b.dispatch(ctx, client, req))
	}
}

func (b *Bridge) dispatch(ctx context.Context, client *backend.Client, req request) Response {
	ctx, span := b.tracer.Start(ctx, "bridge."+req.kind.String(),
		trace.WithAttributes(
			attribute.String("request.id", req.id),
			attribute.String("backend", client.DisplayName()),
		))
	defer span.End()

	started := time.Now()
	resp, n, err := b.execute(ctx, client, req)
	resp.RequestID = req.id

	errKind := ""
	if err != nil {
		errKind = telemetry.KindOf(err).String()
		resp.Err = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Err)
		b.logger.Warn("request failed", "request_id", req.id, "type", req.kind.String(), "error", err)
	} else {
		span.SetAttributes(attribute.Int("result.count", n))
		b.logger.Debug("request done", "request_id", req.id, "type", req.kind.String(), "count", n)
	}
	monitoring.ObserveQuery(string(client.Kind()), req.kind.String(), started, errKind)
	return resp
}

func (b *Bridge) execute(ctx context.Context, client *backend.Client, req request) (Response, int, error) {
	switch req.kind {
	case requestHealthCheck:
		if err := client.HealthCheck(ctx); err != nil {
			b.setStatus(StatusError)
			return Response{Kind: HealthError}, 0, err
		}
		b.setStatus(StatusConnected)
		return Response{Kind: HealthOK}, 0, nil
	case requestTraces:
		res, err := client.QueryTraces(ctx, req.traces)
		if err != nil {
			return Response{Kind: TracesError}, 0, err
		}
		return Response{Kind: Traces, Spans: res.Items}, len(res.Items), nil
	case requestLogs:
		res, err := client.QueryLogs(ctx, req.logs)
		if err != nil {
			return Response{Kind: LogsError}, 0, err
		}
		return Response{Kind: Logs, Logs: res.Items}, len(res.Items), nil
	case requestMetrics:
		res, err := client.QueryMetrics(ctx, req.metrics)
		if err != nil {
			return Response{Kind: MetricsError}, 0, err
		}
		return Response{Kind: Metrics, Series: res.Items}, len(res.Items), nil
	default:
		services, err := client.ListServices(ctx)
		if err != nil {
			return Response{Kind: ServicesError}, 0, err
		}
		return Response{Kind: Services, Services: services}, len(services), nil
	}
}
