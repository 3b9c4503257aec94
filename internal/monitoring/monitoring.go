package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	// Metrics for backend queries
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otelbridge_query_duration_seconds",
			Help:    "Duration of backend query operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"backend", "query_type"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otelbridge_query_errors_total",
			Help: "Total number of failed backend queries",
		},
		[]string{"backend", "query_type", "kind"},
	)

	// Bridge queue metrics
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otelbridge_bridge_pending_requests",
			Help: "Requests queued for the background worker",
		},
	)

	PendingResponses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otelbridge_bridge_pending_responses",
			Help: "Responses waiting to be drained by the foreground",
		},
	)

	ConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otelbridge_connection_status",
			Help: "Last known backend status (0 unknown, 1 connected, 2 disconnected, 3 error)",
		},
	)
)

// ObserveQuery records the duration of one backend call and, when err is
// non-nil, counts it under errKind.
func ObserveQuery(backend, queryType string, started time.Time, errKind string) {
	QueryDuration.WithLabelValues(backend, queryType).Observe(time.Since(started).Seconds())
	if errKind != "" {
		QueryErrors.WithLabelValues(backend, queryType, errKind).Inc()
	}
}

// InitTracing initializes OpenTelemetry tracing. With an empty endpoint no
// exporter is created and the returned shutdown is a no-op.
func InitTracing(serviceName, serviceVersion, endpoint string, sampleRate float64) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	// Create resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create OTLP trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// MetricsHandler serves the default Prometheus registry
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func StartMetricsServer(port int, path string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle(path, MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}

// HealthCheck serves liveness and readiness probes
type HealthCheck struct {
	ready atomic.Bool
}

// NewHealthCheck creates a new health check handler, initially not ready
func NewHealthCheck() *HealthCheck {
	return &HealthCheck{}
}

// SetReady marks the service as ready
func (h *HealthCheck) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports the current readiness
func (h *HealthCheck) Ready() bool {
	return h.ready.Load()
}

// LivenessHandler handles liveness probe requests
func (h *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadinessHandler handles readiness probe requests
func (h *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Not Ready"))
	}
}
