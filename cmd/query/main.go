package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"otelbridge/internal/bridge"
	"otelbridge/internal/config"
	"otelbridge/internal/models"
	"otelbridge/internal/monitoring"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "otelbridge-query"
	serviceVersion = "1.0.0"
)

// QueryService exposes one bridge over a local HTTP API
type QueryService struct {
	config      *config.Config
	bridge      *bridge.Bridge
	healthCheck *monitoring.HealthCheck
	logger      *slog.Logger
}

// NewQueryService creates a new query service instance
func NewQueryService(cfg *config.Config, b *bridge.Bridge, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		config:      cfg,
		bridge:      b,
		healthCheck: monitoring.NewHealthCheck(),
		logger:      logger,
	}
}

type enqueueResponse struct {
	RequestID string `json:"request_id"`
}

type responsesResponse struct {
	Responses []bridge.Response `json:"responses"`
}

type statusResponse struct {
	Configured bool                    `json:"configured"`
	Status     bridge.ConnectionStatus `json:"status"`
	Backend    string                  `json:"backend"`
}

// StartBridge starts the bridge from the config file's backend section,
// falling back to SIGNOZ_* environment variables when it is absent.
func (s *QueryService) StartBridge() bool {
	var ok bool
	if s.config.Backend != nil {
		ok = s.bridge.Start(*s.config.Backend, s.config.Bridge.Login)
	} else {
		ok = s.bridge.InitFromEnv()
	}
	s.healthCheck.SetReady(ok)
	return ok
}

// RunHealthChecks queues a health check on start and then once per
// interval until ctx is done.
func (s *QueryService) RunHealthChecks(ctx context.Context) error {
	if s.config.Bridge.HealthCheckOnStart {
		s.bridge.RequestHealthCheck()
	}
	if s.config.Bridge.HealthCheckInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.config.Bridge.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.bridge.RequestHealthCheck()
		}
	}
}

// Router wires the API routes
func (s *QueryService) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health-check", s.RequestHealthCheck).Methods("POST")
	api.HandleFunc("/traces", s.QueryTraces).Methods("POST")
	api.HandleFunc("/logs", s.QueryLogs).Methods("POST")
	api.HandleFunc("/metrics", s.QueryMetrics).Methods("POST")
	api.HandleFunc("/services", s.ListServices).Methods("POST")
	api.HandleFunc("/responses", s.TakeResponses).Methods("GET")
	api.HandleFunc("/status", s.Status).Methods("GET")
	router.HandleFunc(s.config.Monitoring.HealthCheckPath, s.healthCheck.LivenessHandler).Methods("GET")
	router.HandleFunc(s.config.Monitoring.ReadyCheckPath, s.healthCheck.ReadinessHandler).Methods("GET")
	return router
}

// HTTP Handlers

// RequestHealthCheck queues a backend health check
func (s *QueryService) RequestHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.accepted(w, s.bridge.RequestHealthCheck())
}

// QueryTraces queues a trace query
func (s *QueryService) QueryTraces(w http.ResponseWriter, r *http.Request) {
	var req models.TraceQuery
	if !s.decode(w, r, &req) {
		return
	}
	s.accepted(w, s.bridge.RequestTraces(&req))
}

// QueryLogs queues a log query
func (s *QueryService) QueryLogs(w http.ResponseWriter, r *http.Request) {
	var req models.LogQuery
	if !s.decode(w, r, &req) {
		return
	}
	s.accepted(w, s.bridge.RequestLogs(&req))
}

// QueryMetrics queues a metric query
func (s *QueryService) QueryMetrics(w http.ResponseWriter, r *http.Request) {
	var req models.MetricQuery
	if !s.decode(w, r, &req) {
		return
	}
	s.accepted(w, s.bridge.RequestMetrics(&req))
}

// ListServices queues a service listing
func (s *QueryService) ListServices(w http.ResponseWriter, r *http.Request) {
	s.accepted(w, s.bridge.RequestServices())
}

// TakeResponses drains every response produced since the last call
func (s *QueryService) TakeResponses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, responsesResponse{Responses: s.bridge.TakeResponses()})
}

// Status reports the bridge state
func (s *QueryService) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Configured: s.bridge.Configured(),
		Status:     s.bridge.Status(),
		Backend:    s.bridge.BackendName(),
	})
}

// decode reads an optional JSON body into v. An empty body leaves v zero.
func (s *QueryService) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *QueryService) accepted(w http.ResponseWriter, id string) {
	if id == "" {
		http.Error(w, "bridge is not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{RequestID: id})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newLogger builds the process logger from the monitoring settings
func newLogger(m config.MonitoringConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: m.SlogLevel()}
	if strings.EqualFold(m.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/query.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Monitoring, os.Stdout)
	slog.SetDefault(logger)

	// Initialize monitoring
	shutdownTracing, err := monitoring.InitTracing(serviceName, serviceVersion,
		cfg.Monitoring.TracingEndpoint, cfg.Monitoring.TraceSampleRate)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	metricsServer := monitoring.StartMetricsServer(cfg.Monitoring.MetricsPort, cfg.Monitoring.MetricsPath, logger)
	defer metricsServer.Shutdown(context.Background())

	service := NewQueryService(cfg, bridge.New(bridge.WithLogger(logger)), logger)
	if !service.StartBridge() {
		log.Fatalf("Failed to start bridge: no usable backend configuration")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      service.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("query API server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("query server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return service.RunHealthChecks(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		service.healthCheck.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if err := service.bridge.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("bridge shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("query host stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
